// Package normalize turns the heterogeneous responses of an RQM server into
// uniform counts and (name, id) listings.
//
// The server family answers in two incompatible shapes: a SOAP-enveloped JSON
// document and a raw OSLC/XML document. Each shape has its own decoder
// (ParseEnvelope, ParseDocument) producing a Payload. Every lookup on a
// Payload reports absence instead of failing, so callers can always fall back
// to a default.
package normalize

import (
	"bytes"
	"fmt"

	"github.com/go-faster/errors"
)

// Shape identifies the wire format of a response body.
type Shape int

const (
	// ShapeUnknown is a body that is neither JSON nor XML.
	ShapeUnknown Shape = iota
	// ShapeEnvelope is SOAP-enveloped JSON.
	ShapeEnvelope
	// ShapeDocument is an OSLC/XML document.
	ShapeDocument
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeEnvelope:
		return "envelope"
	case ShapeDocument:
		return "document"
	default:
		return "unknown"
	}
}

// DefaultCountField is the element or key holding the total count of a paged
// search result.
const DefaultCountField = "totalSize"

// Entry is a (name, id) pair taken from a listing response.
type Entry struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
}

// Payload is a decoded response body. It is implemented by *Envelope and
// *Document only.
type Payload interface {
	// Shape reports which decoder produced the payload.
	Shape() Shape
	// Count returns the first field, in order, that holds an integer.
	// With no fields it looks for DefaultCountField.
	Count(fields ...string) (int, bool)
	// Entries returns the (name, id) pairs of a listing response.
	// Items missing a name or an id are skipped.
	Entries() []Entry

	sealed()
}

// ParseError reports a body that could not be decoded.
type ParseError struct {
	Shape Shape
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %v", e.Shape, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Decode sniffs the body and dispatches to the decoder of its shape. On
// error the returned Payload is a nil interface.
func Decode(body []byte) (Payload, error) {
	switch Sniff(body) {
	case ShapeEnvelope:
		env, err := ParseEnvelope(body)
		if err != nil {
			return nil, err
		}
		return env, nil
	case ShapeDocument:
		doc, err := ParseDocument(body)
		if err != nil {
			return nil, err
		}
		return doc, nil
	default:
		return nil, &ParseError{Shape: ShapeUnknown, Err: errors.New("body is neither JSON nor XML")}
	}
}

// Sniff classifies a body by its first significant byte.
func Sniff(body []byte) Shape {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return ShapeUnknown
	}
	switch trimmed[0] {
	case '{', '[':
		return ShapeEnvelope
	case '<':
		return ShapeDocument
	default:
		return ShapeUnknown
	}
}

// CountOf returns the count held by p, or 0 when p is nil or holds none.
func CountOf(p Payload, fields ...string) int {
	if p == nil {
		return 0
	}
	if n, ok := p.Count(fields...); ok {
		return n
	}
	return 0
}

// EntriesOf returns the entries held by p, or an empty slice when p is nil.
func EntriesOf(p Payload) []Entry {
	if p == nil {
		return []Entry{}
	}
	entries := p.Entries()
	if entries == nil {
		return []Entry{}
	}
	return entries
}

func countFields(fields []string) []string {
	if len(fields) == 0 {
		return []string{DefaultCountField}
	}
	return fields
}
