package normalize

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/tidwall/gjson"
)

// Key paths inside the SOAP envelope. Dots inside a key are escaped for gjson.
const (
	// ValuePath is where every service puts its return value.
	ValuePath = `soapenv:Body.response.returnValue.value`
	// ProjectAreasPath is the listing of project areas visible to the user,
	// relative to ValuePath.
	ProjectAreasPath = `com\.ibm\.rqm\.planning\.service\.permissionsWebUIInitializer.userProjectAreas`
)

// Envelope is a SOAP-enveloped JSON payload.
type Envelope struct {
	root gjson.Result
}

// ParseEnvelope decodes an enveloped JSON body. It fails only when the body is
// not valid JSON; a document without the envelope keys decodes fine and simply
// holds nothing.
func ParseEnvelope(body []byte) (*Envelope, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ParseError{Shape: ShapeEnvelope, Err: errors.New("invalid JSON")}
	}
	return &Envelope{root: gjson.ParseBytes(body)}, nil
}

// Shape implements Payload.
func (e *Envelope) Shape() Shape { return ShapeEnvelope }

func (e *Envelope) sealed() {}

// Value returns the service return value, which does not exist when any
// segment of the envelope path is missing.
func (e *Envelope) Value() gjson.Result {
	return e.root.Get(ValuePath)
}

// Lookup returns the result at path relative to the return value.
func (e *Envelope) Lookup(path string) gjson.Result {
	value := e.Value()
	if !value.Exists() {
		return gjson.Result{}
	}
	return value.Get(path)
}

// Int returns the integer at path relative to the return value. Numeric
// strings are accepted, as some services quote their counts.
func (e *Envelope) Int(path string) (int, bool) {
	res := e.Lookup(path)
	switch res.Type {
	case gjson.Number:
		return int(res.Int()), true
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(res.Str))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Count implements Payload.
func (e *Envelope) Count(fields ...string) (int, bool) {
	for _, field := range countFields(fields) {
		if n, ok := e.Int(field); ok {
			return n, true
		}
	}
	return 0, false
}

// Entries implements Payload. It reads the project area listing.
func (e *Envelope) Entries() []Entry {
	list := e.Lookup(ProjectAreasPath)
	if !list.IsArray() {
		return []Entry{}
	}
	entries := make([]Entry, 0, len(list.Array()))
	list.ForEach(func(_, item gjson.Result) bool {
		name := item.Get("name").String()
		id := item.Get("itemId").String()
		if name != "" && id != "" {
			entries = append(entries, Entry{Name: name, ID: id})
		}
		return true
	})
	return entries
}
