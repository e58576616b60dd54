package normalize

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Element names of a paged search result.
const (
	ResultSetSizeField = "resultSetSize"
	resultsElement     = "results"
	itemIDElement      = "itemId"
	nameElement        = "name"
)

// Document is an OSLC/XML payload. Element names are matched by local name,
// so a namespace prefix such as oslc:totalCount does not get in the way.
type Document struct {
	root *xmlquery.Node
}

// ParseDocument decodes an XML body.
func ParseDocument(body []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Shape: ShapeDocument, Err: err}
	}
	return &Document{root: root}, nil
}

// Shape implements Payload.
func (d *Document) Shape() Shape { return ShapeDocument }

func (d *Document) sealed() {}

// Text returns the trimmed text of the first element named name anywhere in
// the document.
func (d *Document) Text(name string) (string, bool) {
	expr, ok := descendant(name)
	if !ok {
		return "", false
	}
	node := xmlquery.QuerySelector(d.root, expr)
	if node == nil {
		return "", false
	}
	return strings.TrimSpace(node.InnerText()), true
}

// Int returns the integer held by the first element named name.
func (d *Document) Int(name string) (int, bool) {
	text, ok := d.Text(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Count implements Payload.
func (d *Document) Count(fields ...string) (int, bool) {
	for _, field := range countFields(fields) {
		if n, ok := d.Int(field); ok {
			return n, true
		}
	}
	return 0, false
}

// Entries implements Payload. Only the first resultSetSize results are
// considered; when resultSetSize is absent the listing is empty.
func (d *Document) Entries() []Entry {
	size, ok := d.Int(ResultSetSizeField)
	if !ok || size <= 0 {
		return []Entry{}
	}
	expr, _ := descendant(resultsElement)
	results := xmlquery.QuerySelectorAll(d.root, expr)
	if len(results) > size {
		results = results[:size]
	}
	entries := make([]Entry, 0, len(results))
	for _, result := range results {
		id := childText(result, itemIDElement)
		name := childText(result, nameElement)
		if id == "" || name == "" {
			continue
		}
		entries = append(entries, Entry{Name: name, ID: id})
	}
	return entries
}

func childText(node *xmlquery.Node, name string) string {
	expr, ok := child(name)
	if !ok {
		return ""
	}
	found := xmlquery.QuerySelector(node, expr)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.InnerText())
}

var (
	exprMu    sync.Mutex
	exprCache = map[string]*xpath.Expr{}
)

func descendant(name string) (*xpath.Expr, bool) {
	return compile(name, "//*[local-name()='%s']")
}

func child(name string) (*xpath.Expr, bool) {
	return compile(name, "*[local-name()='%s']")
}

// compile builds a local-name match for name. Names that cannot appear in an
// XML element name are rejected rather than spliced into the expression.
func compile(name, format string) (*xpath.Expr, bool) {
	if name == "" || strings.ContainsAny(name, "'\"[]/ ") {
		return nil, false
	}
	src := fmt.Sprintf(format, name)

	exprMu.Lock()
	defer exprMu.Unlock()
	if e, ok := exprCache[src]; ok {
		return e, true
	}
	e, err := xpath.Compile(src)
	if err != nil {
		return nil, false
	}
	exprCache[src] = e
	return e, true
}
