// Package docstore is a narrow document-database interface over collections of
// documents, with nested sub-collections addressed by slash-separated paths
// such as "requests/abc/offers".
package docstore

import (
	"context"
	"strings"

	"google.golang.org/api/iterator"
)

type Store interface {
	// Create writes a new document. An empty id lets the store pick one.
	Create(ctx context.Context, collection, id string, data interface{}) (string, error)
	Set(ctx context.Context, collection, id string, data interface{}) error
	// Get never fails for absence; it returns a Document with Exists == false.
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) Iterator
	Update(ctx context.Context, collection, id string, updates []Update) error
	Delete(ctx context.Context, collection, id string) error
	// BatchWrite applies every op or none of them.
	BatchWrite(ctx context.Context, ops []Op) error
	// Subscribe calls onChange with the current result set and again after every
	// change. onError is called at most once, after which the subscription is dead.
	Subscribe(ctx context.Context, q Query, onChange func(Snapshot), onError func(error)) (unsubscribe func())
	Ping(ctx context.Context) error
	Close() error
}

type Iterator interface {
	// Next returns iterator.Done after the last document.
	Next() (*Document, error)
	Stop()
}

const (
	OpEqual        = "=="
	OpIn           = "in"
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
)

type Filter struct {
	Path  string
	Op    string
	Value interface{}
}

type Order struct {
	Path string
	Desc bool
}

type Query struct {
	Collection string
	// Group queries every collection whose last path segment equals Collection.
	Group   bool
	Filters []Filter
	Orders  []Order
	Limit   int
}

func (q Query) Where(path, op string, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Path: path, Op: op, Value: value})
	return q
}

func (q Query) OrderBy(path string, desc bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Path: path, Desc: desc})
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

func Collection(path string) Query {
	return Query{Collection: path}
}

func CollectionGroup(name string) Query {
	return Query{Collection: name, Group: true}
}

type Update struct {
	Path  string
	Value interface{}
}

type increment struct {
	n int64
}

// Increment is an Update value that adds n to a numeric field.
func Increment(n int64) interface{} {
	return increment{n: n}
}

type OpKind int

const (
	OpCreate OpKind = iota
	OpSet
	OpUpdate
	OpDelete
)

// Precondition is checked inside the write transaction. The document must exist
// and the string value at Field must be in In (when set) and not in NotIn.
type Precondition struct {
	Field string
	In    []string
	NotIn []string
}

func (p *Precondition) holds(value interface{}) bool {
	s, _ := value.(string)
	if len(p.In) > 0 && !contains(p.In, s) {
		return false
	}
	return !contains(p.NotIn, s)
}

type Op struct {
	Kind         OpKind
	Collection   string
	ID           string
	Data         interface{}
	Updates      []Update
	Precondition *Precondition
}

type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	default:
		return "removed"
	}
}

type Change struct {
	Kind ChangeKind
	Doc  *Document
}

type Snapshot struct {
	Docs    []*Document
	Changes []Change
}

type Document struct {
	ID string
	// Collection is the full collection path the document lives in.
	Collection string
	Exists     bool

	data   map[string]interface{}
	decode func(v interface{}) error
}

func (d *Document) Data() map[string]interface{} {
	return d.data
}

func (d *Document) DataTo(v interface{}) error {
	if d.decode == nil {
		return nil
	}
	return d.decode(v)
}

// Field resolves a dotted path such as "contact.phone".
func (d *Document) Field(path string) (interface{}, bool) {
	return lookup(d.data, path)
}

// String returns the string at path, or "".
func (d *Document) String(path string) string {
	v, _ := d.Field(path)
	s, _ := v.(string)
	return s
}

// ParentID is the owning document ID for sub-collection documents.
func (d *Document) ParentID() string {
	parts := strings.Split(d.Collection, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}

// All drains an iterator.
func All(it Iterator) ([]*Document, error) {
	defer it.Stop()
	var docs []*Document
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// Sub builds the path of a sub-collection under a document.
func Sub(collection, id, sub string) string {
	return collection + "/" + id + "/" + sub
}

func lookup(data map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
