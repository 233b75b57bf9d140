package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"schadenschat/pkg/errors"
)

// MemoryStore is an in-process Store. Values are stored in their JSON form, so
// documents read back exactly as they would after a trip through the wire.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]map[string]*memDoc
	version int64
	subs    map[int]*memSub
	nextSub int
	closed  bool
}

type memDoc struct {
	data    map[string]interface{}
	version int64
}

type memSub struct {
	notify chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]*memDoc),
		subs: make(map[int]*memSub),
	}
}

func (s *MemoryStore) Create(ctx context.Context, collection, id string, data interface{}) (string, error) {
	normalized, err := normalize(data)
	if err != nil {
		return "", errors.Internal("Failed to encode document", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errClosed()
	}

	if id == "" {
		id = uuid.New().String()
	}
	if _, exists := s.docs[collection][id]; exists {
		return "", errors.Conflict(fmt.Sprintf("document %s/%s already exists", collection, id))
	}
	s.put(collection, id, normalized)
	s.broadcast()
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data interface{}) error {
	normalized, err := normalize(data)
	if err != nil {
		return errors.Internal("Failed to encode document", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	s.put(collection, id, normalized)
	s.broadcast()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	doc, ok := s.docs[collection][id]
	if !ok {
		return &Document{ID: id, Collection: collection, Exists: false}, nil
	}
	return newMemDocument(collection, id, doc.data), nil
}

func (s *MemoryStore) Query(ctx context.Context, q Query) Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &sliceIterator{err: errClosed()}
	}

	docs, _, err := s.run(q)
	return &sliceIterator{docs: docs, err: err}
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, updates []Update) error {
	normalized, err := normalizeUpdates(updates)
	if err != nil {
		return errors.Internal("Failed to encode update", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	doc, ok := s.docs[collection][id]
	if !ok {
		return errors.NotFound(collection+"/"+id, nil)
	}
	data := deepCopy(doc.data).(map[string]interface{})
	if err := applyUpdates(data, normalized); err != nil {
		return err
	}
	s.put(collection, id, data)
	s.broadcast()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	if _, ok := s.docs[collection][id]; ok {
		delete(s.docs[collection], id)
		s.version++
		s.broadcast()
	}
	return nil
}

func (s *MemoryStore) BatchWrite(ctx context.Context, ops []Op) error {
	type staged struct {
		op      Op
		data    map[string]interface{}
		updates []Update
	}
	prepared := make([]staged, 0, len(ops))
	for _, op := range ops {
		st := staged{op: op}
		var err error
		switch op.Kind {
		case OpCreate, OpSet:
			st.data, err = normalize(op.Data)
		case OpUpdate:
			st.updates, err = normalizeUpdates(op.Updates)
		}
		if err != nil {
			return errors.Internal("Failed to encode batch", err)
		}
		prepared = append(prepared, st)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	for _, st := range prepared {
		op := st.op
		doc, exists := s.docs[op.Collection][op.ID]
		if op.Precondition != nil {
			if !exists {
				return errors.NotFound(op.Collection+"/"+op.ID, nil)
			}
			value, _ := lookup(doc.data, op.Precondition.Field)
			if !op.Precondition.holds(value) {
				return errors.Conflict(fmt.Sprintf("precondition failed on %s/%s: %s is %v", op.Collection, op.ID, op.Precondition.Field, value))
			}
		}
		if op.Kind == OpCreate && exists {
			return errors.Conflict(fmt.Sprintf("document %s/%s already exists", op.Collection, op.ID))
		}
		if op.Kind == OpUpdate && !exists {
			return errors.NotFound(op.Collection+"/"+op.ID, nil)
		}
	}

	// Apply against copies first so a failing update leaves nothing behind.
	next := make(map[string]map[string]interface{})
	deleted := make(map[string]bool)
	for _, st := range prepared {
		op := st.op
		key := op.Collection + "\x00" + op.ID
		switch op.Kind {
		case OpCreate, OpSet:
			next[key] = st.data
			delete(deleted, key)
		case OpUpdate:
			base, ok := next[key]
			if !ok {
				base = deepCopy(s.docs[op.Collection][op.ID].data).(map[string]interface{})
			}
			if err := applyUpdates(base, st.updates); err != nil {
				return err
			}
			next[key] = base
		case OpDelete:
			delete(next, key)
			deleted[key] = true
		}
	}

	for key, data := range next {
		parts := strings.SplitN(key, "\x00", 2)
		s.put(parts[0], parts[1], data)
	}
	for key := range deleted {
		parts := strings.SplitN(key, "\x00", 2)
		delete(s.docs[parts[0]], parts[1])
	}
	s.version++
	s.broadcast()
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, q Query, onChange func(Snapshot), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	sub := &memSub{notify: make(chan struct{}, 1)}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()

	sub.notify <- struct{}{}

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		}()

		previous := make(map[string]int64)
		first := true
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.notify:
			}

			s.mu.RLock()
			closed := s.closed
			var (
				docs     []*Document
				versions map[string]int64
				err      error
			)
			if !closed {
				docs, versions, err = s.run(q)
			}
			s.mu.RUnlock()

			if ctx.Err() != nil {
				return
			}
			if closed {
				onError(errClosed())
				return
			}
			if err != nil {
				onError(err)
				return
			}

			changes := diff(previous, versions, docs)
			if !first && len(changes) == 0 {
				continue
			}
			first = false
			previous = versions
			onChange(Snapshot{Docs: docs, Changes: changes})
		}
	}()

	return cancel
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed()
	}
	return nil
}

// Close makes every later call fail with StoreUnavailable and ends live subscriptions through onError.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.broadcast()
	return nil
}

func (s *MemoryStore) put(collection, id string, data map[string]interface{}) {
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]*memDoc)
	}
	s.version++
	s.docs[collection][id] = &memDoc{data: data, version: s.version}
}

func (s *MemoryStore) broadcast() {
	for _, sub := range s.subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

// run evaluates q; the caller holds at least the read lock.
func (s *MemoryStore) run(q Query) ([]*Document, map[string]int64, error) {
	type candidate struct {
		collection string
		id         string
		doc        *memDoc
	}

	var candidates []candidate
	for collection, docs := range s.docs {
		if q.Group {
			parts := strings.Split(collection, "/")
			if parts[len(parts)-1] != q.Collection {
				continue
			}
		} else if collection != q.Collection {
			continue
		}
		for id, doc := range docs {
			candidates = append(candidates, candidate{collection: collection, id: id, doc: doc})
		}
	}

	filters := make([]Filter, 0, len(q.Filters))
	for _, f := range q.Filters {
		value, err := normalizeValue(f.Value)
		if err != nil {
			return nil, nil, errors.Internal("Failed to encode filter", err)
		}
		filters = append(filters, Filter{Path: f.Path, Op: f.Op, Value: value})
	}

	matched := candidates[:0]
	for _, c := range candidates {
		if matches(c.doc.data, filters) && hasFields(c.doc.data, q.Orders) {
			matched = append(matched, c)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		for _, o := range q.Orders {
			a, _ := lookup(matched[i].doc.data, o.Path)
			b, _ := lookup(matched[j].doc.data, o.Path)
			cmp, _ := compareValues(a, b)
			if cmp == 0 {
				continue
			}
			if o.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		if matched[i].collection != matched[j].collection {
			return matched[i].collection < matched[j].collection
		}
		return matched[i].id < matched[j].id
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	docs := make([]*Document, 0, len(matched))
	versions := make(map[string]int64, len(matched))
	for _, c := range matched {
		docs = append(docs, newMemDocument(c.collection, c.id, c.doc.data))
		versions[c.collection+"/"+c.id] = c.doc.version
	}
	return docs, versions, nil
}

func diff(previous, current map[string]int64, docs []*Document) []Change {
	var changes []Change
	for _, doc := range docs {
		key := doc.Collection + "/" + doc.ID
		old, seen := previous[key]
		switch {
		case !seen:
			changes = append(changes, Change{Kind: ChangeAdded, Doc: doc})
		case old != current[key]:
			changes = append(changes, Change{Kind: ChangeModified, Doc: doc})
		}
	}

	var removed []string
	for key := range previous {
		if _, ok := current[key]; !ok {
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)
	for _, key := range removed {
		idx := strings.LastIndex(key, "/")
		changes = append(changes, Change{
			Kind: ChangeRemoved,
			Doc:  &Document{ID: key[idx+1:], Collection: key[:idx], Exists: false},
		})
	}
	return changes
}

func matches(data map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		value, ok := lookup(data, f.Path)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if cmp, ok := compareValues(value, f.Value); !ok || cmp != 0 {
				return false
			}
		case OpIn:
			list, _ := f.Value.([]interface{})
			found := false
			for _, candidate := range list {
				if cmp, ok := compareValues(value, candidate); ok && cmp == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			cmp, ok := compareValues(value, f.Value)
			if !ok {
				return false
			}
			if (f.Op == OpLess && cmp >= 0) ||
				(f.Op == OpLessEqual && cmp > 0) ||
				(f.Op == OpGreater && cmp <= 0) ||
				(f.Op == OpGreaterEqual && cmp < 0) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func hasFields(data map[string]interface{}, orders []Order) bool {
	for _, o := range orders {
		if _, ok := lookup(data, o.Path); !ok {
			return false
		}
	}
	return true
}

// compareValues orders numbers, strings, booleans and RFC3339 timestamps.
func compareValues(a, b interface{}) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		at, aerr := time.Parse(time.RFC3339Nano, av)
		bt, berr := time.Parse(time.RFC3339Nano, bv)
		if aerr == nil && berr == nil {
			return at.Compare(bt), true
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func applyUpdates(data map[string]interface{}, updates []Update) error {
	for _, u := range updates {
		parts := strings.Split(u.Path, ".")
		parent := data
		for _, part := range parts[:len(parts)-1] {
			child, ok := parent[part].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				parent[part] = child
			}
			parent = child
		}

		last := parts[len(parts)-1]
		if inc, ok := u.Value.(increment); ok {
			current, _ := parent[last].(float64)
			parent[last] = current + float64(inc.n)
			continue
		}
		parent[last] = u.Value
	}
	return nil
}

func normalize(v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeUpdates(updates []Update) ([]Update, error) {
	out := make([]Update, 0, len(updates))
	for _, u := range updates {
		if _, ok := u.Value.(increment); ok {
			out = append(out, u)
			continue
		}
		value, err := normalizeValue(u.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, Update{Path: u.Path, Value: value})
	}
	return out, nil
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

func newMemDocument(collection, id string, data map[string]interface{}) *Document {
	copied := deepCopy(data).(map[string]interface{})
	return &Document{
		ID:         id,
		Collection: collection,
		Exists:     true,
		data:       copied,
		decode: func(v interface{}) error {
			raw, err := json.Marshal(copied)
			if err != nil {
				return err
			}
			return json.Unmarshal(raw, v)
		},
	}
}

func errClosed() error {
	return errors.StoreUnavailable("Memory store is closed", nil)
}

type sliceIterator struct {
	docs []*Document
	pos  int
	err  error
}

func (i *sliceIterator) Next() (*Document, error) {
	if i.err != nil {
		return nil, i.err
	}
	if i.pos >= len(i.docs) {
		return nil, iterator.Done
	}
	doc := i.docs[i.pos]
	i.pos++
	return doc, nil
}

func (i *sliceIterator) Stop() {
	i.pos = len(i.docs)
}
