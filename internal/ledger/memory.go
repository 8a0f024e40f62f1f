package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bidding-marketplace/internal/biddingerrors"
)

// MemoryStore is a concurrency-safe in-memory implementation of Store
type MemoryStore struct {
	mu          sync.RWMutex
	docs        map[string]Document // key: path -> value: document
	subscribers map[string]map[*subscriber]struct{}
	now         func() time.Time
}

// NewMemoryStore creates a new in-memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:        make(map[string]Document),
		subscribers: make(map[string]map[*subscriber]struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the document stored at path
func (s *MemoryStore) Get(_ context.Context, path string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("get %s: %w", path, biddingerrors.ErrDocumentNotFound)
	}
	return doc.clone(), nil
}

// Put creates or replaces the document at path
func (s *MemoryStore) Put(_ context.Context, path string, fields map[string]any) (Document, error) {
	if err := ValidatePath(path); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before, existed := s.docs[path]
	doc := Document{Path: path, Fields: copyFields(fields), Version: before.Version + 1, UpdateTime: s.now()}
	s.docs[path] = doc

	change := Change{Path: path, After: ptr(doc.clone())}
	if existed {
		change.Before = ptr(before.clone())
	}
	s.publishLocked(change)
	return doc.clone(), nil
}

// Update merges fields into the document at path
func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) (Document, error) {
	return s.update(path, -1, fields)
}

// UpdateIf merges fields when the stored version equals expectedVersion
func (s *MemoryStore) UpdateIf(_ context.Context, path string, expectedVersion int64, fields map[string]any) (Document, error) {
	return s.update(path, expectedVersion, fields)
}

func (s *MemoryStore) update(path string, expectedVersion int64, fields map[string]any) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, ok := s.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("update %s: %w", path, biddingerrors.ErrDocumentNotFound)
	}
	if expectedVersion >= 0 && before.Version != expectedVersion {
		return Document{}, fmt.Errorf("update %s: expected version %d, found %d: %w",
			path, expectedVersion, before.Version, biddingerrors.ErrVersionConflict)
	}

	merged := copyFields(before.Fields)
	for k, v := range fields {
		merged[k] = v
	}
	doc := Document{Path: path, Fields: merged, Version: before.Version + 1, UpdateTime: s.now()}
	s.docs[path] = doc

	s.publishLocked(Change{Path: path, Before: ptr(before.clone()), After: ptr(doc.clone())})
	return doc.clone(), nil
}

// Delete removes the document at path
func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, ok := s.docs[path]
	if !ok {
		return nil
	}
	delete(s.docs, path)

	s.publishLocked(Change{Path: path, Before: ptr(before.clone())})
	return nil
}

// List returns every document directly under collection, ordered by path
func (s *MemoryStore) List(_ context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(collection), nil
}

// Query returns the documents of collection whose field equals value
func (s *MemoryStore) Query(_ context.Context, collection, field string, value any) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Document, 0)
	for _, doc := range s.listLocked(collection) {
		if v, ok := doc.Fields[field]; ok && v == value {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

func (s *MemoryStore) listLocked(collection string) []Document {
	docs := make([]Document, 0)
	for path, doc := range s.docs {
		if parent, _ := Split(path); parent == collection {
			docs = append(docs, doc.clone())
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs
}

// SubscribeCollection delivers snapshots of collection to onSnapshot, in commit
// order, from a goroutine owned by the subscription.
func (s *MemoryStore) SubscribeCollection(ctx context.Context, collection string, onSnapshot func(Snapshot), _ func(error)) (Unsubscribe, error) {
	sub := newSubscriber(onSnapshot)

	s.mu.Lock()
	initial := s.listLocked(collection)
	changes := make([]Change, 0, len(initial))
	for i := range initial {
		changes = append(changes, Change{Path: initial[i].Path, After: ptr(initial[i].clone())})
	}
	sub.push(Snapshot{Collection: collection, Documents: initial, Changes: changes, Initial: true})

	if s.subscribers[collection] == nil {
		s.subscribers[collection] = make(map[*subscriber]struct{})
	}
	s.subscribers[collection][sub] = struct{}{}
	s.mu.Unlock()

	go sub.run()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers[collection], sub)
			s.mu.Unlock()
			sub.stop()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()

	return unsubscribe, nil
}

func (s *MemoryStore) publishLocked(change Change) {
	collection, _ := Split(change.Path)
	subs := s.subscribers[collection]
	if len(subs) == 0 {
		return
	}

	snap := Snapshot{Collection: collection, Documents: s.listLocked(collection), Changes: []Change{change}}
	for sub := range subs {
		sub.push(snap)
	}
}

// subscriber queues snapshots without blocking writers; callbacks may write
// back to the store.
type subscriber struct {
	mu       sync.Mutex
	queue    []Snapshot
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	handle   func(Snapshot)
}

func newSubscriber(handle func(Snapshot)) *subscriber {
	return &subscriber{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		handle: handle,
	}
}

func (sub *subscriber) push(snap Snapshot) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, snap)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) run() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}

		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			snap := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			select {
			case <-sub.done:
				return
			default:
			}
			sub.handle(snap)
		}
	}
}

func (sub *subscriber) stop() {
	sub.stopOnce.Do(func() { close(sub.done) })
}

func ptr[T any](v T) *T {
	return &v
}
