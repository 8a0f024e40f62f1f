// Package ledger is the document store of record. Documents live at
// slash-separated paths; the parent path of a document is its collection.
// Every write bumps the document's Version, which callers use for
// compare-and-swap updates.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bidding-marketplace/internal/biddingerrors"
)

// Document is a stored record. Field values are scalars (string, bool, numbers,
// time.Time) or nil.
type Document struct {
	Path       string
	Fields     map[string]any
	Version    int64
	UpdateTime time.Time
}

// ID returns the last path segment
func (d Document) ID() string {
	_, id := Split(d.Path)
	return id
}

// Change is one committed mutation. Before is nil for a create, After is nil
// for a delete.
type Change struct {
	Path   string
	Before *Document
	After  *Document
}

// Snapshot is what a collection subscriber receives: the full current content
// and the changes since the previous snapshot. The first snapshot of every
// subscription has Initial set and lists each existing document as a create.
type Snapshot struct {
	Collection string
	Documents  []Document
	Changes    []Change
	Initial    bool
}

// Unsubscribe stops a subscription. Safe to call more than once.
type Unsubscribe func()

// Store is the document database contract used by the repository layer.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	// Put creates or replaces the document at path.
	Put(ctx context.Context, path string, fields map[string]any) (Document, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, path string, fields map[string]any) (Document, error)
	// UpdateIf merges fields only when the stored version still equals expectedVersion.
	UpdateIf(ctx context.Context, path string, expectedVersion int64, fields map[string]any) (Document, error)
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, collection string) ([]Document, error)
	// Query lists the documents of collection whose field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)
	SubscribeCollection(ctx context.Context, collection string, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error)
}

// Join builds a path from segments
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split separates a document path into its collection and id
func Split(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// ValidatePath rejects empty paths and paths with empty segments
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("ledger: %w - empty path", biddingerrors.ErrMalformedDocument)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("ledger: %w - empty segment in %q", biddingerrors.ErrMalformedDocument, path)
		}
	}
	return nil
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (d Document) clone() Document {
	d.Fields = copyFields(d.Fields)
	return d
}
