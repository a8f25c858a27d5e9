// Package docstore is the document database seam used by every Javery
// service. Documents are addressed by collection path and id, written as
// field maps and read back into tagged structs. Two backends satisfy the
// contract: Firestore in production and a gorm SQL table for local runs
// and tests.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when a create targets an existing document.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrConflict is returned when a document changed underneath a transaction
	// and the retry budget was exhausted.
	ErrConflict = errors.New("document changed during transaction")
)

var (
	fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	// fieldPathPattern also admits dotted paths into nested maps.
	fieldPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// Store is the document database contract.
type Store interface {
	// Put creates or fully replaces a document.
	Put(ctx context.Context, ref Ref, fields Fields) error
	// Get reads a document, returning ErrNotFound when it is absent.
	Get(ctx context.Context, ref Ref) (*Snapshot, error)
	// Query runs an equality-filtered, ordered, bounded collection scan.
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
	// Batch commits every op atomically.
	Batch(ctx context.Context, ops ...Op) error
	// RunTransaction runs fn with optimistic concurrency. Reads must happen
	// before writes. Writes commit only if nothing read has changed since.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// NewID allocates a fresh document id for the collection.
	NewID(collection string) string
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the view of the store inside RunTransaction.
type Tx interface {
	Get(ref Ref) (*Snapshot, error)
	Apply(ops ...Op) error
}

// Ref addresses a single document. Collection may be a nested path such as
// "users/u1/cart".
type Ref struct {
	Collection string
	ID         string
}

// Doc builds a Ref.
func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// Path renders the full document path.
func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

// Sub returns the path of a subcollection nested under the document.
func (r Ref) Sub(collection string) string {
	return r.Path() + "/" + collection
}

func (r Ref) validate() error {
	if strings.TrimSpace(r.ID) == "" || strings.Contains(r.ID, "/") {
		return fmt.Errorf("invalid document id %q", r.ID)
	}
	return validateCollection(r.Collection)
}

func validateCollection(path string) error {
	segments := strings.Split(path, "/")
	if path == "" || len(segments)%2 == 0 {
		return fmt.Errorf("invalid collection path %q", path)
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return fmt.Errorf("invalid collection path %q", path)
		}
	}
	return nil
}

// Fields is a top-level document field map.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp may be used as a field value. The backend replaces it with
// its commit time.
var ServerTimestamp = serverTimestamp{}

// OpKind enumerates the write operations.
type OpKind int

const (
	OpCreate OpKind = iota + 1
	OpSet
	OpMerge
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpSet:
		return "set"
	case OpMerge:
		return "merge"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is a single write inside a batch or transaction.
type Op struct {
	Kind   OpKind
	Ref    Ref
	Fields Fields
}

// Create writes a new document and fails with ErrAlreadyExists if one is there.
func Create(ref Ref, fields Fields) Op { return Op{Kind: OpCreate, Ref: ref, Fields: fields} }

// Set creates or replaces the whole document.
func Set(ref Ref, fields Fields) Op { return Op{Kind: OpSet, Ref: ref, Fields: fields} }

// Merge creates the document or overwrites only the given top-level fields.
func Merge(ref Ref, fields Fields) Op { return Op{Kind: OpMerge, Ref: ref, Fields: fields} }

// Update overwrites the given top-level fields and fails with ErrNotFound
// when the document is absent.
func Update(ref Ref, fields Fields) Op { return Op{Kind: OpUpdate, Ref: ref, Fields: fields} }

// Delete removes the document. Deleting an absent document is a no-op.
func Delete(ref Ref) Op { return Op{Kind: OpDelete, Ref: ref} }

func (o Op) validate() error {
	if err := o.Ref.validate(); err != nil {
		return err
	}
	switch o.Kind {
	case OpDelete:
		return nil
	case OpCreate, OpSet, OpMerge, OpUpdate:
		if o.Kind == OpUpdate && len(o.Fields) == 0 {
			return fmt.Errorf("update of %s has no fields", o.Ref.Path())
		}
		for name := range o.Fields {
			if !fieldNamePattern.MatchString(name) {
				return fmt.Errorf("invalid field name %q", name)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown op kind %d", int(o.Kind))
	}
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is an equality predicate on a field. Field may be a dotted path
// such as "storeStatus.isOpen".
type Filter struct {
	Field string
	Value any
}

// Query describes a collection scan. Results are ordered by OrderBy and then
// by document id in the same direction. StartAfter holds the OrderBy value
// and, optionally, the document id of the last row already seen.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	StartAfter []any
	Limit      int
}

func (q Query) validate() error {
	if err := validateCollection(q.Collection); err != nil {
		return err
	}
	for _, f := range q.Filters {
		if !fieldPathPattern.MatchString(f.Field) {
			return fmt.Errorf("invalid filter field %q", f.Field)
		}
	}
	if q.OrderBy != "" && !fieldNamePattern.MatchString(q.OrderBy) {
		return fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	if len(q.StartAfter) > 2 {
		return fmt.Errorf("start-after takes at most two values")
	}
	if len(q.StartAfter) > 0 && q.OrderBy == "" {
		return fmt.Errorf("start-after requires an order field")
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}

// Snapshot is a document as read from the store.
type Snapshot struct {
	Ref        Ref
	UpdateTime time.Time
	decode     func(dest any) error
}

// DataTo decodes the document into dest, a pointer to a tagged struct.
func (s *Snapshot) DataTo(dest any) error {
	if s == nil || s.decode == nil {
		return ErrNotFound
	}
	return s.decode(dest)
}
