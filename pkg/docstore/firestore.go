package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/logger"
)

// FirestoreStore implements Store on Cloud Firestore. Batches and
// transactions both run through RunTransaction so every multi-document write
// is atomic.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestore connects to the configured project and database.
func NewFirestore(ctx context.Context, gcp config.GCPConfig, cfg config.FirestoreConfig, logg *logger.Logger) (*FirestoreStore, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errors.New("gcp project id is required")
	}

	opts := []option.ClientOption{}
	if gcp.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	}

	databaseID := cfg.DatabaseID
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, gcp.ProjectID, databaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "database", databaseID), "firestore client initialized")
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) doc(ref Ref) (*firestore.DocumentRef, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	col := s.client.Collection(ref.Collection)
	if col == nil {
		return nil, fmt.Errorf("invalid collection path %q", ref.Collection)
	}
	return col.Doc(ref.ID), nil
}

func (s *FirestoreStore) Put(ctx context.Context, ref Ref, fields Fields) error {
	return s.Batch(ctx, Set(ref, fields))
}

func (s *FirestoreStore) Get(ctx context.Context, ref Ref) (*Snapshot, error) {
	docRef, err := s.doc(ref)
	if err != nil {
		return nil, err
	}
	snap, err := docRef.Get(ctx)
	if err != nil {
		return nil, translateFirestoreErr(err)
	}
	return firestoreSnapshot(ref, snap), nil
}

func (s *FirestoreStore) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	col := s.client.Collection(q.Collection)
	if col == nil {
		return nil, fmt.Errorf("invalid collection path %q", q.Collection)
	}

	query := col.Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, "==", firestoreValue(f.Value))
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Direction == Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, dir).OrderBy(firestore.DocumentID, dir)
		if len(q.StartAfter) > 0 {
			query = query.StartAfter(q.StartAfter...)
		}
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, translateFirestoreErr(err)
	}
	out := make([]*Snapshot, 0, len(docs))
	for _, snap := range docs {
		out = append(out, firestoreSnapshot(Doc(q.Collection, snap.Ref.ID), snap))
	}
	return out, nil
}

func (s *FirestoreStore) Batch(ctx context.Context, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}
	return s.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Apply(ops...)
	})
}

func (s *FirestoreStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{store: s, tx: tx})
	})
	return translateFirestoreErr(err)
}

func (s *FirestoreStore) NewID(collection string) string {
	return s.client.Collection(collection).NewDoc().ID
}

// Ping issues a cheap read; a missing document still proves connectivity.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection("_health").Doc("ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type firestoreTx struct {
	store *FirestoreStore
	tx    *firestore.Transaction
}

func (t *firestoreTx) Get(ref Ref) (*Snapshot, error) {
	docRef, err := t.store.doc(ref)
	if err != nil {
		return nil, err
	}
	snap, err := t.tx.Get(docRef)
	if err != nil {
		return nil, translateFirestoreErr(err)
	}
	return firestoreSnapshot(ref, snap), nil
}

func (t *firestoreTx) Apply(ops ...Op) error {
	for _, op := range ops {
		if err := op.validate(); err != nil {
			return err
		}
		docRef, err := t.store.doc(op.Ref)
		if err != nil {
			return err
		}
		switch op.Kind {
		case OpCreate:
			err = t.tx.Create(docRef, firestoreFields(op.Fields))
		case OpSet:
			err = t.tx.Set(docRef, firestoreFields(op.Fields))
		case OpMerge:
			err = t.tx.Set(docRef, firestoreFields(op.Fields), firestore.MergeAll)
		case OpUpdate:
			err = t.tx.Update(docRef, firestoreUpdates(op.Fields))
		case OpDelete:
			err = t.tx.Delete(docRef)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", op.Kind, op.Ref.Path(), err)
		}
	}
	return nil
}

func firestoreSnapshot(ref Ref, snap *firestore.DocumentSnapshot) *Snapshot {
	return &Snapshot{
		Ref:        ref,
		UpdateTime: snap.UpdateTime,
		decode:     snap.DataTo,
	}
}

func firestoreValue(v any) any {
	if _, ok := v.(serverTimestamp); ok {
		return firestore.ServerTimestamp
	}
	return v
}

func firestoreFields(fields Fields) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = firestoreValue(v)
	}
	return out
}

func firestoreUpdates(fields Fields) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: firestoreValue(v)})
	}
	return updates
}

func translateFirestoreErr(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case codes.Aborted:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
