package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javery-app/javery-backend/pkg/db"
)

const (
	documentsTable  = "documents"
	maxTxAttempts   = 5
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// documentRow is one document. Data holds the JSON encoded field map and
// Version increments on every write so transactions can detect lost updates.
type documentRow struct {
	Collection string `gorm:"column:collection;primaryKey"`
	ID         string `gorm:"column:id;primaryKey"`
	Data       string `gorm:"column:data;not null"`
	Version    int64  `gorm:"column:version;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return documentsTable }

// SQLStore implements Store on a single gorm table. Postgres is used for
// deployments without Firestore, sqlite for local runs and tests.
type SQLStore struct {
	db  *db.Client
	now func() time.Time
}

// SQLOption customizes a SQLStore.
type SQLOption func(*SQLStore)

// WithClock overrides the commit clock used for server timestamps.
func WithClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSQL wraps a gorm client.
func NewSQL(client *db.Client, opts ...SQLOption) (*SQLStore, error) {
	if client == nil {
		return nil, errors.New("database client required")
	}
	s := &SQLStore{db: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureSchema creates the documents table on sqlite. Postgres schemas are
// owned by the goose migrations.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if s.db.Dialect() != dialectSQLite {
		return nil
	}
	if err := s.db.DB().WithContext(ctx).AutoMigrate(&documentRow{}); err != nil {
		return fmt.Errorf("migrating documents table: %w", err)
	}
	return nil
}

func (s *SQLStore) Put(ctx context.Context, ref Ref, fields Fields) error {
	return s.Batch(ctx, Set(ref, fields))
}

func (s *SQLStore) Get(ctx context.Context, ref Ref) (*Snapshot, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	row, err := loadRow(s.db.DB().WithContext(ctx), ref)
	if err != nil {
		return nil, err
	}
	return rowSnapshot(row), nil
}

func (s *SQLStore) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	stmt := s.db.DB().WithContext(ctx).Where("collection = ?", q.Collection)
	for _, f := range q.Filters {
		str, ok := f.Value.(string)
		if !ok || strings.Contains(f.Field, ".") {
			continue
		}
		switch s.db.Dialect() {
		case dialectPostgres:
			stmt = stmt.Where("data->>? = ?", f.Field, str)
		case dialectSQLite:
			stmt = stmt.Where("json_extract(data, ?) = ?", "$."+f.Field, str)
		}
	}

	var rows []documentRow
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}

	docs := make([]decodedRow, 0, len(rows))
	for _, row := range rows {
		fields, err := row.fields()
		if err != nil {
			return nil, err
		}
		if matchesFilters(fields, q.Filters) {
			docs = append(docs, decodedRow{row: &row, fields: fields})
		}
	}

	sortRows(docs, q.OrderBy, q.Direction)
	docs = applyStartAfter(docs, q)
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	out := make([]*Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, rowSnapshot(d.row))
	}
	return out, nil
}

func (s *SQLStore) Batch(ctx context.Context, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}
	return s.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Apply(ops...)
	})
}

// RunTransaction retries fn when a write loses an optimistic version race.
func (s *SQLStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.db.WithTx(ctx, func(gtx *gorm.DB) error {
			return fn(ctx, &sqlTx{
				tx:       gtx,
				now:      s.now().UTC(),
				versions: map[Ref]int64{},
			})
		})
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (s *SQLStore) NewID(string) string {
	return uuid.NewString()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	tx  *gorm.DB
	now time.Time
	// versions remembers the version of every document read or written in
	// this transaction; zero marks a document observed as absent.
	versions map[Ref]int64
}

func (t *sqlTx) Get(ref Ref) (*Snapshot, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	row, err := loadRow(t.tx, ref)
	if errors.Is(err, ErrNotFound) {
		t.versions[ref] = 0
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	t.versions[ref] = row.Version
	return rowSnapshot(row), nil
}

func (t *sqlTx) Apply(ops ...Op) error {
	for _, op := range ops {
		if err := op.validate(); err != nil {
			return err
		}
		if err := t.apply(op); err != nil {
			return fmt.Errorf("%s %s: %w", op.Kind, op.Ref.Path(), err)
		}
	}
	return nil
}

func (t *sqlTx) apply(op Op) error {
	if op.Kind == OpCreate {
		return t.insert(op.Ref, op.Fields)
	}

	existing, err := loadRow(t.tx, op.Ref)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if expected, seen := t.versions[op.Ref]; seen {
		current := int64(0)
		if found {
			current = existing.Version
		}
		if current != expected {
			return ErrConflict
		}
	}

	switch op.Kind {
	case OpDelete:
		if !found {
			return nil
		}
		return t.write(existing, nil, true)
	case OpUpdate:
		if !found {
			return ErrNotFound
		}
		fallthrough
	case OpMerge:
		if !found {
			return t.insert(op.Ref, op.Fields)
		}
		merged, err := existing.fields()
		if err != nil {
			return err
		}
		for k, v := range op.Fields {
			merged[k] = canonicalValue(v, t.now)
		}
		return t.write(existing, merged, false)
	case OpSet:
		if !found {
			return t.insert(op.Ref, op.Fields)
		}
		return t.write(existing, canonicalFields(op.Fields, t.now), false)
	default:
		return fmt.Errorf("unknown op kind %d", int(op.Kind))
	}
}

func (t *sqlTx) insert(ref Ref, fields Fields) error {
	payload, err := json.Marshal(canonicalFields(fields, t.now))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	row := documentRow{
		Collection: ref.Collection,
		ID:         ref.ID,
		Data:       string(payload),
		Version:    1,
		CreatedAt:  t.now,
		UpdatedAt:  t.now,
	}
	if err := t.tx.Create(&row).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			if _, seen := t.versions[ref]; seen {
				return ErrConflict
			}
			return ErrAlreadyExists
		}
		return err
	}
	t.versions[ref] = row.Version
	return nil
}

// write replaces or deletes a row guarded by the version it was loaded at.
// Losing the guard means another writer committed first.
func (t *sqlTx) write(existing *documentRow, fields map[string]any, remove bool) error {
	ref := Doc(existing.Collection, existing.ID)
	guard := t.tx.Model(&documentRow{}).
		Where("collection = ? AND id = ? AND version = ?", existing.Collection, existing.ID, existing.Version)

	var res *gorm.DB
	if remove {
		res = guard.Delete(&documentRow{})
	} else {
		payload, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		res = guard.Updates(map[string]any{
			"data":       string(payload),
			"version":    existing.Version + 1,
			"updated_at": t.now,
		})
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	if remove {
		t.versions[ref] = 0
	} else {
		t.versions[ref] = existing.Version + 1
	}
	return nil
}

func loadRow(conn *gorm.DB, ref Ref) (*documentRow, error) {
	var row documentRow
	err := conn.Where("collection = ? AND id = ?", ref.Collection, ref.ID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref.Path(), err)
	}
	return &row, nil
}

func (r documentRow) fields() (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(r.Data), &fields); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", r.Collection, r.ID, err)
	}
	return fields, nil
}

func rowSnapshot(row *documentRow) *Snapshot {
	data := []byte(row.Data)
	return &Snapshot{
		Ref:        Doc(row.Collection, row.ID),
		UpdateTime: row.UpdatedAt,
		decode: func(dest any) error {
			return json.Unmarshal(data, dest)
		},
	}
}

type decodedRow struct {
	row    *documentRow
	fields map[string]any
}

func matchesFilters(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if compareValues(lookupPath(fields, f.Field), canonicalValue(f.Value, time.Time{})) != 0 {
			return false
		}
	}
	return true
}

// lookupPath walks a dotted path through nested maps. A missing segment
// reads as nil.
func lookupPath(fields map[string]any, path string) any {
	var cur any = fields
	for _, segment := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[segment]
	}
	return cur
}

func sortRows(docs []decodedRow, orderBy string, dir Direction) {
	sort.SliceStable(docs, func(i, j int) bool {
		c := 0
		if orderBy != "" {
			c = compareValues(docs[i].fields[orderBy], docs[j].fields[orderBy])
		}
		if c == 0 {
			c = compareValues(docs[i].row.ID, docs[j].row.ID)
		}
		if dir == Desc {
			return c > 0
		}
		return c < 0
	})
}

// applyStartAfter drops every row at or before the cursor position.
func applyStartAfter(docs []decodedRow, q Query) []decodedRow {
	if len(q.StartAfter) == 0 {
		return docs
	}
	cursorValue := canonicalValue(q.StartAfter[0], time.Time{})
	var cursorID any
	if len(q.StartAfter) > 1 {
		cursorID = q.StartAfter[1]
	}

	out := docs[:0]
	for _, d := range docs {
		c := compareValues(d.fields[q.OrderBy], cursorValue)
		if c == 0 && cursorID != nil {
			c = compareValues(d.row.ID, cursorID)
		}
		if q.Direction == Desc {
			c = -c
		}
		if c > 0 {
			out = append(out, d)
		}
	}
	return out
}
