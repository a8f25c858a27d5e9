package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/logger"
)

type testModel struct {
	ID   string `gorm:"primaryKey"`
	Name string
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := OpenSQLiteMemory(uuid.NewString())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.DB().AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return client
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{ID: "a", Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := client.DB().Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{ID: "b", Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := client.DB().Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to keep 1 record, got %d", count)
	}
}

func TestDuplicateInsertIsUniqueViolation(t *testing.T) {
	client := newTestClient(t)

	if err := client.DB().Create(&testModel{ID: "dup"}).Error; err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := client.DB().Create(&testModel{ID: "dup"}).Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestIsUniqueViolationPostgres(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "documents_pkey"})
	if !IsUniqueViolation(err, "documents_pkey") {
		t.Fatal("expected pg unique violation")
	}
	if IsUniqueViolation(err, "other_constraint") {
		t.Fatal("constraint name should be honored")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil is never a violation")
	}
}

func TestClientReportsDialect(t *testing.T) {
	client := newTestClient(t)
	if client.Dialect() != "sqlite" {
		t.Fatalf("expected sqlite dialect, got %q", client.Dialect())
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := newTestClient(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{ID: "p", Name: "panicked"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	}()

	var count int64
	if err := client.DB().Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected panic to roll back, got %d records", count)
	}
}

func TestQueryLoggerNeedsLoggerAndThreshold(t *testing.T) {
	if queryLogger(nil, time.Second) != gormlogger.Discard {
		t.Fatal("nil logger should discard")
	}
	if queryLogger(logger.Nop(), 0) != gormlogger.Discard {
		t.Fatal("zero threshold should discard")
	}
	if queryLogger(logger.Nop(), time.Second) == gormlogger.Discard {
		t.Fatal("expected a slow query logger")
	}
}

func TestDialectorFor(t *testing.T) {
	if _, err := dialectorFor(config.DBConfig{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	d, err := dialectorFor(config.DBConfig{Driver: config.StoreDriverSQLite, DSN: "file::memory:"})
	if err != nil || d.Name() != "sqlite" {
		t.Fatalf("expected sqlite dialector, got %v %v", d, err)
	}
}
