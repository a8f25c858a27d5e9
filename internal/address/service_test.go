package address

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javery-app/javery-backend/pkg/db"
	"github.com/javery-app/javery-backend/pkg/docstore"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/logger"
)

type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T) Service {
	t.Helper()
	client, err := db.OpenSQLiteMemory(uuid.NewString())
	require.NoError(t, err)
	clock := &tickingClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	store, err := docstore.NewSQL(client, docstore.WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	svc, err := NewService(store, logger.Nop())
	require.NoError(t, err)
	return svc
}

func input(name string, isDefault bool) AddInput {
	return AddInput{
		Name:          name,
		RecipientName: "Budi",
		PhoneNumber:   "08123456789",
		FullAddress:   "Jl. Merdeka No. 1, Jakarta",
		IsDefault:     isDefault,
	}
}

func TestAddDefaultUnsetsOthers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	home, err := svc.Add(ctx, "buyer-1", input("Home", true))
	require.NoError(t, err)
	_, err = svc.Add(ctx, "buyer-1", input("Gym", false))
	require.NoError(t, err)
	office, err := svc.Add(ctx, "buyer-1", input("Office", true))
	require.NoError(t, err)

	list, err := svc.List(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, office.ID, list[0].ID, "default comes first")
	assert.True(t, list[0].IsDefault)
	assert.Equal(t, "Gym", list[1].Name, "then newest first")
	assert.Equal(t, home.ID, list[2].ID)
	assert.False(t, list[2].IsDefault)

	defaults := 0
	for _, a := range list {
		if a.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestGetAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	notes := "pagar hijau"
	in := input("Home", false)
	in.Notes = &notes
	added, err := svc.Add(ctx, "buyer-1", in)
	require.NoError(t, err)

	got, err := svc.Get(ctx, "buyer-1", added.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jl. Merdeka No. 1, Jakarta", got.FullAddress)
	require.NotNil(t, got.Notes)
	assert.Equal(t, notes, *got.Notes)

	_, err = svc.Get(ctx, "buyer-2", added.ID)
	assert.ErrorIs(t, err, ErrAddressNotFound)

	require.NoError(t, svc.Delete(ctx, "buyer-1", added.ID))
	_, err = svc.Get(ctx, "buyer-1", added.ID)
	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestAddValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Add(ctx, "", input("Home", false))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	bad := input("Home", false)
	bad.FullAddress = "  "
	_, err = svc.Add(ctx, "buyer-1", bad)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Get(ctx, "buyer-1", "a/b")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
