package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javery-app/javery-backend/api/middleware"
	"github.com/javery-app/javery-backend/internal/address"
	"github.com/javery-app/javery-backend/internal/cart"
	"github.com/javery-app/javery-backend/internal/users"
	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/db"
	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/enums"
	"github.com/javery-app/javery-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	resp := httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "dev", resp.Header().Get("X-Javery-Env"))
	assert.Contains(t, resp.Body.String(), `"live"`)
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	resp := httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"store": stubPinger{}, "redis": stubPinger{}}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"store": stubPinger{}, "redis": stubPinger{err: errors.New("down")}}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), `"dependency":"redis"`)
}

type apiHarness struct {
	router http.Handler
	store  docstore.Store
	users  *users.Repository
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	client, err := db.OpenSQLiteMemory(uuid.NewString())
	require.NoError(t, err)
	store, err := docstore.NewSQL(client)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	logg := logger.Nop()
	cartSvc, err := cart.NewService(store)
	require.NoError(t, err)
	addressSvc, err := address.NewService(store, logg)
	require.NoError(t, err)
	userRepo, err := users.NewRepository(store, logg)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), req.Header.Get("X-Test-User"))))
		})
	})
	r.Get("/cart", CartList(cartSvc, logg))
	r.Post("/cart", CartAdd(cartSvc, logg))
	r.Delete("/cart", CartClear(cartSvc, logg))
	r.Patch("/cart/{productId}", CartUpdateQuantity(cartSvc, logg))
	r.Delete("/cart/{productId}", CartRemove(cartSvc, logg))
	r.Get("/addresses", AddressList(addressSvc, logg))
	r.Post("/addresses", AddressAdd(addressSvc, logg))
	r.Delete("/addresses/{addressId}", AddressDelete(addressSvc, logg))
	r.Put("/me/push-token", PushTokenRegister(userRepo, logg))

	return &apiHarness{router: r, store: store, users: userRepo}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Test-User", "buyer-1")
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func (h *apiHarness) cartItems(t *testing.T) []map[string]any {
	t.Helper()
	resp := h.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data struct {
			Items []map[string]any `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data.Items
}

func TestCartLifecycle(t *testing.T) {
	h := newAPIHarness(t)

	for _, id := range []string{"p1", "p2"} {
		resp := h.do(t, http.MethodPost, "/cart", map[string]any{
			"productId": id, "productName": "Kopi", "productPrice": 10000, "quantity": 1, "sellerUid": "seller-1",
		})
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	}
	assert.Len(t, h.cartItems(t), 2)

	resp := h.do(t, http.MethodPatch, "/cart/p1", map[string]any{"quantity": 3})
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = h.do(t, http.MethodPatch, "/cart/p2", map[string]any{"quantity": 0})
	require.Equal(t, http.StatusNoContent, resp.Code)
	items := h.cartItems(t)
	require.Len(t, items, 1)
	assert.EqualValues(t, 3, items[0]["quantity"])

	resp = h.do(t, http.MethodPatch, "/cart/missing", map[string]any{"quantity": 2})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = h.do(t, http.MethodPatch, "/cart/p1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(t, http.MethodDelete, "/cart", nil)
	require.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, h.cartItems(t))
}

func TestCartAddValidation(t *testing.T) {
	h := newAPIHarness(t)
	resp := h.do(t, http.MethodPost, "/cart", map[string]any{"productId": "p1", "productName": "Kopi", "quantity": 0, "sellerUid": "s"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAddressesDefaultFirst(t *testing.T) {
	h := newAPIHarness(t)

	add := func(name string, isDefault bool) string {
		resp := h.do(t, http.MethodPost, "/addresses", map[string]any{
			"name": name, "recipientName": "Budi", "phoneNumber": "0812", "fullAddress": "Jl. " + name, "isDefault": isDefault,
		})
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
		var envelope struct {
			Data address.Address `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
		return envelope.Data.ID
	}
	add("Home", true)
	officeID := add("Office", true)

	resp := h.do(t, http.MethodGet, "/addresses", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data struct {
			Addresses []address.Address `json:"addresses"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Len(t, envelope.Data.Addresses, 2)
	assert.Equal(t, officeID, envelope.Data.Addresses[0].ID)
	assert.True(t, envelope.Data.Addresses[0].IsDefault)
	assert.False(t, envelope.Data.Addresses[1].IsDefault)

	resp = h.do(t, http.MethodDelete, "/addresses/"+officeID, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestPushTokenRegister(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(t, http.MethodPut, "/me/push-token", map[string]any{"role": "seller", "token": "ExponentPushToken[abc123]"})
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	token, err := h.users.PushToken(context.Background(), "buyer-1", enums.PushTokenRoleSeller)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "ExponentPushToken[abc123]", *token)

	resp = h.do(t, http.MethodPut, "/me/push-token", map[string]any{"role": "admin", "token": "ExponentPushToken[abc123]"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(t, http.MethodPut, "/me/push-token", map[string]any{"role": "buyer", "token": "not-a-token"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
