package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javery-app/javery-backend/api/middleware"
	"github.com/javery-app/javery-backend/internal/address"
	"github.com/javery-app/javery-backend/internal/cart"
	internalorders "github.com/javery-app/javery-backend/internal/orders"
	"github.com/javery-app/javery-backend/internal/products"
	"github.com/javery-app/javery-backend/internal/sellers"
	"github.com/javery-app/javery-backend/pkg/db"
	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/outbox"
	"github.com/javery-app/javery-backend/pkg/pagination"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	router    http.Handler
	store     docstore.Store
	orders    internalorders.Service
	cart      cart.Service
	addresses address.Service
	clock     *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, err := db.OpenSQLiteMemory(uuid.NewString())
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store, err := docstore.NewSQL(client, docstore.WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	logg := logger.Nop()
	orderSvc, err := internalorders.NewService(store, outbox.NewService(logg), logg, internalorders.WithClock(clock.Now))
	require.NoError(t, err)
	cartSvc, err := cart.NewService(store)
	require.NoError(t, err)
	addressSvc, err := address.NewService(store, logg)
	require.NoError(t, err)
	sellerSvc, err := sellers.NewService(store)
	require.NoError(t, err)
	productSvc, err := products.NewService(store)
	require.NoError(t, err)
	seedCatalog(t, store)

	prev := now
	now = clock.Now
	t.Cleanup(func() { now = prev })

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithUserID(req.Context(), req.Header.Get("X-Test-User"))
			ctx = middleware.WithUserName(ctx, "Budi")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/orders", Create(orderSvc, addressSvc, Catalog{Sellers: sellerSvc, Products: productSvc}, logg))
	r.Get("/orders", List(orderSvc, logg))
	r.Get("/orders/{orderId}", Detail(orderSvc, logg))
	r.Get("/seller/orders", SellerList(orderSvc, logg))
	r.Post("/seller/orders/{orderId}/status", UpdateStatus(orderSvc, logg))

	return &harness{router: r, store: store, orders: orderSvc, cart: cartSvc, addresses: addressSvc, clock: clock}
}

// seedCatalog opens seller-1 with the two products orderBody buys.
func seedCatalog(t *testing.T, store docstore.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, docstore.Doc(sellers.Collection, "seller-1"), docstore.Fields{
		"uid":         "seller-1",
		"storeName":   "Warung Sari",
		"storeStatus": map[string]any{"isOpen": true},
	}))
	for id, product := range map[string]docstore.Fields{
		"p1": {"sellerUid": "seller-1", "name": "Kopi Susu", "price": 10000, "imageUrl": "https://img.example/p1.jpg", "isAvailable": true},
		"p2": {"sellerUid": "seller-1", "name": "Roti Bakar", "price": 5000, "isAvailable": true},
		"p3": {"sellerUid": "seller-1", "name": "Es Teh", "price": 3000, "isAvailable": true},
	} {
		require.NoError(t, store.Put(ctx, docstore.Doc(products.Collection, id), product))
	}
}

func (h *harness) do(t *testing.T, method, path, uid string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if uid != "" {
		req.Header.Set("X-Test-User", uid)
	}
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Error
}

func orderBody() map[string]any {
	return map[string]any{
		"sellerUid":  "seller-1",
		"sellerName": "Warung Sari",
		"items": []map[string]any{
			{"productId": "p1", "productName": "Kopi Susu", "productPrice": 10000, "quantity": 2},
			{"productId": "p2", "productName": "Roti Bakar", "productPrice": 5000, "quantity": 1},
		},
		"totalAmount": 25000,
		"shippingAddress": map[string]any{
			"name":          "Home",
			"recipientName": "Budi",
			"phoneNumber":   "08123456789",
			"fullAddress":   "Jl. Merdeka No. 1, Jakarta",
		},
		"buyerLocation": map[string]any{"latitude": -6.2, "longitude": 106.8},
	}
}

func (h *harness) placeOrder(t *testing.T, buyer string) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/orders", buyer, orderBody())
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	orderID, _ := decodeData(t, resp)["orderId"].(string)
	require.NotEmpty(t, orderID)
	return orderID
}

func TestCreateOrderClearsPurchasedCartItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := h.cart.AddItem(ctx, "buyer-1", cart.AddItemInput{ProductID: id, ProductName: id, ProductPrice: 1000, Quantity: 1, SellerUID: "seller-1"})
		require.NoError(t, err)
	}

	orderID := h.placeOrder(t, "buyer-1")

	order, err := h.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", order.BuyerUID)
	assert.Equal(t, "Budi", order.BuyerName)
	assert.Equal(t, "waiting", order.Status.String())
	assert.Equal(t, "seller-1", order.Items[0].SellerUID)

	remaining, err := h.cart.List(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "p3", remaining[0].ProductID)
}

func TestCreateOrderFromSavedAddress(t *testing.T) {
	h := newHarness(t)
	saved, err := h.addresses.Add(context.Background(), "buyer-1", address.AddInput{
		Name:          "Office",
		RecipientName: "Budi",
		PhoneNumber:   "0811111111",
		FullAddress:   "Jl. Sudirman 5",
	})
	require.NoError(t, err)

	body := orderBody()
	delete(body, "shippingAddress")
	body["addressId"] = saved.ID
	resp := h.do(t, http.MethodPost, "/orders", "buyer-1", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	order, err := h.orders.GetOrder(context.Background(), decodeData(t, resp)["orderId"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Jl. Sudirman 5", order.ShippingAddress.FullAddress)
	assert.Equal(t, "Office", order.ShippingAddress.Name)
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/orders", "", orderBody())
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	body := orderBody()
	body["items"] = []map[string]any{}
	resp = h.do(t, http.MethodPost, "/orders", "buyer-1", body)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	body = orderBody()
	body["totalAmount"] = 100
	resp = h.do(t, http.MethodPost, "/orders", "buyer-1", body)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, resp)["code"])

	body = orderBody()
	delete(body, "shippingAddress")
	body["addressId"] = "missing"
	resp = h.do(t, http.MethodPost, "/orders", "buyer-1", body)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreateOrderUsesCatalogListing(t *testing.T) {
	h := newHarness(t)
	body := orderBody()
	body["sellerName"] = "Old Name"
	body["items"] = []map[string]any{
		{"productId": "p1", "productName": "Kopi", "productPrice": 1, "quantity": 2},
		{"productId": "p2", "productName": "Roti", "productPrice": 1, "quantity": 1},
	}
	resp := h.do(t, http.MethodPost, "/orders", "buyer-1", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	order, err := h.orders.GetOrder(context.Background(), decodeData(t, resp)["orderId"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Warung Sari", order.SellerName)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Kopi Susu", order.Items[0].ProductName)
	assert.Equal(t, 10000.0, order.Items[0].ProductPrice)
	require.NotNil(t, order.Items[0].ProductImage)
	assert.Equal(t, "https://img.example/p1.jpg", *order.Items[0].ProductImage)
	assert.Equal(t, "Warung Sari", order.Items[1].SellerName)
}

func TestCreateOrderRequiresOpenStoreAndAvailableProducts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.Batch(ctx, docstore.Update(docstore.Doc(products.Collection, "p2"), docstore.Fields{"isAvailable": false})))
	resp := h.do(t, http.MethodPost, "/orders", "buyer-1", orderBody())
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	apiErr := decodeError(t, resp)
	assert.Equal(t, "STATE_CONFLICT", apiErr["code"])
	assert.Equal(t, map[string]any{"productId": "p2", "reason": "unavailable"}, apiErr["details"])

	body := orderBody()
	body["items"] = []map[string]any{{"productId": "gone", "productName": "Gone", "productPrice": 1000, "quantity": 1}}
	resp = h.do(t, http.MethodPost, "/orders", "buyer-1", body)
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, map[string]any{"productId": "gone", "reason": "not_found"}, decodeError(t, resp)["details"])

	require.NoError(t, h.store.Put(ctx, docstore.Doc(products.Collection, "other"), docstore.Fields{
		"sellerUid": "seller-2", "name": "Bakso", "price": 15000, "isAvailable": true,
	}))
	body = orderBody()
	body["items"] = []map[string]any{{"productId": "other", "productName": "Bakso", "productPrice": 15000, "quantity": 1}}
	resp = h.do(t, http.MethodPost, "/orders", "buyer-1", body)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	require.NoError(t, h.store.Batch(ctx, docstore.Update(docstore.Doc(sellers.Collection, "seller-1"), docstore.Fields{
		"storeStatus": map[string]any{"isOpen": false},
	})))
	body = orderBody()
	body["items"] = []map[string]any{{"productId": "p1", "productName": "Kopi Susu", "productPrice": 10000, "quantity": 1}}
	body["totalAmount"] = 10000
	resp = h.do(t, http.MethodPost, "/orders", "buyer-1", body)
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, map[string]any{"sellerUid": "seller-1"}, decodeError(t, resp)["details"])

	body["sellerUid"] = "nobody"
	resp = h.do(t, http.MethodPost, "/orders", "buyer-1", body)
	assert.Equal(t, http.StatusConflict, resp.Code)

	page, err := h.orders.ListOrdersForBuyer(ctx, "buyer-1", pagination.Params{Limit: pagination.MaxLimit})
	require.NoError(t, err)
	assert.Empty(t, page.Orders)
}

func TestDetailVisibleToPartiesOnly(t *testing.T) {
	h := newHarness(t)
	orderID := h.placeOrder(t, "buyer-1")
	h.clock.Advance(5 * time.Minute)

	resp := h.do(t, http.MethodGet, "/orders/"+orderID, "buyer-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	data := decodeData(t, resp)
	assert.Equal(t, orderID, data["id"])
	assert.Equal(t, "5 minutes ago", data["createdAgo"])
	assert.NotContains(t, data, "buyerDistance")

	resp = h.do(t, http.MethodGet, "/orders/"+orderID+"?lat=-6.2&lng=106.8", "seller-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "0 m", decodeData(t, resp)["buyerDistance"])

	resp = h.do(t, http.MethodGet, "/orders/"+orderID, "stranger", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = h.do(t, http.MethodGet, "/orders/"+orderID+"?lat=1", "buyer-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpdateStatusBySeller(t *testing.T) {
	h := newHarness(t)
	orderID := h.placeOrder(t, "buyer-1")
	path := "/seller/orders/" + orderID + "/status"

	resp := h.do(t, http.MethodPost, path, "seller-1", map[string]string{"status": "processing"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "processing", decodeData(t, resp)["status"])

	resp = h.do(t, http.MethodPost, path, "buyer-1", map[string]string{"status": "delivering"})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = h.do(t, http.MethodPost, path, "stranger", map[string]string{"status": "delivering"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = h.do(t, http.MethodPost, path, "seller-1", map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpdateStatusRejectsSkippedStep(t *testing.T) {
	h := newHarness(t)
	orderID := h.placeOrder(t, "buyer-1")

	resp := h.do(t, http.MethodPost, "/seller/orders/"+orderID+"/status", "seller-1", map[string]string{"status": "completed"})
	require.Equal(t, http.StatusConflict, resp.Code)
	apiErr := decodeError(t, resp)
	assert.Equal(t, "STATE_CONFLICT", apiErr["code"])
	assert.Equal(t, map[string]any{"from": "waiting", "to": "completed"}, apiErr["details"])
}

func TestDetailCompletesExpiredDelivery(t *testing.T) {
	h := newHarness(t)
	orderID := h.placeOrder(t, "buyer-1")
	path := "/seller/orders/" + orderID + "/status"
	for _, status := range []string{"processing", "delivering"} {
		resp := h.do(t, http.MethodPost, path, "seller-1", map[string]string{"status": status})
		require.Equal(t, http.StatusOK, resp.Code)
	}

	h.clock.Advance(31 * time.Minute)
	resp := h.do(t, http.MethodGet, "/orders/"+orderID, "buyer-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "completed", decodeData(t, resp)["status"])
}

func TestListPaginates(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.placeOrder(t, "buyer-1")
		h.clock.Advance(time.Minute)
	}

	resp := h.do(t, http.MethodGet, "/orders?limit=2", "buyer-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	page := decodeData(t, resp)
	assert.Len(t, page["orders"], 2)
	cursor, _ := page["nextCursor"].(string)
	require.NotEmpty(t, cursor)

	resp = h.do(t, http.MethodGet, "/orders?limit=2&cursor="+cursor, "buyer-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decodeData(t, resp)["orders"], 1)

	resp = h.do(t, http.MethodGet, "/seller/orders", "seller-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decodeData(t, resp)["orders"], 3)

	resp = h.do(t, http.MethodGet, "/orders?limit=0", "buyer-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
