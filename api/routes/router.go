package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/javery-app/javery-backend/api/controllers"
	ordercontrollers "github.com/javery-app/javery-backend/api/controllers/orders"
	"github.com/javery-app/javery-backend/api/middleware"
	"github.com/javery-app/javery-backend/internal/address"
	"github.com/javery-app/javery-backend/internal/cart"
	"github.com/javery-app/javery-backend/internal/orders"
	"github.com/javery-app/javery-backend/internal/products"
	"github.com/javery-app/javery-backend/internal/sellers"
	"github.com/javery-app/javery-backend/internal/users"
	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/logger"
	pkgredis "github.com/javery-app/javery-backend/pkg/redis"
)

// RedisStore is the slice of the redis client the API uses for idempotency,
// rate limits and readiness.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
	Ping(ctx context.Context) error
}

// Deps are the services behind the API.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	Store     controllers.Pinger
	Redis     RedisStore
	Orders    orders.Service
	Cart      cart.Service
	Addresses address.Service
	Sellers   sellers.Service
	Products  products.Service
	Users     *users.Repository
	Gatherer  prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	ready := map[string]controllers.Pinger{}
	if deps.Store != nil {
		ready["store"] = deps.Store
	}
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	var idemStore pkgredis.IdempotencyStore
	if deps.Redis != nil {
		idemStore = deps.Redis
	}
	orderCreatePolicy := middleware.NewRateLimitPolicy(
		"order-create",
		cfg.RateLimit.OrderCreateWindow,
		cfg.RateLimit.OrderCreateUserLimit,
		cfg.RateLimit.OrderCreateIPLimit,
	)
	var limiter middleware.RateLimiterStore
	if deps.Redis != nil {
		limiter = deps.Redis
	}

	catalog := ordercontrollers.Catalog{Sellers: deps.Sellers, Products: deps.Products}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(
				middleware.RateLimit(orderCreatePolicy, limiter, logg),
				middleware.Idempotency(idemStore, middleware.OrderCreateIdempotencyTTL, logg),
			).Post("/", ordercontrollers.Create(deps.Orders, deps.Addresses, catalog, logg))
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		})

		r.Route("/seller/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.SellerList(deps.Orders, logg))
			r.With(middleware.Idempotency(idemStore, middleware.StatusUpdateIdempotencyTTL, logg)).
				Post("/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
		})

		r.Route("/sellers", func(r chi.Router) {
			r.Get("/", controllers.SellersActive(deps.Sellers, logg))
			r.Get("/{sellerUid}", controllers.SellerDetail(deps.Sellers, logg))
			r.Get("/{sellerUid}/products", controllers.SellerProducts(deps.Products, logg))
		})
		r.Get("/products/{productId}", controllers.ProductDetail(deps.Products, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartList(deps.Cart, logg))
			r.Post("/", controllers.CartAdd(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Patch("/{productId}", controllers.CartUpdateQuantity(deps.Cart, logg))
			r.Delete("/{productId}", controllers.CartRemove(deps.Cart, logg))
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", controllers.AddressList(deps.Addresses, logg))
			r.Post("/", controllers.AddressAdd(deps.Addresses, logg))
			r.Delete("/{addressId}", controllers.AddressDelete(deps.Addresses, logg))
		})

		r.Put("/me/push-token", controllers.PushTokenRegister(deps.Users, logg))
	})

	return r
}
