package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/javery-app/javery-backend/api/middleware"
	"github.com/javery-app/javery-backend/api/responses"
	"github.com/javery-app/javery-backend/api/validators"
	cartsvc "github.com/javery-app/javery-backend/internal/cart"
	"github.com/javery-app/javery-backend/pkg/logger"
)

func CartList(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.List(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

// CartAdd puts a product in the caller's cart, replacing an earlier entry
// for the same product.
func CartAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.AddItem(r.Context(), middleware.UserIDFromContext(r.Context()), cartsvc.AddItemInput{
			ProductID:    validators.SanitizeString(payload.ProductID, 128),
			ProductName:  validators.SanitizeString(payload.ProductName, 200),
			ProductPrice: payload.ProductPrice,
			ProductImage: payload.ProductImage,
			Quantity:     payload.Quantity,
			SellerUID:    validators.SanitizeString(payload.SellerUID, 128),
			SellerName:   validators.SanitizeString(payload.SellerName, 120),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, item)
	}
}

// CartUpdateQuantity sets the quantity; zero or less removes the item.
func CartUpdateQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		uid := middleware.UserIDFromContext(r.Context())
		if err := svc.UpdateQuantity(r.Context(), uid, chi.URLParam(r, "productId"), *payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func CartRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := middleware.UserIDFromContext(r.Context())
		if err := svc.RemoveItem(r.Context(), uid, chi.URLParam(r, "productId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Clear(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

type addCartItemRequest struct {
	ProductID    string  `json:"productId" validate:"required"`
	ProductName  string  `json:"productName" validate:"required"`
	ProductPrice float64 `json:"productPrice" validate:"gte=0"`
	ProductImage *string `json:"productImage,omitempty"`
	Quantity     int     `json:"quantity" validate:"gt=0"`
	SellerUID    string  `json:"sellerUid" validate:"required"`
	SellerName   string  `json:"sellerName"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}
