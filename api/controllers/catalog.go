package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/javery-app/javery-backend/api/responses"
	"github.com/javery-app/javery-backend/internal/products"
	"github.com/javery-app/javery-backend/internal/sellers"
	"github.com/javery-app/javery-backend/pkg/logger"
)

// SellersActive lists the stores currently taking orders.
func SellersActive(svc sellers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"sellers": list})
	}
}

func SellerDetail(svc sellers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, err := svc.Get(r.Context(), chi.URLParam(r, "sellerUid"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, seller)
	}
}

func SellerProducts(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListBySeller(r.Context(), chi.URLParam(r, "sellerUid"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"products": list})
	}
}

func ProductDetail(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		product, err := svc.Get(r.Context(), chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}
