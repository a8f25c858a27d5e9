package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/javery-app/javery-backend/api/middleware"
	"github.com/javery-app/javery-backend/api/responses"
	"github.com/javery-app/javery-backend/api/validators"
	"github.com/javery-app/javery-backend/internal/address"
	"github.com/javery-app/javery-backend/pkg/logger"
)

func AddressList(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"addresses": list})
	}
}

func AddressAdd(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addAddressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		saved, err := svc.Add(r.Context(), middleware.UserIDFromContext(r.Context()), address.AddInput{
			Name:          validators.SanitizeString(payload.Name, 80),
			RecipientName: validators.SanitizeString(payload.RecipientName, 120),
			PhoneNumber:   validators.SanitizeString(payload.PhoneNumber, 32),
			FullAddress:   validators.SanitizeString(payload.FullAddress, 500),
			Notes:         payload.Notes,
			IsDefault:     payload.IsDefault,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, saved)
	}
}

func AddressDelete(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := middleware.UserIDFromContext(r.Context())
		if err := svc.Delete(r.Context(), uid, chi.URLParam(r, "addressId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

type addAddressRequest struct {
	Name          string  `json:"name" validate:"required"`
	RecipientName string  `json:"recipientName" validate:"required"`
	PhoneNumber   string  `json:"phoneNumber" validate:"required"`
	FullAddress   string  `json:"fullAddress" validate:"required"`
	Notes         *string `json:"notes,omitempty"`
	IsDefault     bool    `json:"isDefault"`
}
