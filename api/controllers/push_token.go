package controllers

import (
	"context"
	"net/http"

	"github.com/javery-app/javery-backend/api/middleware"
	"github.com/javery-app/javery-backend/api/responses"
	"github.com/javery-app/javery-backend/api/validators"
	"github.com/javery-app/javery-backend/pkg/enums"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/logger"
)

type pushTokenRegistrar interface {
	RegisterPushToken(ctx context.Context, uid string, role enums.PushTokenRole, token string) error
}

// PushTokenRegister stores the device's Expo token for the buyer or seller
// app. Registering again overwrites the previous token for that role.
func PushTokenRegister(repo pushTokenRegistrar, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload registerPushTokenRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := enums.ParsePushTokenRole(payload.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid push token role"))
			return
		}
		uid := middleware.UserIDFromContext(r.Context())
		if err := repo.RegisterPushToken(r.Context(), uid, role, payload.Token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

type registerPushTokenRequest struct {
	Role  string `json:"role" validate:"required,oneof=buyer seller"`
	Token string `json:"token" validate:"required,expotoken"`
}
