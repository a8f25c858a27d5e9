package orders

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/javery-app/javery-backend/api/middleware"
	"github.com/javery-app/javery-backend/api/responses"
	"github.com/javery-app/javery-backend/api/validators"
	"github.com/javery-app/javery-backend/internal/address"
	internalorders "github.com/javery-app/javery-backend/internal/orders"
	"github.com/javery-app/javery-backend/pkg/enums"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/format"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/pagination"
)

// now is the clock behind createdAgo.
var now = time.Now

type addressLookup interface {
	Get(ctx context.Context, uid, addressID string) (*address.Address, error)
}

// Create places a single-seller order for the caller. The shipping address
// is either inline or a saved address id, copied by value. The store must be
// open and every product available.
func Create(svc internalorders.Service, addresses addressLookup, catalog Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		buyerUID := middleware.UserIDFromContext(ctx)
		if buyerUID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := payload.toInput(buyerUID, middleware.UserNameFromContext(ctx))
		if payload.AddressID != nil && !payload.PickupOrder {
			if addresses == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
				return
			}
			saved, err := addresses.Get(ctx, buyerUID, strings.TrimSpace(*payload.AddressID))
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			input.ShippingAddress = internalorders.ShippingAddress{
				Name:          saved.Name,
				RecipientName: saved.RecipientName,
				PhoneNumber:   saved.PhoneNumber,
				FullAddress:   saved.FullAddress,
				Notes:         saved.Notes,
			}
		}

		if err := catalog.checkout(ctx, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		orderID, err := svc.CreateOrder(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteCreated(w, map[string]string{"orderId": orderID})
	}
}

// List returns the caller's orders as a buyer, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return listHandler(svc.ListOrdersForBuyer, logg)
}

// SellerList returns the orders placed with the caller as seller.
func SellerList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return listHandler(svc.ListOrdersForSeller, logg)
}

type listFunc func(ctx context.Context, uid string, params pagination.Params) (*internalorders.OrderList, error)

func listHandler(list listFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		uid := middleware.UserIDFromContext(ctx)
		if uid == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := list(ctx, uid, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Detail returns one order to its buyer or seller. Anyone else gets
// NOT_FOUND so order ids cannot be discovered by guessing.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		uid := middleware.UserIDFromContext(ctx)

		lat, lng, hasLocation, err := validators.ParseQueryCoordinates(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.GetOrder(ctx, chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if uid == "" || (order.BuyerUID != uid && order.SellerUID != uid) {
			responses.WriteError(ctx, logg, w, internalorders.ErrOrderNotFound)
			return
		}

		resp := orderDetailResponse{
			Order:      order,
			CreatedAgo: format.TimeAgo(order.CreatedAt, now()),
		}
		if hasLocation {
			resp.BuyerDistance = format.Distance(&format.Location{Latitude: lat, Longitude: lng}, order.BuyerLocation)
		}
		responses.WriteSuccess(w, resp)
	}
}

// UpdateStatus moves an order along the state machine. Only the order's
// seller may call it.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		uid := middleware.UserIDFromContext(ctx)
		orderID := chi.URLParam(r, "orderId")

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown order status").
				WithDetails(map[string]string{"status": payload.Status}))
			return
		}

		current, err := svc.GetOrder(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		switch {
		case uid != "" && current.SellerUID == uid:
		case uid != "" && current.BuyerUID == uid:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can update order status"))
			return
		default:
			responses.WriteError(ctx, logg, w, internalorders.ErrOrderNotFound)
			return
		}

		updated, err := svc.UpdateOrderStatus(ctx, internalorders.UpdateStatusInput{
			OrderID:  orderID,
			Status:   status,
			ActorUID: uid,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}
