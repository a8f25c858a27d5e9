package sellers

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/javery-app/javery-backend/pkg/docstore"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/format"
)

// Collection holds one store profile per seller.
const Collection = "sellers"

// ErrSellerNotFound is returned when no store profile carries the uid.
var ErrSellerNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")

// StoreStatus is toggled by the seller from the app.
type StoreStatus struct {
	IsOpen      bool    `firestore:"isOpen" json:"isOpen"`
	PingMessage *string `firestore:"pingMessage,omitempty" json:"pingMessage,omitempty"`
}

// Seller is the public store profile.
type Seller struct {
	UID              string           `firestore:"uid" json:"uid"`
	StoreName        string           `firestore:"storeName" json:"storeName"`
	StoreDescription string           `firestore:"storeDescription" json:"storeDescription"`
	StoreStatus      StoreStatus      `firestore:"storeStatus" json:"storeStatus"`
	PhotoURL         *string          `firestore:"photoURL,omitempty" json:"photoURL,omitempty"`
	StoreLocation    *format.Location `firestore:"storeLocation,omitempty" json:"storeLocation,omitempty"`
}

// Service reads store profiles. Sellers manage them from the app.
type Service interface {
	Get(ctx context.Context, uid string) (*Seller, error)
	IsActive(ctx context.Context, uid string) (bool, error)
	ListActive(ctx context.Context) ([]Seller, error)
}

type service struct {
	store docstore.Store
}

func NewService(store docstore.Store) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store required")
	}
	return &service{store: store}, nil
}

// Get looks the profile up by its uid field. Profile document ids are not
// guaranteed to match the uid.
func (s *service) Get(ctx context.Context, uid string) (*Seller, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, ErrSellerNotFound
	}
	snaps, err := s.store.Query(ctx, docstore.Query{
		Collection: Collection,
		Filters:    []docstore.Filter{{Field: "uid", Value: uid}},
		Limit:      1,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	if len(snaps) == 0 {
		return nil, ErrSellerNotFound
	}
	var seller Seller
	if err := snaps[0].DataTo(&seller); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode seller")
	}
	return &seller, nil
}

// IsActive reports whether the seller exists and has the store open.
func (s *service) IsActive(ctx context.Context, uid string) (bool, error) {
	seller, err := s.Get(ctx, uid)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return seller.StoreStatus.IsOpen, nil
}

// ListActive returns the open stores sorted by name.
func (s *service) ListActive(ctx context.Context) ([]Seller, error) {
	snaps, err := s.store.Query(ctx, docstore.Query{
		Collection: Collection,
		Filters:    []docstore.Filter{{Field: "storeStatus.isOpen", Value: true}},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active sellers")
	}
	out := make([]Seller, 0, len(snaps))
	for _, snap := range snaps {
		var seller Seller
		if err := snap.DataTo(&seller); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode seller")
		}
		out = append(out, seller)
	}
	slices.SortFunc(out, func(a, b Seller) int {
		return cmp.Or(strings.Compare(a.StoreName, b.StoreName), strings.Compare(a.UID, b.UID))
	})
	return out, nil
}
