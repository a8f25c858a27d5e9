package products

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/javery-app/javery-backend/pkg/docstore"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/format"
)

// Collection holds the catalog, one document per product.
const Collection = "products"

// ErrProductNotFound is returned for an unknown product id.
var ErrProductNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "product not found")

// Product is a catalog entry. Sellers flip IsAvailable when they run out.
type Product struct {
	ID            string           `firestore:"-" json:"id"`
	SellerUID     string           `firestore:"sellerUid" json:"sellerUid"`
	SellerName    *string          `firestore:"sellerName,omitempty" json:"sellerName,omitempty"`
	Name          string           `firestore:"name" json:"name"`
	Price         float64          `firestore:"price" json:"price"`
	Description   string           `firestore:"description" json:"description"`
	ImageURL      string           `firestore:"imageUrl" json:"imageUrl"`
	Category      string           `firestore:"category" json:"category"`
	IsAvailable   bool             `firestore:"isAvailable" json:"isAvailable"`
	StoreLocation *format.Location `firestore:"storeLocation,omitempty" json:"storeLocation,omitempty"`
}

// Service reads the product catalog.
type Service interface {
	Get(ctx context.Context, productID string) (*Product, error)
	ListBySeller(ctx context.Context, sellerUID string) ([]Product, error)
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

func (s *service) Get(ctx context.Context, productID string) (*Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" || strings.Contains(productID, "/") {
		return nil, ErrProductNotFound
	}
	snap, err := s.store.Get(ctx, docstore.Doc(Collection, productID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return decode(snap)
}

// ListBySeller returns every product of the seller, available or not,
// sorted by name.
func (s *service) ListBySeller(ctx context.Context, sellerUID string) ([]Product, error) {
	sellerUID = strings.TrimSpace(sellerUID)
	if sellerUID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller uid is required")
	}
	snaps, err := s.store.Query(ctx, docstore.Query{
		Collection: Collection,
		Filters:    []docstore.Filter{{Field: "sellerUid", Value: sellerUID}},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	out := make([]Product, 0, len(snaps))
	for _, snap := range snaps {
		product, err := decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *product)
	}
	slices.SortFunc(out, func(a, b Product) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

func decode(snap *docstore.Snapshot) (*Product, error) {
	var product Product
	if err := snap.DataTo(&product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode product")
	}
	product.ID = snap.Ref.ID
	return &product, nil
}
