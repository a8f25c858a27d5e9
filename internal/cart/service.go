package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/javery-app/javery-backend/pkg/docstore"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
)

// CollectionPath returns the cart subcollection of a user.
func CollectionPath(uid string) string {
	return docstore.Doc("users", uid).Sub("cart")
}

// ItemRef addresses one cart entry.
func ItemRef(uid, productID string) docstore.Ref {
	return docstore.Doc(CollectionPath(uid), productID)
}

// Service manages the buyer cart.
type Service interface {
	List(ctx context.Context, uid string) ([]Item, error)
	AddItem(ctx context.Context, uid string, input AddItemInput) (*Item, error)
	UpdateQuantity(ctx context.Context, uid, productID string, quantity int) error
	RemoveItem(ctx context.Context, uid, productID string) error
	Clear(ctx context.Context, uid string) error
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

func (s *service) List(ctx context.Context, uid string) ([]Item, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	snaps, err := s.store.Query(ctx, docstore.Query{
		Collection: CollectionPath(uid),
		OrderBy:    "updatedAt",
		Direction:  docstore.Desc,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart")
	}
	items := make([]Item, 0, len(snaps))
	for _, snap := range snaps {
		var item Item
		if err := snap.DataTo(&item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cart item")
		}
		item.ProductID = snap.Ref.ID
		items = append(items, item)
	}
	return items, nil
}

// AddItem writes the entry, replacing any previous entry for the product.
func (s *service) AddItem(ctx context.Context, uid string, input AddItemInput) (*Item, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validateAddItem(input); err != nil {
		return nil, err
	}

	fields := docstore.Fields{
		"productId":    input.ProductID,
		"productName":  input.ProductName,
		"productPrice": input.ProductPrice,
		"quantity":     input.Quantity,
		"sellerUid":    input.SellerUID,
		"sellerName":   input.SellerName,
		"updatedAt":    docstore.ServerTimestamp,
	}
	if input.ProductImage != nil {
		fields["productImage"] = *input.ProductImage
	}
	if err := s.store.Put(ctx, ItemRef(uid, input.ProductID), fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}

	return &Item{
		ProductID:    input.ProductID,
		ProductName:  input.ProductName,
		ProductPrice: input.ProductPrice,
		ProductImage: input.ProductImage,
		Quantity:     input.Quantity,
		SellerUID:    input.SellerUID,
		SellerName:   input.SellerName,
	}, nil
}

// UpdateQuantity deletes the entry when quantity drops to zero or below.
func (s *service) UpdateQuantity(ctx context.Context, uid, productID string, quantity int) error {
	if strings.TrimSpace(uid) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(productID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	ref := ItemRef(uid, productID)
	if quantity <= 0 {
		return s.remove(ctx, ref)
	}
	err := s.store.Batch(ctx, docstore.Update(ref, docstore.Fields{
		"quantity":  quantity,
		"updatedAt": docstore.ServerTimestamp,
	}))
	if errors.Is(err, docstore.ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart quantity")
	}
	return nil
}

func (s *service) RemoveItem(ctx context.Context, uid, productID string) error {
	if strings.TrimSpace(uid) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(productID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return s.remove(ctx, ItemRef(uid, productID))
}

// Clear deletes every entry in one batch.
func (s *service) Clear(ctx context.Context, uid string) error {
	items, err := s.List(ctx, uid)
	if err != nil {
		return err
	}
	ops := make([]docstore.Op, 0, len(items))
	for _, item := range items {
		ops = append(ops, docstore.Delete(ItemRef(uid, item.ProductID)))
	}
	if err := s.store.Batch(ctx, ops...); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) remove(ctx context.Context, ref docstore.Ref) error {
	if err := s.store.Batch(ctx, docstore.Delete(ref)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return nil
}

func validateAddItem(input AddItemInput) error {
	switch {
	case strings.TrimSpace(input.ProductID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	case strings.Contains(input.ProductID, "/"):
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is invalid")
	case strings.TrimSpace(input.SellerUID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "seller uid is required")
	case input.Quantity <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	case input.ProductPrice < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	return nil
}
