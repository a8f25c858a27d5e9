package orders

import (
	"context"
	"strings"

	internalorders "github.com/javery-app/javery-backend/internal/orders"
	"github.com/javery-app/javery-backend/internal/products"
	"github.com/javery-app/javery-backend/internal/sellers"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
)

type sellerLookup interface {
	Get(ctx context.Context, uid string) (*sellers.Seller, error)
}

type productLookup interface {
	Get(ctx context.Context, productID string) (*products.Product, error)
}

// Catalog is what checkout reads before an order is placed.
type Catalog struct {
	Sellers  sellerLookup
	Products productLookup
}

// checkout refuses orders for a closed store or an unavailable product,
// then copies the catalog's names, prices and images onto the items so the
// order records what the seller actually lists.
func (c Catalog) checkout(ctx context.Context, input *internalorders.CreateOrderInput) error {
	if c.Sellers == nil || c.Products == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable")
	}

	seller, err := c.Sellers.Get(ctx, input.SellerUID)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return sellerClosed(input.SellerUID)
	}
	if err != nil {
		return err
	}
	if !seller.StoreStatus.IsOpen {
		return sellerClosed(input.SellerUID)
	}
	if name := strings.TrimSpace(seller.StoreName); name != "" {
		input.SellerName = name
	}

	for i := range input.Items {
		item := &input.Items[i]
		product, err := c.Products.Get(ctx, item.ProductID)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return productUnavailable(item.ProductID, "not_found")
		}
		if err != nil {
			return err
		}
		if product.SellerUID != input.SellerUID {
			return pkgerrors.New(pkgerrors.CodeValidation, "every item must come from the order's seller").
				WithDetails(map[string]string{"productId": item.ProductID})
		}
		if !product.IsAvailable {
			return productUnavailable(item.ProductID, "unavailable")
		}
		item.ProductName = product.Name
		item.ProductPrice = product.Price
		if product.ImageURL != "" {
			image := product.ImageURL
			item.ProductImage = &image
		}
		item.SellerName = input.SellerName
	}
	return nil
}

func sellerClosed(uid string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "seller is not accepting orders").
		WithDetails(map[string]string{"sellerUid": uid})
}

func productUnavailable(productID, reason string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "product is not available").
		WithDetails(map[string]string{"productId": productID, "reason": reason})
}
