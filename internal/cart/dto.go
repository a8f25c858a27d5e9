package cart

import "time"

// Item is one product in a buyer's cart. The document id is the product id,
// so a buyer holds at most one entry per product.
type Item struct {
	ProductID    string    `firestore:"productId" json:"productId"`
	ProductName  string    `firestore:"productName" json:"productName"`
	ProductPrice float64   `firestore:"productPrice" json:"productPrice"`
	ProductImage *string   `firestore:"productImage,omitempty" json:"productImage,omitempty"`
	Quantity     int       `firestore:"quantity" json:"quantity"`
	SellerUID    string    `firestore:"sellerUid" json:"sellerUid"`
	SellerName   string    `firestore:"sellerName" json:"sellerName"`
	UpdatedAt    time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// AddItemInput carries a product being put into the cart.
type AddItemInput struct {
	ProductID    string
	ProductName  string
	ProductPrice float64
	ProductImage *string
	Quantity     int
	SellerUID    string
	SellerName   string
}
