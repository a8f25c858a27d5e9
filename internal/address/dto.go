package address

import "time"

// Address is a saved delivery address. Orders copy it by value.
type Address struct {
	ID            string    `firestore:"-" json:"id"`
	Name          string    `firestore:"name" json:"name"`
	RecipientName string    `firestore:"recipientName" json:"recipientName"`
	PhoneNumber   string    `firestore:"phoneNumber" json:"phoneNumber"`
	FullAddress   string    `firestore:"fullAddress" json:"fullAddress"`
	Notes         *string   `firestore:"notes,omitempty" json:"notes,omitempty"`
	IsDefault     bool      `firestore:"isDefault" json:"isDefault"`
	CreatedAt     time.Time `firestore:"createdAt" json:"createdAt"`
}

// AddInput carries a new address.
type AddInput struct {
	Name          string
	RecipientName string
	PhoneNumber   string
	FullAddress   string
	Notes         *string
	IsDefault     bool
}
