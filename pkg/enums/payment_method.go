package enums

import "fmt"

// PaymentMethod describes how a buyer settles an order. Only cash on
// delivery is offered.
type PaymentMethod string

const (
	PaymentMethodCOD PaymentMethod = "cod"
)

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	return p == PaymentMethodCOD
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if PaymentMethod(value).IsValid() {
		return PaymentMethod(value), nil
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
