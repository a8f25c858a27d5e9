package enums

import "fmt"

// PushTokenRole selects which device token on a user profile is addressed.
// A single account can act as buyer and seller from different devices.
type PushTokenRole string

const (
	PushTokenRoleBuyer  PushTokenRole = "buyer"
	PushTokenRoleSeller PushTokenRole = "seller"
)

// String implements fmt.Stringer.
func (r PushTokenRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known PushTokenRole.
func (r PushTokenRole) IsValid() bool {
	return r == PushTokenRoleBuyer || r == PushTokenRoleSeller
}

// ProfileField returns the users/{uid} field holding the token for the role.
func (r PushTokenRole) ProfileField() string {
	switch r {
	case PushTokenRoleBuyer:
		return "buyerPushToken"
	case PushTokenRoleSeller:
		return "sellerPushToken"
	default:
		return ""
	}
}

// ParsePushTokenRole converts raw input into a PushTokenRole.
func ParsePushTokenRole(value string) (PushTokenRole, error) {
	if r := PushTokenRole(value); r.IsValid() {
		return r, nil
	}
	return "", fmt.Errorf("invalid push token role %q", value)
}
