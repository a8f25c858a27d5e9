package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/enums"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/push"
)

// Collection holds one profile document per uid.
const Collection = "users"

// Profile is the subset of users/{uid} the backend reads. Push tokens are
// optional: a user who never granted notification permission has none.
type Profile struct {
	UID             string  `firestore:"-" json:"uid"`
	DisplayName     *string `firestore:"displayName,omitempty" json:"displayName,omitempty"`
	BuyerPushToken  *string `firestore:"buyerPushToken,omitempty" json:"buyerPushToken,omitempty"`
	SellerPushToken *string `firestore:"sellerPushToken,omitempty" json:"sellerPushToken,omitempty"`
}

// TokenFor returns the token registered for role, if any.
func (p *Profile) TokenFor(role enums.PushTokenRole) *string {
	if p == nil {
		return nil
	}
	var token *string
	switch role {
	case enums.PushTokenRoleBuyer:
		token = p.BuyerPushToken
	case enums.PushTokenRoleSeller:
		token = p.SellerPushToken
	}
	if token == nil || strings.TrimSpace(*token) == "" {
		return nil
	}
	return token
}

// Repository reads and writes profile push tokens.
type Repository struct {
	store docstore.Store
	logg  *logger.Logger
}

func NewRepository(store docstore.Store, logg *logger.Logger) (*Repository, error) {
	if store == nil {
		return nil, fmt.Errorf("document store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Repository{store: store, logg: logg}, nil
}

// RegisterPushToken stores the device token under the role's profile field,
// leaving the rest of the profile intact.
func (r *Repository) RegisterPushToken(ctx context.Context, uid string, role enums.PushTokenRole, token string) error {
	if strings.TrimSpace(uid) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid push token role")
	}
	token = strings.TrimSpace(token)
	if !push.IsExpoPushToken(token) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid push token")
	}

	err := r.store.Batch(ctx, docstore.Merge(docstore.Doc(Collection, uid), docstore.Fields{
		role.ProfileField(): token,
		"updatedAt":         docstore.ServerTimestamp,
	}))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register push token")
	}
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{"uid": uid, "role": role}), "push token registered")
	return nil
}

// PushToken returns the uid's token for role. A missing profile or token is
// reported as nil, not as an error.
func (r *Repository) PushToken(ctx context.Context, uid string, role enums.PushTokenRole) (*string, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, nil
	}
	profile, err := r.Profile(ctx, uid)
	if err != nil {
		return nil, err
	}
	return profile.TokenFor(role), nil
}

// Profile loads users/{uid}; nil when the document does not exist.
func (r *Repository) Profile(ctx context.Context, uid string) (*Profile, error) {
	snap, err := r.store.Get(ctx, docstore.Doc(Collection, uid))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", uid, err)
	}
	var profile Profile
	if err := snap.DataTo(&profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", uid, err)
	}
	profile.UID = uid
	return &profile, nil
}
