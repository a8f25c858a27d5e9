package address

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/javery-app/javery-backend/pkg/docstore"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/logger"
)

// ErrAddressNotFound is returned when a user has no address with the id.
var ErrAddressNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "address not found")

// CollectionPath returns the address subcollection of a user.
func CollectionPath(uid string) string {
	return docstore.Doc("users", uid).Sub("addresses")
}

type Service interface {
	Add(ctx context.Context, uid string, input AddInput) (*Address, error)
	Get(ctx context.Context, uid, addressID string) (*Address, error)
	List(ctx context.Context, uid string) ([]Address, error)
	Delete(ctx context.Context, uid, addressID string) error
}

type service struct {
	store docstore.Store
	logg  *logger.Logger
}

func NewService(store docstore.Store, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{store: store, logg: logg}, nil
}

// Add stores the address. A new default clears the flag on every other
// address in the same batch.
func (s *service) Add(ctx context.Context, uid string, input AddInput) (*Address, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validateAdd(input); err != nil {
		return nil, err
	}

	collection := CollectionPath(uid)
	id := s.store.NewID(collection)
	fields := docstore.Fields{
		"name":          strings.TrimSpace(input.Name),
		"recipientName": strings.TrimSpace(input.RecipientName),
		"phoneNumber":   strings.TrimSpace(input.PhoneNumber),
		"fullAddress":   strings.TrimSpace(input.FullAddress),
		"isDefault":     input.IsDefault,
		"createdAt":     docstore.ServerTimestamp,
	}
	if input.Notes != nil {
		fields["notes"] = *input.Notes
	}
	ops := []docstore.Op{docstore.Create(docstore.Doc(collection, id), fields)}

	if input.IsDefault {
		defaults, err := s.store.Query(ctx, docstore.Query{
			Collection: collection,
			Filters:    []docstore.Filter{{Field: "isDefault", Value: true}},
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default addresses")
		}
		for _, snap := range defaults {
			ops = append(ops, docstore.Update(snap.Ref, docstore.Fields{"isDefault": false}))
		}
	}

	if err := s.store.Batch(ctx, ops...); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save address")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"address_id": id, "is_default": input.IsDefault}), "address added")

	return &Address{
		ID:            id,
		Name:          fields["name"].(string),
		RecipientName: fields["recipientName"].(string),
		PhoneNumber:   fields["phoneNumber"].(string),
		FullAddress:   fields["fullAddress"].(string),
		Notes:         input.Notes,
		IsDefault:     input.IsDefault,
	}, nil
}

func (s *service) Get(ctx context.Context, uid, addressID string) (*Address, error) {
	if strings.TrimSpace(addressID) == "" || strings.Contains(addressID, "/") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id is invalid")
	}
	snap, err := s.store.Get(ctx, docstore.Doc(CollectionPath(uid), addressID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	return decode(snap)
}

// List returns the default address first, then newest first.
func (s *service) List(ctx context.Context, uid string) ([]Address, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	snaps, err := s.store.Query(ctx, docstore.Query{
		Collection: CollectionPath(uid),
		OrderBy:    "createdAt",
		Direction:  docstore.Desc,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}

	out := make([]Address, 0, len(snaps))
	for _, snap := range snaps {
		addr, err := decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *addr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IsDefault && !out[j].IsDefault
	})
	return out, nil
}

func (s *service) Delete(ctx context.Context, uid, addressID string) error {
	if strings.TrimSpace(uid) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(addressID) == "" || strings.Contains(addressID, "/") {
		return pkgerrors.New(pkgerrors.CodeValidation, "address id is invalid")
	}
	if err := s.store.Batch(ctx, docstore.Delete(docstore.Doc(CollectionPath(uid), addressID))); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete address")
	}
	return nil
}

func decode(snap *docstore.Snapshot) (*Address, error) {
	var addr Address
	if err := snap.DataTo(&addr); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode address")
	}
	addr.ID = snap.Ref.ID
	return &addr, nil
}

func validateAdd(input AddInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "address name is required")
	case strings.TrimSpace(input.RecipientName) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient name is required")
	case strings.TrimSpace(input.PhoneNumber) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "phone number is required")
	case strings.TrimSpace(input.FullAddress) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "full address is required")
	}
	return nil
}
