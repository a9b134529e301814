package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/trimline-home/api/internal/domain"
	pfirestore "github.com/trimline-home/api/internal/platform/firestore"
	"github.com/trimline-home/api/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository persists delivery addresses in Firestore. Default-flag
// swaps happen inside single transactions so readers never see two defaults.
type AddressRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

type addressDocument struct {
	Recipient  string    `firestore:"recipient"`
	Phone      string    `firestore:"phone,omitempty"`
	Line1      string    `firestore:"line1"`
	Line2      string    `firestore:"line2,omitempty"`
	City       string    `firestore:"city"`
	Region     string    `firestore:"region,omitempty"`
	PostalCode string    `firestore:"postalCode"`
	Country    string    `firestore:"country"`
	IsDefault  bool      `firestore:"isDefault"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d addressDocument) toDomain(userID, id string) domain.Address {
	return domain.Address{
		ID:         id,
		UserID:     userID,
		Recipient:  d.Recipient,
		Phone:      d.Phone,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		Region:     d.Region,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		IsDefault:  d.IsDefault,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// List returns every address for the user ordered by creation time, oldest
// first. The ordering feeds the default-promotion policy.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var results []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
		}
		results = append(results, doc.toDomain(userID, snap.Ref.ID))
	}
	return results, nil
}

// Get loads a single address.
func (r *AddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	var doc addressDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", id, err)
	}
	return doc.toDomain(userID, id), nil
}

// HasAny reports whether the user has at least one saved address.
func (r *AddressRepository) HasAny(ctx context.Context, userID string) (bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return false, err
	}
	iter := coll.Limit(1).Documents(ctx)
	defer iter.Stop()
	_, err = iter.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, pfirestore.WrapError("addresses.hasAny", err)
	}
	return true, nil
}

// Upsert creates or updates an address. When the incoming address carries the
// default flag, every other default is cleared in the same transaction.
func (r *AddressRepository) Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}

	var docRef *firestore.DocumentRef
	if addressID != nil && strings.TrimSpace(*addressID) != "" {
		docRef = coll.Doc(strings.TrimSpace(*addressID))
	} else {
		docRef = coll.NewDoc()
	}

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var doc addressDocument
		snap, err := tx.Get(docRef)
		switch status.Code(err) {
		case codes.OK:
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode address %s: %w", docRef.ID, err)
			}
		case codes.NotFound:
			// New document.
		default:
			return err
		}

		var defaultSnaps []*firestore.DocumentSnapshot
		if addr.IsDefault {
			defaultSnaps, err = tx.Documents(coll.Where("isDefault", "==", true)).GetAll()
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
		}

		now := time.Now().UTC()
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now
		doc.Recipient = strings.TrimSpace(addr.Recipient)
		doc.Phone = strings.TrimSpace(addr.Phone)
		doc.Line1 = strings.TrimSpace(addr.Line1)
		doc.Line2 = strings.TrimSpace(addr.Line2)
		doc.City = strings.TrimSpace(addr.City)
		doc.Region = strings.TrimSpace(addr.Region)
		doc.PostalCode = strings.TrimSpace(addr.PostalCode)
		doc.Country = strings.ToUpper(strings.TrimSpace(addr.Country))
		doc.IsDefault = addr.IsDefault

		if err := tx.Set(docRef, doc); err != nil {
			return err
		}

		for _, other := range defaultSnaps {
			if other.Ref.ID == docRef.ID {
				continue
			}
			if err := tx.Update(other.Ref, []firestore.Update{
				{Path: "isDefault", Value: false},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		saved = doc.toDomain(userID, docRef.ID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.upsert", err)
	}
	return saved, nil
}

// SetDefault flags the address as the default and clears every other default
// within one transaction.
func (r *AddressRepository) SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	target := coll.Doc(id)

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(target)
		if err != nil {
			return err
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode address %s: %w", id, err)
		}

		defaultSnaps, err := tx.Documents(coll.Where("isDefault", "==", true)).GetAll()
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		now := time.Now().UTC()
		for _, other := range defaultSnaps {
			if other.Ref.ID == id {
				continue
			}
			if err := tx.Update(other.Ref, []firestore.Update{
				{Path: "isDefault", Value: false},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		doc.IsDefault = true
		doc.UpdatedAt = now
		if err := tx.Set(target, doc); err != nil {
			return err
		}
		saved = doc.toDomain(userID, id)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.setDefault", err)
	}
	return saved, nil
}

// Delete removes the address and, when promoteID is given, flags the promoted
// address as the new default in the same transaction.
func (r *AddressRepository) Delete(ctx context.Context, userID string, addressID string, promoteID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(coll.Doc(id)); err != nil {
			return err
		}
		if err := tx.Delete(coll.Doc(id)); err != nil {
			return err
		}
		if promote := strings.TrimSpace(promoteID); promote != "" && promote != id {
			if err := tx.Update(coll.Doc(promote), []firestore.Update{
				{Path: "isDefault", Value: true},
				{Path: "updatedAt", Value: time.Now().UTC()},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return pfirestore.WrapError("addresses.delete", err)
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressCollectionPattern, id)), nil
}
