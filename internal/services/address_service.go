package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trimline-home/api/internal/repositories"
)

var (
	errAddressRepositoryRequired = errors.New("address service: repository is required")
	errAddressClockRequired      = errors.New("address service: clock is required")
)

// ErrAddressInvalidInput indicates the caller supplied invalid input.
var ErrAddressInvalidInput = errors.New("address service: invalid input")

// ErrAddressNotFound indicates the requested address does not exist.
var ErrAddressNotFound = errors.New("address service: not found")

// ErrAddressUnavailable indicates a backend failure.
var ErrAddressUnavailable = errors.New("address service: unavailable")

// AddressServiceDeps wires the repository for address operations.
type AddressServiceDeps struct {
	Repository repositories.AddressRepository
	Clock      Clock
	Logger     Logger
}

type addressService struct {
	repo   repositories.AddressRepository
	now    func() time.Time
	logger Logger
}

// NewAddressService constructs an AddressService.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Repository == nil {
		return nil, errAddressRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errAddressClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &addressService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

func (s *addressService) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrAddressInvalidInput
	}
	addresses, err := s.repo.List(ctx, uid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if addresses == nil {
		addresses = []Address{}
	}
	return addresses, nil
}

func (s *addressService) GetAddress(ctx context.Context, userID string, addressID string) (Address, error) {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(addressID)
	if uid == "" || id == "" {
		return Address{}, ErrAddressInvalidInput
	}
	addr, err := s.repo.Get(ctx, uid, id)
	if err != nil {
		return Address{}, s.translateRepoError(err)
	}
	return addr, nil
}

// UpsertAddress creates or updates an address. The very first address a user
// saves becomes the default regardless of the flag on the command; later
// default changes swap the flag atomically in the repository.
func (s *addressService) UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Address{}, ErrAddressInvalidInput
	}
	addr := cmd.Address
	addr.UserID = uid
	if err := validateAddress(addr); err != nil {
		return Address{}, err
	}

	hasAny, err := s.repo.HasAny(ctx, uid)
	if err != nil {
		return Address{}, s.translateRepoError(err)
	}
	addr.IsDefault = cmd.IsDefault || !hasAny

	now := s.now()
	addr.UpdatedAt = now
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = now
	}

	var addressID *string
	if cmd.AddressID != nil && strings.TrimSpace(*cmd.AddressID) != "" {
		id := strings.TrimSpace(*cmd.AddressID)
		addressID = &id
	}

	saved, err := s.repo.Upsert(ctx, uid, addressID, addr)
	if err != nil {
		return Address{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *addressService) SetDefaultAddress(ctx context.Context, userID string, addressID string) (Address, error) {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(addressID)
	if uid == "" || id == "" {
		return Address{}, ErrAddressInvalidInput
	}
	addr, err := s.repo.SetDefault(ctx, uid, id)
	if err != nil {
		return Address{}, s.translateRepoError(err)
	}
	return addr, nil
}

// DeleteAddress removes an address. Deleting the default promotes another
// address in the same transaction: the named replacement when given, otherwise
// the earliest-created survivor.
func (s *addressService) DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error {
	uid := strings.TrimSpace(cmd.UserID)
	id := strings.TrimSpace(cmd.AddressID)
	if uid == "" || id == "" {
		return ErrAddressInvalidInput
	}

	target, err := s.repo.Get(ctx, uid, id)
	if err != nil {
		return s.translateRepoError(err)
	}

	promoteID := ""
	if target.IsDefault {
		promoteID, err = s.choosePromotion(ctx, uid, id, cmd.ReplacementID)
		if err != nil {
			return err
		}
	}

	if err := s.repo.Delete(ctx, uid, id, promoteID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// ResolveCheckoutAddress picks the address checkout ships to: the explicit
// choice when given, else the default, else the earliest saved address.
func (s *addressService) ResolveCheckoutAddress(ctx context.Context, userID string, explicitID string) (Address, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Address{}, ErrAddressInvalidInput
	}
	if id := strings.TrimSpace(explicitID); id != "" {
		return s.GetAddress(ctx, uid, id)
	}

	addresses, err := s.repo.List(ctx, uid)
	if err != nil {
		return Address{}, s.translateRepoError(err)
	}
	if len(addresses) == 0 {
		return Address{}, ErrAddressNotFound
	}
	for _, addr := range addresses {
		if addr.IsDefault {
			return addr, nil
		}
	}
	return addresses[0], nil
}

func (s *addressService) choosePromotion(ctx context.Context, userID, deletedID, replacementID string) (string, error) {
	replacement := strings.TrimSpace(replacementID)
	if replacement != "" {
		if replacement == deletedID {
			return "", fmt.Errorf("%w: replacement must differ from the deleted address", ErrAddressInvalidInput)
		}
		if _, err := s.repo.Get(ctx, userID, replacement); err != nil {
			if isRepoNotFound(err) {
				return "", fmt.Errorf("%w: replacement address not found", ErrAddressInvalidInput)
			}
			return "", s.translateRepoError(err)
		}
		return replacement, nil
	}

	// The list is ordered by creation time, so the first survivor is the
	// earliest-created address.
	addresses, err := s.repo.List(ctx, userID)
	if err != nil {
		return "", s.translateRepoError(err)
	}
	for _, addr := range addresses {
		if strings.TrimSpace(addr.ID) != deletedID {
			return addr.ID, nil
		}
	}
	return "", nil
}

func validateAddress(addr Address) error {
	missing := []string{}
	if strings.TrimSpace(addr.Recipient) == "" {
		missing = append(missing, "recipient")
	}
	if strings.TrimSpace(addr.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		missing = append(missing, "postal_code")
	}
	if strings.TrimSpace(addr.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrAddressInvalidInput, strings.Join(missing, ", "))
	}
	if len(strings.TrimSpace(addr.Country)) != 2 {
		return fmt.Errorf("%w: country must be a 2-letter ISO code", ErrAddressInvalidInput)
	}
	return nil
}

func (s *addressService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrAddressNotFound
		case repoErr.IsUnavailable():
			return ErrAddressUnavailable
		}
	}
	return ErrAddressUnavailable
}
