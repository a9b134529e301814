package repositories

import (
	"context"
	"time"

	domain "github.com/trimline-home/api/internal/domain"
)

// RepositoryError categorises persistence failures so services can translate
// them without knowing the backend.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository owns cart persistence with optimistic locking on writes.
type CartRepository interface {
	// GetCart loads the user's cart. A missing cart is a not-found error; the
	// service decides whether to create one.
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	// UpsertCart writes the whole cart document. When expectedUpdatedAt is
	// non-nil the write fails with a conflict if the stored timestamp differs.
	UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error)
	// ClearCart removes every line and selection but keeps the cart document.
	ClearCart(ctx context.Context, userID string) error
}

// AddressRepository stores delivery addresses per user. Default-flag changes
// are transactional: at most one address per user carries the flag at any
// point visible to readers.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	HasAny(ctx context.Context, userID string) (bool, error)
	Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error)
	// SetDefault marks the address as default and unsets every other address
	// in the same transaction.
	SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error)
	// Delete removes the address; when promoteID is non-empty the promoted
	// address becomes the default within the same transaction.
	Delete(ctx context.Context, userID string, addressID string, promoteID string) error
}

// OrderRepository stores immutable order snapshots.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, note string) (domain.Order, error)
}

// ProductRepository reads the catalog.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
	ListByCategory(ctx context.Context, categoryID string, limit int) ([]domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	CategoryID string
	ActiveOnly bool
	Limit      int
}

// DependencyCheck probes one backing dependency during readiness checks.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// DependencyStatus is the outcome of a single probe.
type DependencyStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// HealthRepository evaluates dependency probes for the readiness endpoint.
type HealthRepository interface {
	Collect(ctx context.Context) ([]DependencyStatus, error)
}
