// Package pagination parses the page-size query parameter shared by the
// storefront list endpoints. Listings here are small and bounded, so there is
// no cursor machinery: each handler declares its default and cap, and the
// parsed size flows into the repository query as a plain limit.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrInvalidPageSize reports a pageSize value that is not a positive integer.
var ErrInvalidPageSize = errors.New("pagination: invalid pageSize")

const fallbackMax = 100

// Options declare one endpoint's paging behaviour.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

func (o Options) max() int {
	if o.MaxPageSize > 0 {
		return o.MaxPageSize
	}
	return fallbackMax
}

func (o Options) fallback() int {
	size := o.DefaultPageSize
	if size <= 0 {
		size = o.max()
	}
	if size > o.max() {
		return o.max()
	}
	return size
}

// Params holds the values parsed from the request.
type Params struct {
	PageSize int
}

// FromRequest reads pageSize from the query string. A missing value takes the
// endpoint default, oversized values clamp to the cap, and anything that is
// not a positive integer fails with ErrInvalidPageSize.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("pageSize"))
	if raw == "" {
		return Params{PageSize: opts.fallback()}, nil
	}

	size, err := strconv.Atoi(raw)
	if err != nil {
		return Params{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidPageSize, raw)
	}
	if size <= 0 {
		return Params{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if size > opts.max() {
		size = opts.max()
	}
	return Params{PageSize: size}, nil
}
