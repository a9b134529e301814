package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestFromRequestPageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 20, MaxPageSize: 100}

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"missing uses default", "/orders", 20},
		{"explicit value", "/orders?pageSize=5", 5},
		{"surrounding whitespace", "/orders?pageSize=%207%20", 7},
		{"over the cap clamps", "/orders?pageSize=500", 100},
		{"exactly the cap", "/orders?pageSize=100", 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params, err := FromRequest(httptest.NewRequest("GET", tc.target, nil), opts)
			if err != nil {
				t.Fatalf("FromRequest: %v", err)
			}
			if params.PageSize != tc.want {
				t.Fatalf("expected page size %d, got %d", tc.want, params.PageSize)
			}
		})
	}
}

func TestFromRequestRejectsBadPageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 20, MaxPageSize: 100}

	for _, target := range []string{
		"/orders?pageSize=many",
		"/orders?pageSize=0",
		"/orders?pageSize=-3",
		"/orders?pageSize=2.5",
	} {
		t.Run(target, func(t *testing.T) {
			if _, err := FromRequest(httptest.NewRequest("GET", target, nil), opts); !errors.Is(err, ErrInvalidPageSize) {
				t.Fatalf("expected ErrInvalidPageSize, got %v", err)
			}
		})
	}
}

func TestFromRequestDefaultsWhenOptionsUnset(t *testing.T) {
	params, err := FromRequest(httptest.NewRequest("GET", "/orders", nil), Options{})
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if params.PageSize != 100 {
		t.Fatalf("expected cap fallback 100, got %d", params.PageSize)
	}

	params, err = FromRequest(httptest.NewRequest("GET", "/orders", nil), Options{DefaultPageSize: 500, MaxPageSize: 50})
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if params.PageSize != 50 {
		t.Fatalf("default above the cap must clamp, got %d", params.PageSize)
	}
}
