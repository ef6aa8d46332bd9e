package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/storelens/storelens/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestNew_Defaults(t *testing.T) {
	r, err := New("zapatillas running", -1, "", nil, nil, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.TopK() != DefaultTopK {
		t.Fatalf("expected default top_k %d, got %d", DefaultTopK, r.TopK())
	}
	if r.IncludeOutOfStock() {
		t.Fatal("include_out_of_stock should default to false")
	}
}

func TestNew_EmptyQuery(t *testing.T) {
	if _, err := New("   ", 5, "", nil, nil, false); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestNew_QueryTooLong(t *testing.T) {
	q := strings.Repeat("a", MaxQueryLength+1)
	if _, err := New(q, 5, "", nil, nil, false); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestNew_TopKZeroAllowed(t *testing.T) {
	r, err := New("q", 0, "", nil, nil, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.TopK() != 0 {
		t.Fatalf("expected top_k 0, got %d", r.TopK())
	}
}

func TestNew_TopKClamped(t *testing.T) {
	r, err := New("q", MaxTopK+10, "", nil, nil, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.TopK() != MaxTopK {
		t.Fatalf("expected top_k clamped to %d, got %d", MaxTopK, r.TopK())
	}
}

func TestNew_NegativePrice(t *testing.T) {
	if _, err := New("q", 5, "", f(-1), nil, false); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for negative price_min, got %v", err)
	}
	if _, err := New("q", 5, "", nil, f(-1), false); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for negative price_max, got %v", err)
	}
}

func TestNew_PriceMinAbovePriceMax(t *testing.T) {
	if _, err := New("q", 5, "", f(100), f(10), false); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestNew_CategoryTrimmed(t *testing.T) {
	r, err := New("q", 5, "  electronica  ", nil, nil, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Category() != "electronica" {
		t.Fatalf("expected trimmed category, got %q", r.Category())
	}
}
