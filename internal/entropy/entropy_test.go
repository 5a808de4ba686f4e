package entropy

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
)

func TestShuffleIsPermutation(t *testing.T) {
	xs := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	Shuffle(NewSeeded(42), len(xs), func(i, j int) { xs[i], xs[j] = xs[j], xs[i] })
	sorted := append([]int(nil), xs...)
	sort.Ints(sorted)
	for i, v := range sorted {
		if v != i {
			t.Fatalf("shuffle lost or duplicated elements: %v", xs)
		}
	}
}

func TestSeededIsDeterministic(t *testing.T) {
	a, b := NewSeeded(7), NewSeeded(7)
	for i := 0; i < 20; i++ {
		if a.Float() != b.Float() {
			t.Fatal("same seed diverged")
		}
	}
}

func TestBaselineBounded(t *testing.T) {
	b := NewBaseline(1, 0.05, 0.1)
	for series := 0; series < 8; series++ {
		for tick := uint64(0); tick < 500; tick++ {
			v := b.At(series, tick)
			if v < 0.95-1e-9 || v > 1.05+1e-9 {
				t.Fatalf("baseline %v out of bounds at series %d tick %d", v, series, tick)
			}
		}
	}
	if b.At(3, 99) != NewBaseline(1, 0.05, 0.1).At(3, 99) {
		t.Fatal("baseline not reproducible")
	}
}

func TestClientFallsBackOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c := NewClient("key")
	c.endpoint = srv.URL
	for i := 0; i < 5; i++ {
		if v := c.Float(); v < 0 || v >= 1 {
			t.Fatalf("fallback float out of range: %v", v)
		}
	}
}

func TestClientUsesPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"random":{"data":[0.25,0.5,0.75]}}}`))
	}))
	defer srv.Close()

	c := NewClient("key")
	c.endpoint = srv.URL
	if v := c.Float(); v != 0.25 {
		t.Fatalf("expected pooled value 0.25, got %v", v)
	}
}

func TestFromClient(t *testing.T) {
	if FromClient(nil) != Crypto {
		t.Fatal("nil client should fall back to crypto")
	}
}
