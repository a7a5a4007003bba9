package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eleanor-project/eleanor/internal/adapter/tiered"
)

// memCache is a simple in-memory cache for testing.
type memCache struct {
	data map[string][]byte
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestTiered_L1Hit(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	// Present only in L1
	l1.data["precedent.abc.10"] = []byte("cached")

	val, found, err := c.Get(ctx, "precedent.abc.10")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected L1 hit")
	}
	if string(val) != "cached" {
		t.Fatalf("expected cached, got %s", val)
	}
}

func TestTiered_L2HitWithBackfill(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	// Present only in L2
	l2.data["precedent.def.10"] = []byte("shared")

	val, found, err := c.Get(ctx, "precedent.def.10")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected L2 hit")
	}
	if string(val) != "shared" {
		t.Fatalf("expected shared, got %s", val)
	}

	// Verify backfill into L1
	l1Val, ok := l1.data["precedent.def.10"]
	if !ok {
		t.Fatal("expected L1 backfill")
	}
	if string(l1Val) != "shared" {
		t.Fatalf("expected backfilled shared, got %s", l1Val)
	}
}

func TestTiered_Miss(t *testing.T) {
	c := tiered.New(newMemCache(), newMemCache(), 5*time.Minute)

	_, found, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss")
	}
}

func TestTiered_SetBoth(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if _, ok := l1.data["k"]; !ok {
		t.Fatal("expected k in L1")
	}
	if _, ok := l2.data["k"]; !ok {
		t.Fatal("expected k in L2")
	}
}

func TestTiered_DeleteBoth(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	l1.data["k"] = []byte("v")
	l2.data["k"] = []byte("v")

	if err := c.Delete(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}

	if _, ok := l1.data["k"]; ok {
		t.Fatal("expected k deleted from L1")
	}
	if _, ok := l2.data["k"]; ok {
		t.Fatal("expected k deleted from L2")
	}
}

func TestTiered_L2ErrorPropagates(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	l2.err = errors.New("kv unavailable")
	c := tiered.New(l1, l2, 5*time.Minute)

	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected L2 error to propagate on L1 miss")
	}
}
