package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestCacheRoundTrip(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "mem:few-shot/a1:k1", []byte(`{"input":"q"}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	val, found, err := c.Get(ctx, "mem:few-shot/a1:k1")
	if err != nil || !found {
		t.Fatalf("expected hit, found=%v err=%v", found, err)
	}
	if string(val) != `{"input":"q"}` {
		t.Errorf("unexpected value %s", val)
	}

	_ = c.Delete(ctx, "mem:few-shot/a1:k1")
	if _, found, _ := c.Get(ctx, "mem:few-shot/a1:k1"); found {
		t.Error("expected miss after delete")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %+v", s)
	}
}
