package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHostGate_Exclusive(t *testing.T) {
	g := NewHostGate()
	ctx := context.Background()

	release, err := g.Acquire(ctx, "tienda.es")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	other, err := g.Acquire(ctx, "otra.es")
	if err != nil {
		t.Fatalf("a different host should not block: %v", err)
	}
	other()

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(timeoutCtx, "tienda.es"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the held host to block, got %v", err)
	}

	release()
	release() // idempotent

	again, err := g.Acquire(ctx, "tienda.es")
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	again()
}
