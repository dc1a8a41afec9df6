package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/prospector/internal/model"
)

func TestMemoryStore_AdmitOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := model.ContactRecord{BusinessName: "A", Email: "info@tienda.es", SourceURL: "https://a.es"}
	second := model.ContactRecord{BusinessName: "B", Email: "INFO@tienda.es", SourceURL: "https://b.es"}

	out, err := store.Admit(ctx, first)
	if err != nil || out != Accepted {
		t.Fatalf("first admit = (%v, %v), want accepted", out, err)
	}
	out, err = store.Admit(ctx, second)
	if err != nil || out != Duplicate {
		t.Fatalf("second admit = (%v, %v), want duplicate", out, err)
	}

	snap := store.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 record, got %d", len(snap))
	}
	if snap[0].BusinessName != "A" {
		t.Errorf("expected first-seen record to win, got %q", snap[0].BusinessName)
	}
}

func TestMemoryStore_PhoneIdentity(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, _ = store.Admit(ctx, model.ContactRecord{Phone: "+34912345678"})
	out, _ := store.Admit(ctx, model.ContactRecord{Phone: "+34912345678"})
	if out != Duplicate {
		t.Error("expected same phone to be a duplicate")
	}

	// Email takes precedence, so a record with email and the same phone is distinct
	out, _ = store.Admit(ctx, model.ContactRecord{Email: "hola@tienda.es", Phone: "+34912345678"})
	if out != Accepted {
		t.Error("expected email identity to be accepted")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 records, got %d", store.Len())
	}
}

func TestMemoryStore_NoIdentity(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Admit(context.Background(), model.ContactRecord{BusinessName: "X"})
	if !errors.Is(err, ErrNoIdentity) {
		t.Errorf("expected ErrNoIdentity, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("record without identity must not be stored")
	}
}

func TestMemoryStore_ConcurrentAdmit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := model.ContactRecord{
				Email:     "ventas@tienda.es",
				SourceURL: fmt.Sprintf("https://tienda.es/%d", i),
			}
			if out, err := store.Admit(ctx, rec); err == nil && out == Accepted {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("expected exactly one accepted admit, got %d", accepted.Load())
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 stored record, got %d", store.Len())
	}
}

func TestMemoryStore_SnapshotIsCopy(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.Admit(context.Background(), model.ContactRecord{Email: "a1@tienda.es"})

	snap := store.Snapshot()
	snap[0].Email = "changed@tienda.es"

	if store.Snapshot()[0].Email != "a1@tienda.es" {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestOutcome_String(t *testing.T) {
	if Accepted.String() != "accepted" || Duplicate.String() != "duplicate" {
		t.Errorf("unexpected outcome strings: %s, %s", Accepted, Duplicate)
	}
}
