package challenge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStore_PutGetRemove(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	ctx := context.Background()
	deviceID := uuid.New()

	ch := Challenge{Nonce: "bm9uY2U=", ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Put(ctx, deviceID, ch); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, deviceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Nonce != ch.Nonce {
		t.Fatalf("got %+v, want nonce %q", got, ch.Nonce)
	}

	if err := store.Remove(ctx, deviceID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err = store.Get(ctx, deviceID)
	if err != nil {
		t.Fatalf("get after remove: %v", err)
	}
	if got != nil {
		t.Error("expected nil after remove")
	}

	// Removing an absent key is a no-op.
	if err := store.Remove(ctx, deviceID); err != nil {
		t.Errorf("remove absent: %v", err)
	}
}

func TestMemoryStore_ExpiredIsAbsent(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	ctx := context.Background()
	deviceID := uuid.New()

	err := store.Put(ctx, deviceID, Challenge{Nonce: "n", ExpiresAt: time.Now().Add(-time.Second)})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, deviceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("Get must never return an expired challenge")
	}
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	ctx := context.Background()
	deviceID := uuid.New()
	expiry := time.Now().Add(time.Minute)

	store.Put(ctx, deviceID, Challenge{Nonce: "first", ExpiresAt: expiry})
	store.Put(ctx, deviceID, Challenge{Nonce: "second", ExpiresAt: expiry})

	got, _ := store.Get(ctx, deviceID)
	if got == nil || got.Nonce != "second" {
		t.Errorf("got %+v, want the replacing challenge", got)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	defer store.Stop()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.New()
			store.Put(ctx, id, Challenge{Nonce: "n", ExpiresAt: time.Now().Add(time.Minute)})
			if got, err := store.Get(ctx, id); err != nil || got == nil {
				t.Errorf("own entry not readable: got=%v err=%v", got, err)
			}
			store.Remove(ctx, id)
		}()
	}
	wg.Wait()
}

func TestMemoryStore_SweepDropsExpired(t *testing.T) {
	store := NewMemoryStore(5 * time.Millisecond)
	defer store.Stop()
	ctx := context.Background()
	deviceID := uuid.New()

	store.Put(ctx, deviceID, Challenge{Nonce: "n", ExpiresAt: time.Now().Add(10 * time.Millisecond)})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		_, present := store.entries[deviceID]
		store.mu.Unlock()
		if !present {
			return // swept
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("expired entry was never swept")
}
