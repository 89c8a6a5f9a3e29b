package memory

import (
	"context"
	"errors"
	"testing"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
)

func TestLiveSessionStoreReservesCodes(t *testing.T) {
	ctx := context.Background()
	store := NewLiveSessionStore()

	first := app.NewLiveSession(domain.LiveSession{LiveID: "live-1", Code: "123456"}, nil)
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := app.NewLiveSession(domain.LiveSession{LiveID: "live-2", Code: "123456"}, nil)
	if err := store.Create(ctx, second); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}

	if got, ok := store.ByCode("123456"); !ok || got.ID() != "live-1" {
		t.Fatalf("expected live-1 by code, got %v %v", got, ok)
	}

	store.Release(ctx, first)
	if _, ok := store.ByCode("123456"); ok {
		t.Fatalf("expected code released")
	}
	if _, ok := store.Get("live-1"); !ok {
		t.Fatalf("expected released session still readable by id")
	}
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("expected code reusable after release, got %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", store.Len())
	}
}
