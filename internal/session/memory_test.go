package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pharmaops/go-rxchat/internal/domain/order"
)

func preview(id string) *order.Preview {
	return &order.Preview{PreviewID: id, PatientID: "PAT001"}
}

func TestHistoryCapped(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < DefaultHistoryLimit+4; i++ {
		if err := s.AppendHistory(ctx, "sess", Turn{Role: "user", Content: "hi"}); err != nil {
			t.Fatal(err)
		}
	}

	h, err := s.History(ctx, "sess")
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != DefaultHistoryLimit {
		t.Errorf("history length = %d, want %d", len(h), DefaultHistoryLimit)
	}
}

func TestSavePreviewSupersedes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	replaced, err := s.SavePreview(ctx, "sess", preview("PRV-1"))
	if err != nil {
		t.Fatal(err)
	}
	if replaced != "" {
		t.Errorf("replaced = %q, want empty", replaced)
	}

	replaced, err = s.SavePreview(ctx, "sess", preview("PRV-2"))
	if err != nil {
		t.Fatal(err)
	}
	if replaced != "PRV-1" {
		t.Errorf("replaced = %q, want PRV-1", replaced)
	}

	p, err := s.PendingPreview(ctx, "sess")
	if err != nil {
		t.Fatal(err)
	}
	if p.PreviewID != "PRV-2" {
		t.Errorf("pending = %s, want PRV-2", p.PreviewID)
	}
}

func TestTakePreviewConsumes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.SavePreview(ctx, "sess", preview("PRV-1")); err != nil {
		t.Fatal(err)
	}

	p, err := s.TakePreview(ctx, "sess")
	if err != nil {
		t.Fatal(err)
	}
	if p.PreviewID != "PRV-1" {
		t.Errorf("taken = %s, want PRV-1", p.PreviewID)
	}

	if _, err := s.TakePreview(ctx, "sess"); !errors.Is(err, ErrNoPendingOrder) {
		t.Errorf("second take err = %v, want ErrNoPendingOrder", err)
	}
}

func TestClearPendingIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	cleared, err := s.ClearPending(ctx, "sess")
	if err != nil {
		t.Fatal(err)
	}
	if cleared {
		t.Error("cleared = true on empty session")
	}

	if _, err := s.SavePreview(ctx, "sess", preview("PRV-1")); err != nil {
		t.Fatal(err)
	}

	cleared, err = s.ClearPending(ctx, "sess")
	if err != nil {
		t.Fatal(err)
	}
	if !cleared {
		t.Error("cleared = false with pending preview")
	}

	cleared, _ = s.ClearPending(ctx, "sess")
	if cleared {
		t.Error("cleared = true on second clear")
	}
}

func TestPreviewExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	if _, err := s.SavePreview(ctx, "sess", preview("PRV-1")); err != nil {
		t.Fatal(err)
	}

	current = base.Add(DefaultPreviewTTL - time.Minute)
	if _, err := s.PendingPreview(ctx, "sess"); err != nil {
		t.Fatalf("preview expired early: %v", err)
	}

	current = base.Add(DefaultPreviewTTL + time.Minute)
	if _, err := s.PendingPreview(ctx, "sess"); !errors.Is(err, ErrNoPendingOrder) {
		t.Errorf("err = %v, want ErrNoPendingOrder after TTL", err)
	}
}

func TestSessionsIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.SavePreview(ctx, "a", preview("PRV-A")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SavePreview(ctx, "b", preview("PRV-B")); err != nil {
		t.Fatal(err)
	}

	if _, err := s.TakePreview(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	p, err := s.PendingPreview(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if p.PreviewID != "PRV-B" {
		t.Errorf("session b pending = %s, want PRV-B", p.PreviewID)
	}
}
