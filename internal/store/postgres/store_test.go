package postgres

import (
	"context"
	"errors"
	"testing"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/store"
)

func TestRejectsUnknownTable(t *testing.T) {
	st := NewStore(nil)
	ctx := context.Background()

	if err := st.Delete(ctx, "patients; DROP TABLE users", "x"); !errors.Is(err, store.ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable from delete, got %v", err)
	}
	if err := st.Upsert(ctx, "patients", models.Token{}); !errors.Is(err, store.ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable from upsert, got %v", err)
	}
}

func TestRejectsMismatchedRecord(t *testing.T) {
	st := NewStore(nil)
	err := st.Upsert(context.Background(), store.TableTokens, models.Cabin{ID: "c1"})
	if err == nil {
		t.Fatalf("expected error for cabin written to tokens table")
	}
}

func TestNonNil(t *testing.T) {
	if got := nonNil(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	values := []string{"a"}
	if got := nonNil(values); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected values passed through, got %#v", got)
	}
}
