package enroll

import (
	"context"
	"errors"
	"testing"

	memstore "github.com/PabloGalante/guard-agent/internal/adapters/storage/memory"
)

func TestCommitValidation(t *testing.T) {
	svc := NewService(memstore.NewRosterStore())
	ctx := context.Background()

	if _, err := svc.Commit(ctx, "   ", [][]float64{{1, 2}}); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if _, err := svc.Commit(ctx, "Alice", nil); !errors.Is(err, ErrNoEmbeddings) {
		t.Fatalf("expected ErrNoEmbeddings, got %v", err)
	}
	if _, err := svc.Commit(ctx, "Alice", [][]float64{{1, 2}, {1}}); !errors.Is(err, ErrRaggedVectors) {
		t.Fatalf("expected ErrRaggedVectors, got %v", err)
	}
	if _, err := svc.Commit(ctx, "Alice", [][]float64{{}}); !errors.Is(err, ErrRaggedVectors) {
		t.Fatalf("expected ErrRaggedVectors for empty vectors, got %v", err)
	}
}

func TestCommitStoresIdentity(t *testing.T) {
	roster := memstore.NewRosterStore()
	svc := NewService(roster)
	ctx := context.Background()

	identity, err := svc.Commit(ctx, " Alice ", [][]float64{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatal(err)
	}
	if identity.Name != "Alice" {
		t.Fatalf("expected trimmed name, got %q", identity.Name)
	}
	if identity.EnrolledAt.IsZero() {
		t.Fatal("expected EnrolledAt to be set")
	}

	ids, err := roster.ListIdentities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0].Name != "Alice" {
		t.Fatalf("unexpected roster contents: %v", ids)
	}
}

func TestCommitReplacesExistingName(t *testing.T) {
	roster := memstore.NewRosterStore()
	svc := NewService(roster)
	ctx := context.Background()

	if _, err := svc.Commit(ctx, "Alice", [][]float64{{1, 2}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Commit(ctx, "Bob", [][]float64{{3, 4}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Commit(ctx, "Alice", [][]float64{{9, 9}}); err != nil {
		t.Fatal(err)
	}

	ids, err := roster.ListIdentities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("re-enrollment must replace, not append; got %d identities", len(ids))
	}
	// Enrollment order is preserved across replacement.
	if ids[0].Name != "Alice" || ids[1].Name != "Bob" {
		t.Fatalf("unexpected order: %s, %s", ids[0].Name, ids[1].Name)
	}
	if ids[0].Embeddings[0][0] != 9 {
		t.Fatal("expected replaced embeddings")
	}
}
