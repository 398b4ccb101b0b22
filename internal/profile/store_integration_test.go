//go:build integration

package profile

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/testutil"
)

// exerciseStore runs the DocumentStore contract against a real backend.
func exerciseStore(t *testing.T, s DocumentStore) {
	ctx := context.Background()
	collection := "it_" + uuid.NewString()[:8]
	id := uuid.NewString()

	if _, err := s.Get(ctx, collection, id); err != ErrNotFound {
		t.Fatalf("Expected ErrNotFound for absent document, got %v", err)
	}
	if err := s.Update(ctx, collection, id, map[string]interface{}{"name": "x"}); err != ErrNotFound {
		t.Fatalf("Expected ErrNotFound updating absent document, got %v", err)
	}

	before := time.Now().Add(-time.Minute)
	if err := s.Set(ctx, collection, id, map[string]interface{}{
		"name":      "Ana",
		"allergies": []string{"latex"},
		"createdAt": ServerTimestamp,
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Update(ctx, collection, id, map[string]interface{}{"phone": "555"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.Merge(ctx, collection, id, map[string]interface{}{"ok": true}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var out struct {
		Name      string    `json:"name"`
		Phone     string    `json:"phone"`
		OK        bool      `json:"ok"`
		Allergies []string  `json:"allergies"`
		CreatedAt time.Time `json:"createdAt"`
	}
	if err := decode(doc, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.Name != "Ana" || out.Phone != "555" || !out.OK {
		t.Errorf("Unexpected document: %+v", out)
	}
	if len(out.Allergies) != 1 || out.Allergies[0] != "latex" {
		t.Errorf("Expected allergies [latex], got %v", out.Allergies)
	}
	if out.CreatedAt.Before(before) {
		t.Errorf("Expected server timestamp near now, got %v", out.CreatedAt)
	}
}

func TestPostgresStore_Integration(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewPostgresStore(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	defer testutil.CleanupTable(t, db, "profile_documents")

	exerciseStore(t, store)
}

// Requires FIRESTORE_EMULATOR_HOST.
func TestFirestoreStore_Integration(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	store, err := NewFirestoreStore(context.Background(), "rapidaid-test", "")
	if err != nil {
		t.Fatalf("NewFirestoreStore failed: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}
