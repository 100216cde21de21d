package staging

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// TestPostgresPendingQuoteLifecycle walks a staged entry through insert,
// lookup, listing and deletion against a real database.
func TestPostgresPendingQuoteLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := NewPostgresStore(db)
	cleanup := func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM pending_quotes WHERE id LIKE 'itest_%'`)
	}
	cleanup()
	t.Cleanup(cleanup)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []PendingQuote{
		{ID: "itest_b", Text: "second oldest", Source: "s", Language: "english", SubmittedBy: "u1", Timestamp: base.Add(2 * time.Second)},
		{ID: "itest_a", Text: "oldest", Source: "s", Language: "english", SubmittedBy: "u1", Timestamp: base.Add(1 * time.Second)},
		{ID: "itest_c", Text: "other language", Source: "s", Language: "german", SubmittedBy: "u2", Timestamp: base.Add(3 * time.Second)},
		{ID: "itest_d", Text: "already resolved", Source: "s", Language: "english", SubmittedBy: "u1", Timestamp: base.Add(4 * time.Second), Approved: true},
	}
	for _, q := range entries {
		if err := store.Insert(ctx, q); err != nil {
			t.Fatalf("Insert(%s) error = %v", q.ID, err)
		}
	}

	count, err := store.CountPending(ctx, "english")
	if err != nil {
		t.Fatalf("CountPending() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("CountPending(english) = %d, want 2", count)
	}

	got, err := store.Get(ctx, "itest_a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Text != "oldest" || got.Language != "english" || got.Approved {
		t.Fatalf("Get() = %+v", got)
	}

	english, err := store.ListOldest(ctx, "english", 10)
	if err != nil {
		t.Fatalf("ListOldest() error = %v", err)
	}
	if len(english) != 2 || english[0].ID != "itest_a" || english[1].ID != "itest_b" {
		t.Fatalf("ListOldest(english) = %+v, want itest_a then itest_b", english)
	}

	all, err := store.ListOldest(ctx, AllLanguages, 10)
	if err != nil {
		t.Fatalf("ListOldest(all) error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "itest_a" || all[2].ID != "itest_c" {
		t.Fatalf("ListOldest(all) = %+v, want oldest first across languages", all)
	}

	if err := store.Delete(ctx, "itest_a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "itest_a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "itest_a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete() of missing entry error = %v, want ErrNotFound", err)
	}
}

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()

	if url := getenv("TEST_DATABASE_URL", ""); url != "" {
		return url
	}

	// CI fallback via the standard postgres environment variables.
	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	user := getenv("POSTGRES_USER", "quotedesk")
	pass := getenv("POSTGRES_PASSWORD", "quotedesk")
	dbname := getenv("POSTGRES_DB", "quotedesk_test")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
