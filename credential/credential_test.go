package credential

import (
	"errors"
	"testing"
	"time"
)

func testPool(t *testing.T, creds []*Credential) (*Pool, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pool := NewPool(creds, PoolOptions{
		Now: func() time.Time { return now },
	})
	return pool, &now
}

func cred(id string) *Credential {
	return &Credential{ID: id, Provider: "google", Model: "gemini-2.0-flash", Key: "k-" + id, Active: true}
}

// ---------------------------------------------------------------------------
// Selection
// ---------------------------------------------------------------------------

func TestNextPrefersLongestIdle(t *testing.T) {
	a, b, c := cred("a"), cred("b"), cred("c")
	pool, now := testPool(t, []*Credential{a, b, c})

	a.LastUsedAt = now.Add(-2 * time.Second)
	b.LastUsedAt = now.Add(-10 * time.Second)
	c.LastUsedAt = now.Add(-5 * time.Second)

	got, err := pool.Next()
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if got.ID != "b" {
		t.Fatalf("picked %q, want longest-idle b", got.ID)
	}
}

func TestNextFallsBackToRoundRobin(t *testing.T) {
	a, b := cred("a"), cred("b")
	pool, now := testPool(t, []*Credential{a, b})

	// Both used just now: neither is past the minimum interval.
	a.LastUsedAt = *now
	b.LastUsedAt = *now

	first, _ := pool.Next()
	second, _ := pool.Next()
	if first.ID == second.ID {
		t.Fatalf("round-robin repeated %q", first.ID)
	}
}

func TestNextRecordsUsage(t *testing.T) {
	a := cred("a")
	pool, now := testPool(t, []*Credential{a})

	if _, err := pool.Next(); err != nil {
		t.Fatalf("error: %v", err)
	}
	if a.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1", a.UsageCount)
	}
	if !a.LastUsedAt.Equal(*now) {
		t.Errorf("last used = %v, want %v", a.LastUsedAt, *now)
	}
}

func TestNextNoActiveCredentials(t *testing.T) {
	a := cred("a")
	a.Active = false
	pool, _ := testPool(t, []*Credential{a})

	if _, err := pool.Next(); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("error = %v, want ErrNoCredentials", err)
	}
}

// ---------------------------------------------------------------------------
// Health tracking
// ---------------------------------------------------------------------------

func TestMarkFailedDeactivatesAtThreshold(t *testing.T) {
	a := cred("a")
	pool, _ := testPool(t, []*Credential{a})

	for i := 0; i < DefaultMaxFailures-1; i++ {
		pool.MarkFailed("a")
	}
	if !a.Active {
		t.Fatalf("deactivated before threshold (failures=%d)", a.FailedCount)
	}
	pool.MarkFailed("a")
	if a.Active {
		t.Fatalf("still active after %d failures", a.FailedCount)
	}
	if pool.ActiveCount() != 0 {
		t.Fatalf("active count = %d, want 0", pool.ActiveCount())
	}
}

func TestMarkSuccessResetsFailures(t *testing.T) {
	a := cred("a")
	pool, _ := testPool(t, []*Credential{a})

	pool.MarkFailed("a")
	pool.MarkFailed("a")
	pool.MarkSuccess("a")

	if a.FailedCount != 0 {
		t.Fatalf("failed count = %d, want 0", a.FailedCount)
	}
	if !a.Active {
		t.Fatal("credential should remain active")
	}
}

func TestDeactivatedCredentialNeverDeleted(t *testing.T) {
	a := cred("a")
	pool, _ := testPool(t, []*Credential{a})

	for i := 0; i < DefaultMaxFailures; i++ {
		pool.MarkFailed("a")
	}
	creds := pool.Credentials()
	if len(creds) != 1 {
		t.Fatalf("credentials = %d, want 1 (deactivated, not deleted)", len(creds))
	}
	if creds[0].Active {
		t.Fatal("credential should be inactive")
	}
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

func TestStoreRoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	added, err := AddToStore("google", "gemini-2.0-flash", "sk-test-1234567890", "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.ID == "" {
		t.Fatal("no id assigned")
	}
	if !added.Active {
		t.Fatal("new credential should be active")
	}

	creds := LoadStore()
	if len(creds) != 1 {
		t.Fatalf("loaded = %d, want 1", len(creds))
	}
	if creds[0].Key != "sk-test-1234567890" {
		t.Fatalf("key = %q", creds[0].Key)
	}

	removed, err := RemoveFromStore(added.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}
	if got := LoadStore(); len(got) != 0 {
		t.Fatalf("loaded after removal = %d, want 0", len(got))
	}
}

func TestLoadStoreMissingFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	if creds := LoadStore(); creds != nil {
		t.Fatalf("creds = %+v, want nil", creds)
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"sk-abcdefgh12345678", "sk-a...5678"},
		{"short", "****"},
		{"", "****"},
	}
	for _, tc := range tests {
		if got := MaskKey(tc.in); got != tc.want {
			t.Errorf("MaskKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
