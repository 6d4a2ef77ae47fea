package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/supportbot/models"
)

// tickingClock returns strictly increasing timestamps, one second apart.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	st, err := NewWithDSN(ctx, DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("NewWithDSN: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate("up", 0); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	st.WithClock(tickingClock(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)))
	return st
}

func TestMessageRoundTrip(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	if err := st.EnsureSession(ctx, "s1"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	want := []struct {
		role    models.Role
		content string
	}{
		{models.RoleUser, "What are your hours?"},
		{models.RoleAssistant, "We are open 9 to 5 Monday to Friday."},
		{models.RoleUser, "And on weekends?"},
	}
	var lastID int64
	for _, w := range want {
		msg, err := st.AppendMessage(ctx, "s1", w.role, w.content)
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if msg.ID <= lastID {
			t.Fatalf("ids must increase: %d after %d", msg.ID, lastID)
		}
		lastID = msg.ID
	}

	got, err := st.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Role != want[i].role || got[i].Content != want[i].content || got[i].SessionID != "s1" {
			t.Fatalf("message %d mismatch: %+v", i, got[i])
		}
		if got[i].CreatedAt.IsZero() {
			t.Fatalf("message %d has zero created_at", i)
		}
	}
}

func TestListMessagesUnknownSessionIsEmpty(t *testing.T) {
	st := newSQLiteStore(t)
	got, err := st.ListMessages(context.Background(), "nope")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestEnsureSessionKeepsCreatedAt(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	if err := st.EnsureSession(ctx, "s1"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	first, err := st.ListSessions(ctx)
	if err != nil || len(first) != 1 {
		t.Fatalf("ListSessions: %v %v", first, err)
	}
	if err := st.EnsureSession(ctx, "s1"); err != nil {
		t.Fatalf("EnsureSession again: %v", err)
	}
	second, err := st.ListSessions(ctx)
	if err != nil || len(second) != 1 {
		t.Fatalf("ListSessions: %v %v", second, err)
	}
	if !second[0].CreatedAt.Equal(first[0].CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", first[0].CreatedAt, second[0].CreatedAt)
	}
}

func TestRecentMessagesBeforeAndLimit(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()
	if err := st.EnsureSession(ctx, "s1"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	var ids []int64
	for i := 0; i < 14; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msg, err := st.AppendMessage(ctx, "s1", role, string(rune('a'+i)))
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	got, err := st.RecentMessages(ctx, "s1", ids[13], 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 messages got %d", len(got))
	}
	// messages 3..12 in chronological order; the newest (13) is excluded.
	for i, m := range got {
		if m.ID != ids[i+3] {
			t.Fatalf("position %d: expected id %d got %d", i, ids[i+3], m.ID)
		}
	}

	all, err := st.RecentMessages(ctx, "s1", 0, 3)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(all) != 3 || all[2].ID != ids[13] || all[0].ID != ids[11] {
		t.Fatalf("unexpected tail: %+v", all)
	}

	none, err := st.RecentMessages(ctx, "s1", ids[0], 10)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no messages before the first one, got %v %v", none, err)
	}
}

func TestListSessionsMostRecentFirst(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := st.EnsureSession(ctx, id); err != nil {
			t.Fatalf("EnsureSession: %v", err)
		}
	}
	if err := st.TouchSession(ctx, "a"); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}

	got, err := st.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	order := []string{got[0].ID, got[1].ID, got[2].ID}
	if order[0] != "a" || order[1] != "c" || order[2] != "b" {
		t.Fatalf("unexpected order %v", order)
	}
	if !got[0].UpdatedAt.After(got[0].CreatedAt) {
		t.Fatalf("touch should advance updated_at: %+v", got[0])
	}
}

func TestAppendMessageRejectsUnknownRole(t *testing.T) {
	st := newSQLiteStore(t)
	if _, err := st.AppendMessage(context.Background(), "s1", models.Role("system"), "x"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestMigrateDownAndUp(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	if err := st.Migrate("down", 0); err != nil {
		t.Fatalf("Migrate down: %v", err)
	}
	if err := st.EnsureSession(ctx, "s1"); err == nil {
		t.Fatal("expected error writing after schema drop")
	}
	if err := st.Migrate("up", 0); err != nil {
		t.Fatalf("Migrate up: %v", err)
	}
	if err := st.Migrate("up", 0); err != nil {
		t.Fatalf("second Migrate up should be a no-op: %v", err)
	}
	if err := st.EnsureSession(ctx, "s1"); err != nil {
		t.Fatalf("EnsureSession after re-migrate: %v", err)
	}
	if err := st.Migrate("sideways", 0); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestNewWithDSNRejectsUnknownDialect(t *testing.T) {
	if _, err := NewWithDSN(context.Background(), Dialect("oracle"), "x"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}
