package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/xiaot623/gogo/convstore/internal/domain"
	"github.com/xiaot623/gogo/convstore/internal/repository"
	"github.com/xiaot623/gogo/convstore/internal/testutil"
)

// backends returns every Store implementation the conformance tests run
// against. MySQL joins only when TEST_MYSQL_DSN is set.
func backends(t *testing.T) map[string]func(t *testing.T) repository.Store {
	t.Helper()
	out := map[string]func(t *testing.T) repository.Store{
		"memory": func(t *testing.T) repository.Store { return testutil.NewMemoryStore(t) },
		"sqlite": func(t *testing.T) repository.Store { return testutil.NewSQLiteStore(t) },
	}
	if dsn := os.Getenv("TEST_MYSQL_DSN"); dsn != "" {
		out["mysql"] = func(t *testing.T) repository.Store { return newMySQLStore(t, dsn) }
	}
	return out
}

func newMySQLStore(t *testing.T, dsn string) repository.Store {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.DialectMySQL, dsn, repository.PoolOptions{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("failed to open mysql: %v", err)
	}
	if err := repository.Migrate(ctx, db, repository.DialectMySQL); err != nil {
		t.Fatalf("failed to migrate mysql: %v", err)
	}
	for _, stmt := range []string{`DELETE FROM messages`, `DELETE FROM sessions`} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("failed to reset mysql: %v", err)
		}
	}
	s := repository.NewSQLStore(db, repository.DialectMySQL)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func forEachBackend(t *testing.T, fn func(t *testing.T, store repository.Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func TestStoreSessionLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.Store) {
		ctx := context.Background()
		session := &domain.Session{
			ID:       domain.NewSessionID(),
			UserID:   "u1",
			Platform: "telegram",
			Metadata: map[string]any{"tier": "pro"},
		}
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		got, err := store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.UserID != "u1" || got.Platform != "telegram" || got.Metadata["tier"] != "pro" {
			t.Fatalf("unexpected session: %+v", got)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Fatalf("timestamps not stamped: %+v", got)
		}

		exists, err := store.SessionExists(ctx, session.ID)
		if err != nil || !exists {
			t.Fatalf("SessionExists = %v, %v", exists, err)
		}

		if err := store.DeleteSession(ctx, session.ID); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}
		if _, err := store.GetSession(ctx, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
		if err := store.DeleteSession(ctx, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
		}
	})
}

func TestStoreDuplicateSessionID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.Store) {
		ctx := context.Background()
		id := domain.NewSessionID()
		if err := store.CreateSession(ctx, &domain.Session{ID: id}); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		err := store.CreateSession(ctx, &domain.Session{ID: id})
		if !errors.Is(err, repository.ErrDuplicateSession) {
			t.Fatalf("expected ErrDuplicateSession, got %v", err)
		}
	})
}

func TestStoreNameUniqueness(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.Store) {
		ctx := context.Background()
		first := &domain.Session{ID: domain.NewSessionID(), AgentID: "a1", Name: "support"}
		if err := store.CreateSession(ctx, first); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		second := &domain.Session{ID: domain.NewSessionID(), AgentID: "a2", Name: "support"}
		if err := store.CreateSession(ctx, second); !errors.Is(err, domain.ErrSessionNameConflict) {
			t.Fatalf("expected ErrSessionNameConflict, got %v", err)
		}

		// Unnamed sessions never collide.
		for i := 0; i < 2; i++ {
			if err := store.CreateSession(ctx, &domain.Session{ID: domain.NewSessionID()}); err != nil {
				t.Fatalf("unnamed CreateSession failed: %v", err)
			}
		}

		got, err := store.GetSessionByName(ctx, "support")
		if err != nil {
			t.Fatalf("GetSessionByName failed: %v", err)
		}
		if got.ID != first.ID {
			t.Fatalf("expected %s, got %s", first.ID, got.ID)
		}
		if _, err := store.GetSessionByName(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestStoreNamesAreCaseSensitive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.Store) {
		ctx := context.Background()
		upper := &domain.Session{ID: domain.NewSessionID(), Name: "Chat"}
		if err := store.CreateSession(ctx, upper); err != nil {
			t.Fatalf("CreateSession(Chat) failed: %v", err)
		}
		lower := &domain.Session{ID: domain.NewSessionID(), Name: "chat"}
		if err := store.CreateSession(ctx, lower); err != nil {
			t.Fatalf("CreateSession(chat) failed: %v", err)
		}

		got, err := store.GetSessionByName(ctx, "chat")
		if err != nil {
			t.Fatalf("GetSessionByName failed: %v", err)
		}
		if got.ID != lower.ID {
			t.Fatalf("expected %s, got %s", lower.ID, got.ID)
		}
		got, err = store.GetSessionByName(ctx, "Chat")
		if err != nil {
			t.Fatalf("GetSessionByName failed: %v", err)
		}
		if got.ID != upper.ID {
			t.Fatalf("expected %s, got %s", upper.ID, got.ID)
		}
		if _, err := store.GetSessionByName(ctx, "CHAT"); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestStoreBindSessionAgent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.Store) {
		ctx := context.Background()
		id := domain.NewSessionID()
		if err := store.CreateSession(ctx, &domain.Session{ID: id}); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if err := store.BindSessionAgent(ctx, id, "a1"); err != nil {
			t.Fatalf("BindSessionAgent failed: %v", err)
		}
		if err := store.BindSessionAgent(ctx, id, "a1"); err != nil {
			t.Fatalf("rebinding same agent failed: %v", err)
		}
		if err := store.BindSessionAgent(ctx, id, "a2"); !errors.Is(err, domain.ErrSessionAgentConflict) {
			t.Fatalf("expected ErrSessionAgentConflict, got %v", err)
		}
		got, err := store.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.AgentID != "a1" {
			t.Fatalf("agent reassigned: %q", got.AgentID)
		}
		if err := store.BindSessionAgent(ctx, domain.NewSessionID(), "a1"); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestStoreMetadataAndRunFinished(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.Store) {
		ctx := context.Background()
		id := domain.NewSessionID()
		if err := store.CreateSession(ctx, &domain.Session{ID: id}); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		meta := map[string]any{domain.MetadataSystemPromptKey: "be brief"}
		if err := store.UpdateSessionMetadata(ctx, id, meta); err != nil {
			t.Fatalf("UpdateSessionMetadata failed: %v", err)
		}
		if err := store.UpdateSessionMetadata(ctx, id, meta); err != nil {
			t.Fatalf("idempotent UpdateSessionMetadata failed: %v", err)
		}

		later := time.Now().UTC().Truncate(time.Microsecond)
		earlier := later.Add(-time.Hour)
		if err := store.TouchRunFinished(ctx, id, later); err != nil {
			t.Fatalf("TouchRunFinished failed: %v", err)
		}
		if err := store.TouchRunFinished(ctx, id, earlier); err != nil {
			t.Fatalf("TouchRunFinished (earlier) failed: %v", err)
		}

		got, err := store.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.SystemPrompt() != "be brief" {
			t.Fatalf("unexpected system prompt %q", got.SystemPrompt())
		}
		if got.RunFinishedAt == nil || !got.RunFinishedAt.Equal(later) {
			t.Fatalf("run_finished_at went backwards: %v", got.RunFinishedAt)
		}

		missing := domain.NewSessionID()
		if err := store.UpdateSessionMetadata(ctx, missing, meta); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
		if err := store.TouchRunFinished(ctx, missing, later); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestStoreMessagesOrderingAndCascade(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.Store) {
		ctx := context.Background()
		id := domain.NewSessionID()
		if err := store.CreateSession(ctx, &domain.Session{ID: id}); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		tie := time.Now().UTC().Truncate(time.Microsecond)
		contents := []string{"first", "second", "third"}
		for _, c := range contents {
			msg := &domain.Message{
				ID:          domain.NewMessageID(),
				SessionID:   id,
				Role:        domain.RoleUser,
				TextContent: c,
				CreatedAt:   tie,
			}
			if err := store.CreateMessage(ctx, msg); err != nil {
				t.Fatalf("CreateMessage failed: %v", err)
			}
			if msg.Seq == 0 {
				t.Fatalf("seq not assigned")
			}
		}
		early := &domain.Message{
			ID:          domain.NewMessageID(),
			SessionID:   id,
			Role:        domain.RoleAssistant,
			TextContent: "zeroth",
			CreatedAt:   tie.Add(-time.Second),
			ToolCalls:   []domain.ToolCall{{ToolName: "calc", Args: map[string]any{"x": float64(2)}, CallID: "c1"}},
			ToolOutputs: []domain.ToolOutput{{ToolName: "calc", CallID: "c1", Content: "4"}},
		}
		if err := store.CreateMessage(ctx, early); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}

		messages, err := store.ListMessages(ctx, id)
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		want := []string{"zeroth", "first", "second", "third"}
		if len(messages) != len(want) {
			t.Fatalf("expected %d messages, got %d", len(want), len(messages))
		}
		for i, w := range want {
			if messages[i].TextContent != w {
				t.Fatalf("position %d: want %q got %q", i, w, messages[i].TextContent)
			}
		}
		if len(messages[0].ToolCalls) != 1 || messages[0].ToolCalls[0].CallID != "c1" {
			t.Fatalf("tool calls not round-tripped: %+v", messages[0].ToolCalls)
		}
		if len(messages[0].ToolOutputs) != 1 || messages[0].ToolOutputs[0].Content != "4" {
			t.Fatalf("tool outputs not round-tripped: %+v", messages[0].ToolOutputs)
		}

		n, err := store.DeleteMessages(ctx, id)
		if err != nil || n != 4 {
			t.Fatalf("DeleteMessages = %d, %v", n, err)
		}
		if exists, _ := store.SessionExists(ctx, id); !exists {
			t.Fatalf("clearing messages removed the session")
		}

		msg := &domain.Message{ID: domain.NewMessageID(), SessionID: id, Role: domain.RoleUser, TextContent: "again"}
		if err := store.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
		if err := store.DeleteSession(ctx, id); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}
		messages, err = store.ListMessages(ctx, id)
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		if len(messages) != 0 {
			t.Fatalf("expected cascade delete, got %d messages", len(messages))
		}
	})
}

func TestStoreCreateMessageUnknownSession(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.Store) {
		msg := &domain.Message{ID: domain.NewMessageID(), SessionID: domain.NewSessionID(), Role: domain.RoleUser, TextContent: "hi"}
		err := store.CreateMessage(context.Background(), msg)
		if !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestStoreListSessions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.Store) {
		ctx := context.Background()
		for _, s := range []*domain.Session{
			{ID: domain.NewSessionID(), UserID: "u1", AgentID: "a1"},
			{ID: domain.NewSessionID(), UserID: "u1", AgentID: "a2"},
			{ID: domain.NewSessionID(), UserID: "u2", AgentID: "a1"},
		} {
			if err := store.CreateSession(ctx, s); err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}
		}

		got, err := store.ListSessions(ctx, domain.ListSessionsOptions{UserID: "u1"})
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 sessions for u1, got %d", len(got))
		}
		got, err = store.ListSessions(ctx, domain.ListSessionsOptions{AgentID: "a1", Limit: 1})
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(got) != 1 || got[0].AgentID != "a1" {
			t.Fatalf("unexpected sessions: %+v", got)
		}
	})
}

func TestStoreCancelledContext(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.Store) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := store.GetSession(ctx, domain.NewSessionID())
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Fatalf("expected ErrStoreUnavailable, got %v", err)
		}
	})
}
