package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aspicho/stream-chat-reader/message"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres store test")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE messages, channels`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func insertAt(t *testing.T, s *Store, ts int64, content string) message.ChatMessage {
	t.Helper()
	m, err := message.New(message.Twitch, "alice", "bob", content, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Timestamp = ts
	if err := s.InsertMessage(context.Background(), m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return m
}

func TestListMessagesBeforeTimestamp(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()
	insertAt(t, s, 100, "a")
	mid := insertAt(t, s, 200, "b")
	insertAt(t, s, 300, "c")

	got, err := s.ListMessages(ctx, ListOptions{Limit: PageLimit(1), Before: &Cursor{Timestamp: 250}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != mid.ID {
		t.Fatalf("expected only the message at 200, got %+v", got)
	}

	all, err := s.ListMessages(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Timestamp <= all[i].Timestamp {
			t.Fatalf("not strictly descending at %d: %d then %d", i, all[i-1].Timestamp, all[i].Timestamp)
		}
	}

	empty, err := s.ListMessages(ctx, ListOptions{Before: &Cursor{Timestamp: 50}})
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestListMessagesBeforeID(t *testing.T) {
	s := NewStore(openTestDB(t))
	first := insertAt(t, s, 100, "a")
	second := insertAt(t, s, 100, "b")

	got, err := s.ListMessages(context.Background(), ListOptions{Before: &Cursor{ID: second.ID}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("expected only the older id, got %+v", got)
	}
}

func TestListMessagesZeroLimit(t *testing.T) {
	s := NewStore(openTestDB(t))
	insertAt(t, s, 100, "a")
	insertAt(t, s, 200, "b")

	got, err := s.ListMessages(context.Background(), ListOptions{Limit: PageLimit(0)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("limit 0 should return an empty page, got %d messages", len(got))
	}
}

func TestListMessagesIDCursorWalk(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()
	want := map[uuid.UUID]bool{}
	for i := 0; i < 7; i++ {
		m, err := message.New(message.Twitch, "alice", "bob", "line", nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.InsertMessage(ctx, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
		want[m.ID] = true
	}

	seen := map[uuid.UUID]bool{}
	var before *Cursor
	for page := 0; page < 10; page++ {
		got, err := s.ListMessages(ctx, ListOptions{Limit: PageLimit(2), Before: before})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) == 0 {
			break
		}
		for _, m := range got {
			seen[m.ID] = true
		}
		before = &Cursor{ID: got[len(got)-1].ID}
	}
	if len(seen) != len(want) {
		t.Fatalf("walked %d of %d messages", len(seen), len(want))
	}
}

func TestPingWaitsForStoreLock(t *testing.T) {
	s := NewStore(openTestDB(t))
	s.mu.Lock()
	done := make(chan error, 1)
	go func() { done <- s.Ping(context.Background()) }()
	select {
	case <-done:
		s.mu.Unlock()
		t.Fatal("ping ran while another store operation held the lock")
	case <-time.After(50 * time.Millisecond):
	}
	s.mu.Unlock()
	if err := <-done; err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestInsertDuplicateID(t *testing.T) {
	s := NewStore(openTestDB(t))
	m := insertAt(t, s, 100, "a")
	err := s.InsertMessage(context.Background(), m)
	var se *StorageError
	if !errors.As(err, &se) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict storage error, got %v", err)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	s := NewStore(openTestDB(t))
	m, _ := message.New(message.YouTube, "UCx", "carol", "hello", json.RawMessage(`{"is_moderator":true}`))
	if err := s.InsertMessage(context.Background(), m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.GetMessage(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var meta map[string]bool
	if err := json.Unmarshal(got.Metadata, &meta); err != nil || !meta["is_moderator"] {
		t.Fatalf("metadata not preserved: %s (%v)", got.Metadata, err)
	}
}

func TestMarkPublished(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()
	m := insertAt(t, s, 100, "a")

	got, already, err := s.MarkPublished(ctx, m.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if already || !got.Published || got.ID != m.ID || got.Content != "a" {
		t.Fatalf("unexpected first publish result: %+v already=%v", got, already)
	}

	got, already, err = s.MarkPublished(ctx, m.ID)
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if !already || !got.Published {
		t.Fatalf("expected already published, got %+v already=%v", got, already)
	}

	if _, _, err := s.MarkPublished(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChannelCRUD(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	if _, err := s.AddChannel(ctx, "alice", message.Twitch, true); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddChannel(ctx, "alice", message.Twitch, false); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.AddChannel(ctx, "alice", message.Kick, false); err != nil {
		t.Fatalf("same name on another platform should be allowed: %v", err)
	}

	chs, err := s.ListChannels(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chs) != 2 || chs[0].Platform != message.Kick || !chs[1].Listen {
		t.Fatalf("unexpected channels: %+v", chs)
	}

	ok, err := s.DeleteChannel(ctx, message.Twitch, "alice")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	ok, err = s.DeleteChannel(ctx, message.Twitch, "alice")
	if err != nil || ok {
		t.Fatalf("second delete should be a no-op: ok=%v err=%v", ok, err)
	}
}
