package registry

import (
	"errors"
	"testing"

	"github.com/chesschat/chesschat-bot/internal/engine"
	"github.com/chesschat/chesschat-bot/internal/match"
)

func TestCreateAndGet(t *testing.T) {
	r := New()
	s, err := r.Create("chat1", "alice", "Alice", engine.White)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.WhiteID != "alice" {
		t.Fatalf("creator not seated on white: %q", s.WhiteID)
	}
	if r.Get("chat1") != s {
		t.Fatal("Get should return the created session")
	}
	if r.Get("chat2") != nil {
		t.Fatal("Get for another chat should be nil")
	}
}

func TestCreateRejectsSecondLiveSession(t *testing.T) {
	r := New()
	if _, err := r.Create("chat1", "alice", "Alice", engine.White); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create("chat1", "bob", "Bob", engine.Black); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("got %v, want ErrAlreadyActive", err)
	}
	// Other chats are unaffected.
	if _, err := r.Create("chat2", "bob", "Bob", engine.Black); err != nil {
		t.Fatalf("Create in second chat: %v", err)
	}
}

func TestTerminateFreesChat(t *testing.T) {
	r := New()
	s, err := r.Create("chat1", "alice", "Alice", engine.White)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r.Terminate("chat1")
	if s.Status != match.StatusTerminated {
		t.Fatalf("session status = %s, want TERMINATED", s.Status)
	}
	if r.Get("chat1") != nil {
		t.Fatal("terminated session still registered")
	}
	if _, err := r.Create("chat1", "bob", "Bob", engine.White); err != nil {
		t.Fatalf("create after terminate: %v", err)
	}
}

func TestTerminateUnknownChatIsNoop(t *testing.T) {
	r := New()
	r.Terminate("nope")
	if r.Len() != 0 {
		t.Fatal("unexpected sessions")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	r := New()
	s, err := r.Create("chat1", "alice", "Alice", engine.White)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Mu.Lock()
	if err := s.Join("bob", "Bob"); err != nil {
		s.Mu.Unlock()
		t.Fatalf("Join: %v", err)
	}
	if _, _, err := s.ApplyMove("e4"); err != nil {
		s.Mu.Unlock()
		t.Fatalf("ApplyMove: %v", err)
	}
	s.Mu.Unlock()

	records := r.Snapshot()
	if len(records) != 1 {
		t.Fatalf("snapshot size = %d, want 1", len(records))
	}

	r2 := New()
	if skipped := r2.Restore(records); len(skipped) != 0 {
		t.Fatalf("unexpected skipped records: %v", skipped)
	}
	got := r2.Get("chat1")
	if got == nil {
		t.Fatal("restored session missing")
	}
	if got.FEN() != s.FEN() {
		t.Fatalf("FEN mismatch after restore:\n got %s\nwant %s", got.FEN(), s.FEN())
	}
}

func TestSnapshotSkipsTerminatedSession(t *testing.T) {
	r := New()
	if _, err := r.Create("chat1", "alice", "Alice", engine.White); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dead, err := r.Create("chat2", "bob", "Bob", engine.White)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Concluded but not yet removed, as between a terminal command's status
	// transition and its registry removal.
	dead.Mu.Lock()
	dead.Terminate()
	dead.Mu.Unlock()

	records := r.Snapshot()
	if len(records) != 1 || records[0].ChatID != "chat1" {
		t.Fatalf("snapshot = %+v, want only chat1", records)
	}
}

func TestRestoreSkipsCorruptRecords(t *testing.T) {
	r := New()
	records := []match.Record{
		{ID: "m1", ChatID: "chat1", WhiteID: "a", BlackID: "b", Status: match.StatusActive, MovesUCI: []string{"e2e4"}},
		{ID: "m2", ChatID: "chat2", WhiteID: "c", BlackID: "d", Status: match.StatusActive, MovesUCI: []string{"zzzz"}},
	}
	skipped := r.Restore(records)
	if len(skipped) != 1 {
		t.Fatalf("skipped = %v, want one error", skipped)
	}
	if r.Get("chat1") == nil || r.Get("chat2") != nil {
		t.Fatal("valid record lost or corrupt record restored")
	}
}
