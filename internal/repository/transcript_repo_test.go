package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agent-hub/backend/internal/db"
	"github.com/agent-hub/backend/internal/model"
)

func newTestRepo(t *testing.T) *TranscriptRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return NewTranscriptRepository(testDB)
}

func TestTranscriptAppendAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	user := model.NewMessage("I want to start working out", "alice", model.KindUser, nil)
	reply := model.NewMessage("Let's build a plan.", "Helios", model.KindHandler, map[string]any{
		"handler":    "fitness",
		"confidence": 0.9,
	})

	if err := repo.Append(ctx, "alice", user); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := repo.Append(ctx, "alice", reply); err != nil {
		t.Fatalf("append reply: %v", err)
	}
	if err := repo.Append(ctx, "bob", user); err != nil {
		t.Fatalf("append other session: %v", err)
	}

	entries, err := repo.List(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].Content != user.Content() || entries[0].Kind != model.KindUser || entries[0].Sender != "alice" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Handler != "fitness" {
		t.Errorf("expected handler fitness, got %q", entries[1].Handler)
	}
	if entries[1].Metadata["confidence"] != 0.9 {
		t.Errorf("metadata not preserved: %v", entries[1].Metadata)
	}
	if entries[0].ID == "" || entries[0].ID == entries[1].ID {
		t.Errorf("expected distinct generated ids")
	}
	if !entries[0].CreatedAt.Equal(user.Timestamp()) {
		t.Errorf("created_at mismatch: %v vs %v", entries[0].CreatedAt, user.Timestamp())
	}

	n, err := repo.Count(ctx, "bob")
	if err != nil || n != 1 {
		t.Errorf("expected 1 entry for bob, got %d (%v)", n, err)
	}
}

func TestTranscriptListLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		msg := model.NewMessage(fmt.Sprintf("m%d", i), "carol", model.KindUser, nil)
		if err := repo.Append(ctx, "carol", msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := repo.List(ctx, "carol", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := []string{entries[0].Content, entries[1].Content, entries[2].Content}
	want := []string{"m7", "m8", "m9"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestTranscriptDeleteSession(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	repo.Append(ctx, "dave", model.NewMessage("hello", "dave", model.KindUser, nil))
	if err := repo.DeleteSession(ctx, "dave"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entries, err := repo.List(ctx, "dave", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestTranscriptPreservesOrderProperty(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	session := 0
	properties.Property("listed entries match appended contents in order", prop.ForAll(
		func(contents []string) bool {
			session++
			id := fmt.Sprintf("s%d", session)
			for _, c := range contents {
				if err := repo.Append(ctx, id, model.NewMessage(c, id, model.KindUser, nil)); err != nil {
					return false
				}
			}
			entries, err := repo.List(ctx, id, 0)
			if err != nil || len(entries) != len(contents) {
				return false
			}
			for i, c := range contents {
				if entries[i].Content != c {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
