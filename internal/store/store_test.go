package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consultd/consultd/internal/model"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	log := logrus.NewEntry(logrus.New())
	log.Logger.SetOutput(io.Discard)

	s, err := Open(context.Background(), filepath.Join(dir, "test.db"), log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetConversation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	conv, err := s.CreateConversation(ctx, "conv-test1", "deepseek-chat", "", now)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.Status != model.ConversationActive {
		t.Fatalf("expected active status, got %s", conv.Status)
	}

	got, err := s.GetConversation(ctx, "conv-test1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(got.Messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(got.Messages))
	}
}

func TestGetConversationNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetConversation(context.Background(), "conv-missing")
	if err == nil {
		t.Fatal("expected error for missing conversation")
	}
}

func TestAddMessageEnforcesCap(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := s.CreateConversation(ctx, "conv-cap", "deepseek-chat", "", now); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	maxMessages := 2
	for i := 0; i < 4; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		if _, _, err := s.AddMessage(ctx, "conv-cap", role, "hi", maxMessages, now); err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}

	_, _, err := s.AddMessage(ctx, "conv-cap", model.RoleUser, "one too many", maxMessages, now)
	if err == nil {
		t.Fatal("expected LIMIT_EXCEEDED error")
	}
}

func TestArchiveConversationIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := s.CreateConversation(ctx, "conv-arch", "deepseek-chat", "", now); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	changed, err := s.ArchiveConversation(ctx, "conv-arch", model.EndReasonManual, now)
	if err != nil {
		t.Fatalf("ArchiveConversation: %v", err)
	}
	if !changed {
		t.Fatal("expected first archive to report a change")
	}

	changed, err = s.ArchiveConversation(ctx, "conv-arch", model.EndReasonManual, now)
	if err != nil {
		t.Fatalf("ArchiveConversation (2nd): %v", err)
	}
	if changed {
		t.Fatal("expected second archive to be a no-op")
	}
}

func TestSweepStaleArchivesOnlyOldConversations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-10 * time.Minute)
	fresh := time.Now()

	if _, err := s.CreateConversation(ctx, "conv-old", "deepseek-chat", "", old); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := s.CreateConversation(ctx, "conv-fresh", "deepseek-chat", "", fresh); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	ids, err := s.SweepStale(ctx, time.Now().Add(-5*time.Minute), time.Now())
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if len(ids) != 1 || ids[0] != "conv-old" {
		t.Fatalf("expected only conv-old to be swept, got %v", ids)
	}

	fresh2, err := s.GetConversation(ctx, "conv-fresh")
	if err != nil {
		t.Fatalf("GetConversation conv-fresh: %v", err)
	}
	if fresh2.Status != model.ConversationActive {
		t.Fatalf("expected conv-fresh to remain active, got %s", fresh2.Status)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.SetConfigValue(ctx, "defaultModel", "deepseek-reasoner"); err != nil {
		t.Fatalf("SetConfigValue: %v", err)
	}
	value, ok, err := s.GetConfigValue(ctx, "defaultModel")
	if err != nil {
		t.Fatalf("GetConfigValue: %v", err)
	}
	if !ok || value != "deepseek-reasoner" {
		t.Fatalf("expected deepseek-reasoner, got %q (ok=%v)", value, ok)
	}

	if err := s.SetConfigValue(ctx, "defaultModel", "gpt-5.2"); err != nil {
		t.Fatalf("SetConfigValue overwrite: %v", err)
	}
	value, _, err = s.GetConfigValue(ctx, "defaultModel")
	if err != nil {
		t.Fatalf("GetConfigValue: %v", err)
	}
	if value != "gpt-5.2" {
		t.Fatalf("expected overwrite to stick, got %q", value)
	}
}

func TestDocumentAndChunkCascade(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	doc := &model.Document{ID: "doc-test1", Title: "note", SourceType: model.SourceManual, CreatedAt: now}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	ids, err := s.InsertChunks(ctx, doc.ID, []string{"alpha", "beta"}, []int{1, 1}, now)
	if err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 chunk ids, got %d", len(ids))
	}

	if err := s.UpsertEmbedding(ctx, ids[0], []byte{0, 0, 128, 63}, 1, "test-embed", now); err != nil {
		t.Fatalf("UpsertEmbedding: %v", err)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	chunks, err := s.ChunksByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ChunksByDocument: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected cascade delete to remove chunks, found %d", len(chunks))
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
