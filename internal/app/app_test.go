package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"localchat/pkg/ai"
	"localchat/pkg/domain"
	"localchat/pkg/modelsession"
	"localchat/pkg/store"
)

type scriptedBackend struct {
	reply     string
	chatErr   error
	warmupErr error
	chatCalls int
}

func (b *scriptedBackend) Chat(ctx context.Context, model string, messages []ai.ChatMessage) (string, error) {
	b.chatCalls++
	if b.chatErr != nil {
		return "", b.chatErr
	}
	return b.reply, nil
}

func (b *scriptedBackend) Warmup(ctx context.Context, model string) error {
	return b.warmupErr
}

type testEnv struct {
	app     *App
	chat    *store.GormChatStore
	audit   *store.GormAuditStore
	backend *scriptedBackend
	session *modelsession.Manager
}

func newTestEnv(t *testing.T, backend *scriptedBackend) testEnv {
	t.Helper()
	dir := t.TempDir()

	chat, err := store.OpenChatStore(filepath.Join(dir, "chat.db"))
	if err != nil {
		t.Fatalf("open chat store: %v", err)
	}
	t.Cleanup(func() { _ = chat.Close() })

	audit, err := store.OpenAuditStore(filepath.Join(dir, "logs.db"))
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}
	t.Cleanup(func() { _ = audit.Close() })

	session := modelsession.New(backend, nil, modelsession.Options{DefaultModel: "m1"})
	core, err := New(Config{
		Backend:      backend,
		Session:      session,
		Audit:        audit,
		HistoryLimit: 50,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return testEnv{app: core, chat: chat, audit: audit, backend: backend, session: session}
}

func (e testEnv) loadModel(t *testing.T) {
	t.Helper()
	if err := e.session.RequestLoad(context.Background(), "m1"); err != nil {
		t.Fatalf("load model: %v", err)
	}
}

func TestSubmitTurnHappyPath(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{reply: "Sounds like a great trip!"})
	env.loadModel(t)

	convo, err := env.chat.CreateConversation("Trip planning")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	reply, err := env.app.SubmitTurn(context.Background(), env.chat, TurnRequest{
		ConversationID: convo.ID,
		UserText:       "Hi",
	})
	if err != nil {
		t.Fatalf("submit turn: %v", err)
	}
	if reply.Role != domain.RoleMessageAssistant || reply.Content != "Sounds like a great trip!" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	msgs, err := env.chat.ListMessages(convo.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleMessageUser || msgs[0].Content != "Hi" {
		t.Fatalf("first message should be the user turn: %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleMessageAssistant {
		t.Fatalf("second message should be the assistant turn: %+v", msgs[1])
	}
}

func TestSubmitTurnEmptyMessage(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{reply: "x"})
	env.loadModel(t)

	_, err := env.app.SubmitTurn(context.Background(), env.chat, TurnRequest{UserText: "   "})
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSubmitTurnWithoutLoadedModel(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{reply: "x"})

	convo, err := env.chat.CreateConversation("early")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	_, err = env.app.SubmitTurn(context.Background(), env.chat, TurnRequest{
		ConversationID: convo.ID,
		UserText:       "Hi",
	})
	if !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady, got %v", err)
	}
	if env.backend.chatCalls != 0 {
		t.Fatal("backend must not be invoked without a ready model")
	}
	msgs, err := env.chat.ListMessages(convo.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("no message may be persisted, got %d", len(msgs))
	}
}

func TestSubmitTurnBackendFailureKeepsUserMessage(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{chatErr: errors.New("connection refused")})
	env.loadModel(t)

	convo, err := env.chat.CreateConversation("flaky")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	_, err = env.app.SubmitTurn(context.Background(), env.chat, TurnRequest{
		ConversationID: convo.ID,
		UserText:       "Hi",
		TenantID:       "tenant-1",
		IPAddress:      "127.0.0.1",
	})
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}

	msgs, err := env.chat.ListMessages(convo.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != domain.RoleMessageUser {
		t.Fatalf("expected only the user message persisted, got %+v", msgs)
	}

	entries, err := env.audit.ListErrors(10)
	if err != nil {
		t.Fatalf("list errors: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(entries))
	}
	if entries[0].UserUUID != "tenant-1" || entries[0].StatusCode != 502 {
		t.Fatalf("unexpected audit entry %+v", entries[0])
	}
}

func TestSubmitTurnStartsConversationWhenMissing(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{reply: "hello"})
	env.loadModel(t)

	reply, err := env.app.SubmitTurn(context.Background(), env.chat, TurnRequest{
		UserText: "Plan a weekend in Lisbon",
	})
	if err != nil {
		t.Fatalf("submit turn: %v", err)
	}

	convos, err := env.chat.ListConversations()
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convos) != 1 {
		t.Fatalf("expected one conversation, got %d", len(convos))
	}
	if convos[0].Title != "Plan a weekend in Lisbon" {
		t.Fatalf("unexpected title %q", convos[0].Title)
	}
	if reply.ConversationID != convos[0].ID {
		t.Fatal("reply should reference the new conversation")
	}
}

func TestAttachFileAppendsSystemMessage(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{reply: "x"})

	convo, err := env.chat.CreateConversation("with notes")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	msg, err := env.app.AttachFile(env.chat, convo.ID, "notes.txt", strings.NewReader("packing list: sunscreen"))
	if err != nil {
		t.Fatalf("attach file: %v", err)
	}
	if msg.Role != domain.RoleMessageSystem {
		t.Fatalf("expected system message, got %q", msg.Role)
	}
	if !strings.Contains(msg.Content, "packing list: sunscreen") {
		t.Fatalf("extracted text missing from message: %q", msg.Content)
	}
}

func TestAttachFileRejectsUnsupportedExtension(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{reply: "x"})

	convo, err := env.chat.CreateConversation("binary")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	_, err = env.app.AttachFile(env.chat, convo.ID, "malware.exe", strings.NewReader("MZ"))
	if !errors.Is(err, ErrUnsupportedAttachment) {
		t.Fatalf("expected ErrUnsupportedAttachment, got %v", err)
	}
}

func TestAttachFileUnknownConversation(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{reply: "x"})

	_, err := env.app.AttachFile(env.chat, "missing", "notes.txt", strings.NewReader("x"))
	if !errors.Is(err, store.ErrUnknownConversation) {
		t.Fatalf("expected ErrUnknownConversation, got %v", err)
	}
}
