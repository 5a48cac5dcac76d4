// Package app is the chat core: it turns a validated request into store
// writes and backend calls.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"localchat/pkg/ai"
	"localchat/pkg/domain"
	"localchat/pkg/modelsession"
	"localchat/pkg/storage"
	"localchat/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	Backend      ai.ChatBackend
	Session      *modelsession.Manager
	Audit        store.AuditStore
	Files        *storage.FileStore
	HistoryLimit int
}

// App wires the model session, the inference backend, and the audit log
// around per-tenant chat stores.
type App struct {
	backend      ai.ChatBackend
	session      *modelsession.Manager
	audit        store.AuditStore
	files        *storage.FileStore
	historyLimit int
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("chat backend required")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("model session manager required")
	}
	if cfg.Audit == nil {
		return nil, fmt.Errorf("audit store required")
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit < 0 {
		historyLimit = 0
	}
	return &App{
		backend:      cfg.Backend,
		session:      cfg.Session,
		audit:        cfg.Audit,
		files:        cfg.Files,
		historyLimit: historyLimit,
	}, nil
}

// TurnRequest describes one chat turn. AuditContext fields only feed the
// audit log on failure.
type TurnRequest struct {
	ConversationID string
	UserText       string

	TenantID  string
	IPAddress string
	RequestID string
}

// SubmitTurn appends the user message, invokes the backend synchronously,
// persists the reply, and returns it. The user message is durable before
// the backend is called: a crash mid-turn loses at most the reply. An empty
// ConversationID starts a new conversation titled from the message.
func (a *App) SubmitTurn(ctx context.Context, chat store.ChatStore, req TurnRequest) (domain.Message, error) {
	userText := strings.TrimSpace(req.UserText)
	if userText == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	model, ok := a.session.Current()
	if !ok {
		return domain.Message{}, ErrModelNotReady
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		convo, err := chat.CreateConversation(titleFromMessage(userText))
		if err != nil {
			return domain.Message{}, fmt.Errorf("create conversation: %w", err)
		}
		conversationID = convo.ID
	}

	if _, err := chat.AppendMessage(conversationID, domain.RoleMessageUser, userText); err != nil {
		return domain.Message{}, err
	}

	history, err := chat.ListMessages(conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	reply, err := a.backend.Chat(ctx, model, a.turnContext(history))
	if err != nil {
		a.audit.RecordError(domain.ErrorLogEntry{
			UserUUID:      req.TenantID,
			RequestMethod: "POST",
			RequestURL:    "/ask",
			IPAddress:     req.IPAddress,
			StatusCode:    502,
			ErrorMessage:  err.Error(),
			Metadata:      map[string]string{"request_id": req.RequestID, "model": model},
		})
		return domain.Message{}, fmt.Errorf("%w: %v", ErrInference, err)
	}

	assistant, err := chat.AppendMessage(conversationID, domain.RoleMessageAssistant, reply)
	if err != nil {
		return domain.Message{}, fmt.Errorf("save reply: %w", err)
	}
	return assistant, nil
}

// turnContext converts stored history into backend messages, keeping at
// most historyLimit of the latest turns (zero means unlimited).
func (a *App) turnContext(history []domain.Message) []ai.ChatMessage {
	if a.historyLimit > 0 && len(history) > a.historyLimit {
		history = history[len(history)-a.historyLimit:]
	}
	messages := make([]ai.ChatMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, ai.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return messages
}

// AttachFile extracts text from an uploaded file, stores the original on
// disk, and appends the extracted text as a system message so later turns
// can refer to it.
func (a *App) AttachFile(chat store.ChatStore, conversationID, filename string, content io.Reader) (domain.Message, error) {
	if _, ok, err := chat.GetConversation(conversationID); err != nil {
		return domain.Message{}, err
	} else if !ok {
		return domain.Message{}, store.ErrUnknownConversation
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return domain.Message{}, fmt.Errorf("read upload: %w", err)
	}
	text, err := ExtractText(filename, data)
	if err != nil {
		return domain.Message{}, err
	}

	if a.files != nil {
		if _, err := a.files.Save(conversationID, filename, strings.NewReader(string(data))); err != nil {
			return domain.Message{}, fmt.Errorf("store upload: %w", err)
		}
	}

	note := fmt.Sprintf("The user attached %q. Its contents:\n\n%s", filename, text)
	return chat.AppendMessage(conversationID, domain.RoleMessageSystem, note)
}

func titleFromMessage(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	runes := []rune(text)
	if len(runes) > 48 {
		return string(runes[:48]) + "…"
	}
	return text
}
