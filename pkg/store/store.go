// Package store provides gorm+SQLite persistence for the chat backend:
// one chat database per tenant, a shared append-only audit database, and a
// read-only view of the identity database.
package store

import (
	"errors"

	"localchat/pkg/domain"
)

var (
	// ErrUnknownConversation is returned when a message operation targets a
	// conversation that does not exist in this tenant's store.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrTenantResolution is returned when a tenant id cannot be mapped to a
	// chat database (malformed id or inaccessible storage location).
	ErrTenantResolution = errors.New("tenant resolution failed")
	// ErrUserNotFound is returned by identity lookups for missing users.
	ErrUserNotFound = errors.New("user not found")
)

// ChatStore is one tenant's conversation store.
type ChatStore interface {
	CreateConversation(title string) (domain.Conversation, error)
	GetConversation(id string) (domain.Conversation, bool, error)
	ListConversations() ([]domain.Conversation, error)
	RenameConversation(id, title string) error
	DeleteConversation(id string) error

	AppendMessage(conversationID string, role domain.MessageRole, content string) (domain.Message, error)
	ListMessages(conversationID string) ([]domain.Message, error)

	Close() error
}

// AuditStore is the shared append-only error/login record. Implementations
// must never let a write failure reach the request path.
type AuditStore interface {
	RecordError(entry domain.ErrorLogEntry)
	RecordLogin(entry domain.LoginHistoryEntry)

	// Read side, for the admin surface and tests.
	ListErrors(limit int) ([]domain.ErrorLogEntry, error)
	ListLogins(limit int) ([]domain.LoginHistoryEntry, error)

	Close() error
}

// IdentityStore reads user records. The chat core consumes this database,
// it does not own it.
type IdentityStore interface {
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	// TenantID maps a user id to that user's chat database uuid.
	TenantID(userID string) (string, error)

	Close() error
}
