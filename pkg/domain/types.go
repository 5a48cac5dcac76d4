package domain

import "time"

type UserRole string

const (
	RoleUser       UserRole = "user"
	RoleAdmin      UserRole = "admin"
	RoleRestricted UserRole = "restricted"
)

type MessageRole string

const (
	RoleMessageUser      MessageRole = "user"
	RoleMessageAssistant MessageRole = "assistant"
	RoleMessageSystem    MessageRole = "system"
)

// User is the identity record consumed by the chat core. The core only
// reads it; account management lives outside this backend.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email"`
	ChatDBUUID   string    `json:"-"`
	Role         UserRole  `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	Birthday     string    `json:"birthday,omitempty"`
	City         string    `json:"city,omitempty"`
	Country      string    `json:"country,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one role-tagged utterance inside a conversation. ID is the
// store-assigned insertion sequence and breaks timestamp ties.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID string      `json:"conversationId"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// ModelInfo describes one installed backend model.
type ModelInfo struct {
	Name string `json:"name"`
}

// ModelList is the discovery result exposed to the UI.
type ModelList struct {
	Models       []ModelInfo `json:"models"`
	DefaultModel string      `json:"default_model"`
}

// ErrorLogEntry is one append-only audit row for a failed request.
type ErrorLogEntry struct {
	ID            int64             `json:"id"`
	UserUUID      string            `json:"userUuid,omitempty"`
	RequestMethod string            `json:"requestMethod"`
	RequestURL    string            `json:"requestUrl"`
	IPAddress     string            `json:"ipAddress"`
	StatusCode    int               `json:"statusCode"`
	ErrorMessage  string            `json:"errorMessage"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// LoginHistoryEntry is one append-only audit row for a login event.
type LoginHistoryEntry struct {
	ID        int64     `json:"id"`
	UserUUID  string    `json:"userUuid"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
}
