package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.

// ConversationModel lives in a tenant chat database.
type ConversationModel struct {
	ID        string    `gorm:"primaryKey"`
	Title     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

// MessageModel lives in a tenant chat database. The integer primary key is
// the insertion sequence and breaks created-at ties when ordering.
type MessageModel struct {
	ID             int64             `gorm:"primaryKey;autoIncrement"`
	ConversationID string            `gorm:"not null;index:idx_messages_conversation"`
	Conversation   ConversationModel `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
	Role           string            `gorm:"not null"`
	Content        string            `gorm:"not null"`
	CreatedAt      time.Time         `gorm:"not null;index:idx_messages_conversation"`
}

// ErrorLogModel lives in the shared audit database.
type ErrorLogModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	UserUUID      string `gorm:"index"`
	RequestMethod string
	RequestURL    string
	IPAddress     string
	StatusCode    int
	ErrorMessage  string         `gorm:"type:text"`
	Metadata      datatypes.JSON // request metadata (request id, headers of interest)
	CreatedAt     time.Time      `gorm:"not null;index"`
}

func (ErrorLogModel) TableName() string { return "error_logs" }

// LoginHistoryModel lives in the shared audit database.
type LoginHistoryModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	UserUUID  string `gorm:"not null;index"`
	IPAddress string
	UserAgent string
	CreatedAt time.Time `gorm:"not null;index"`
}

func (LoginHistoryModel) TableName() string { return "login_history" }

// UserModel mirrors the identity database schema. The chat core never
// migrates or writes this table; only the setup bootstrapper does.
type UserModel struct {
	ID         string `gorm:"primaryKey"`
	Username   string `gorm:"uniqueIndex;not null"`
	Password   string `gorm:"not null"`
	Email      string `gorm:"uniqueIndex;not null"`
	ChatDBUUID string `gorm:"column:chat_db_uuid;not null"`
	Role       string `gorm:"not null"`
	Phone      string
	Birthday   string
	City       string
	Country    string
	CreatedAt  time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }
