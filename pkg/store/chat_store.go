package store

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"localchat/pkg/domain"
)

const defaultConversationTitle = "New Chat"

// GormChatStore implements ChatStore on one tenant's SQLite file.
type GormChatStore struct {
	db *gorm.DB
}

// OpenChatStore opens (creating if needed) a tenant chat database and runs
// auto-migrations. Initialization is idempotent; opening an existing store
// is safe.
func OpenChatStore(path string) (*GormChatStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open chat db: %w", err)
	}
	if err := db.AutoMigrate(&ConversationModel{}, &MessageModel{}); err != nil {
		closeGorm(db)
		return nil, fmt.Errorf("migrate chat db: %w", err)
	}
	return &GormChatStore{db: db}, nil
}

// CreateConversation inserts a conversation with a generated uuid.
func (s *GormChatStore) CreateConversation(title string) (domain.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultConversationTitle
	}
	model := ConversationModel{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conversationFromModel(model), nil
}

// GetConversation returns one conversation by ID.
func (s *GormChatStore) GetConversation(id string) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, fmt.Errorf("get conversation: %w", err)
	}
	return conversationFromModel(model), true, nil
}

// ListConversations returns all conversations, most recent first.
func (s *GormChatStore) ListConversations() ([]domain.Conversation, error) {
	var models []ConversationModel
	if err := s.db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	items := make([]domain.Conversation, 0, len(models))
	for _, model := range models {
		items = append(items, conversationFromModel(model))
	}
	return items, nil
}

// RenameConversation updates the title.
func (s *GormChatStore) RenameConversation(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("rename conversation: title required")
	}
	res := s.db.Model(&ConversationModel{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("rename conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownConversation
	}
	return nil
}

// DeleteConversation removes a conversation and all of its messages in one
// transaction.
func (s *GormChatStore) DeleteConversation(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MessageModel{}, "conversation_id = ?", id).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res := tx.Delete(&ConversationModel{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrUnknownConversation
		}
		return nil
	})
}

// AppendMessage records one message with a store-assigned timestamp and
// sequence. The conversation must exist in this store.
func (s *GormChatStore) AppendMessage(conversationID string, role domain.MessageRole, content string) (domain.Message, error) {
	model := MessageModel{
		ConversationID: conversationID,
		Role:           string(role),
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ConversationModel{}).Where("id = ?", conversationID).Count(&count).Error; err != nil {
			return fmt.Errorf("check conversation: %w", err)
		}
		if count == 0 {
			return ErrUnknownConversation
		}
		if err := tx.Omit("Conversation").Create(&model).Error; err != nil {
			return fmt.Errorf("append message: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return messageFromModel(model), nil
}

// ListMessages returns a conversation's messages in strict insertion order.
// A conversation with no messages yields an empty slice.
func (s *GormChatStore) ListMessages(conversationID string) ([]domain.Message, error) {
	var count int64
	if err := s.db.Model(&ConversationModel{}).Where("id = ?", conversationID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check conversation: %w", err)
	}
	if count == 0 {
		return nil, ErrUnknownConversation
	}
	var models []MessageModel
	if err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, model := range models {
		msgs = append(msgs, messageFromModel(model))
	}
	return msgs, nil
}

// Close releases the underlying database handle.
func (s *GormChatStore) Close() error {
	return closeGorm(s.db)
}

func openSQLite(path string) (*gorm.DB, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, err
	}
	// Referential integrity is off by default in SQLite.
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		closeGorm(db)
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		closeGorm(db)
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func closeGorm(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func conversationFromModel(model ConversationModel) domain.Conversation {
	return domain.Conversation{
		ID:        model.ID,
		Title:     model.Title,
		CreatedAt: model.CreatedAt,
	}
}

func messageFromModel(model MessageModel) domain.Message {
	return domain.Message{
		ID:             model.ID,
		ConversationID: model.ConversationID,
		Role:           domain.MessageRole(model.Role),
		Content:        model.Content,
		CreatedAt:      model.CreatedAt,
	}
}
