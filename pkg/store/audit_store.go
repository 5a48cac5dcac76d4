package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"localchat/pkg/domain"
)

// GormAuditStore implements AuditStore on a shared SQLite file. Rows are
// append-only; nothing in the core updates or deletes them.
type GormAuditStore struct {
	db *gorm.DB
}

// OpenAuditStore opens (creating if needed) the audit database.
func OpenAuditStore(path string) (*GormAuditStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.AutoMigrate(&ErrorLogModel{}, &LoginHistoryModel{}); err != nil {
		closeGorm(db)
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &GormAuditStore{db: db}, nil
}

// RecordError appends an error row. A failed write is logged and swallowed;
// audit problems never become request-visible errors.
func (s *GormAuditStore) RecordError(entry domain.ErrorLogEntry) {
	model := ErrorLogModel{
		UserUUID:      entry.UserUUID,
		RequestMethod: entry.RequestMethod,
		RequestURL:    entry.RequestURL,
		IPAddress:     entry.IPAddress,
		StatusCode:    entry.StatusCode,
		ErrorMessage:  entry.ErrorMessage,
		CreatedAt:     auditTime(entry.CreatedAt),
	}
	if len(entry.Metadata) > 0 {
		if raw, err := json.Marshal(entry.Metadata); err == nil {
			model.Metadata = datatypes.JSON(raw)
		}
	}
	if err := s.db.Create(&model).Error; err != nil {
		slog.Error("audit error write failed", "err", err, "request_url", entry.RequestURL)
	}
}

// RecordLogin appends a login-history row, best effort.
func (s *GormAuditStore) RecordLogin(entry domain.LoginHistoryEntry) {
	model := LoginHistoryModel{
		UserUUID:  entry.UserUUID,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		CreatedAt: auditTime(entry.CreatedAt),
	}
	if err := s.db.Create(&model).Error; err != nil {
		slog.Error("audit login write failed", "err", err, "user_uuid", entry.UserUUID)
	}
}

// ListErrors returns the most recent error rows, newest first.
func (s *GormAuditStore) ListErrors(limit int) ([]domain.ErrorLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []ErrorLogModel
	if err := s.db.Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list error logs: %w", err)
	}
	items := make([]domain.ErrorLogEntry, 0, len(models))
	for _, model := range models {
		entry := domain.ErrorLogEntry{
			ID:            model.ID,
			UserUUID:      model.UserUUID,
			RequestMethod: model.RequestMethod,
			RequestURL:    model.RequestURL,
			IPAddress:     model.IPAddress,
			StatusCode:    model.StatusCode,
			ErrorMessage:  model.ErrorMessage,
			CreatedAt:     model.CreatedAt,
		}
		if len(model.Metadata) > 0 {
			_ = json.Unmarshal(model.Metadata, &entry.Metadata)
		}
		items = append(items, entry)
	}
	return items, nil
}

// ListLogins returns the most recent login rows, newest first.
func (s *GormAuditStore) ListLogins(limit int) ([]domain.LoginHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []LoginHistoryModel
	if err := s.db.Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list login history: %w", err)
	}
	items := make([]domain.LoginHistoryEntry, 0, len(models))
	for _, model := range models {
		items = append(items, domain.LoginHistoryEntry{
			ID:        model.ID,
			UserUUID:  model.UserUUID,
			IPAddress: model.IPAddress,
			UserAgent: model.UserAgent,
			CreatedAt: model.CreatedAt,
		})
	}
	return items, nil
}

// Close releases the underlying database handle.
func (s *GormAuditStore) Close() error {
	return closeGorm(s.db)
}

func auditTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
