package store

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"localchat/pkg/domain"
)

// GormIdentityStore reads the users database. The chat core consumes this
// table; account creation and credential handling happen elsewhere (the
// setup bootstrapper migrates it).
type GormIdentityStore struct {
	db *gorm.DB
}

// OpenIdentityStore opens the users database read-side.
func OpenIdentityStore(path string) (*GormIdentityStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open users db: %w", err)
	}
	return &GormIdentityStore{db: db}, nil
}

// OpenIdentityStoreForSetup opens the users database and migrates the users
// table. Only the setup bootstrapper uses this entry point.
func OpenIdentityStoreForSetup(path string) (*GormIdentityStore, error) {
	s, err := OpenIdentityStore(path)
	if err != nil {
		return nil, err
	}
	if err := s.db.AutoMigrate(&UserModel{}); err != nil {
		closeGorm(s.db)
		return nil, fmt.Errorf("migrate users db: %w", err)
	}
	return s, nil
}

// GetUserByID returns one user by id.
func (s *GormIdentityStore) GetUserByID(id string) (domain.User, bool, error) {
	return s.getUser("id = ?", id)
}

// GetUserByUsername returns one user by username.
func (s *GormIdentityStore) GetUserByUsername(username string) (domain.User, bool, error) {
	return s.getUser("username = ?", strings.TrimSpace(username))
}

// TenantID maps a user id to that user's chat database uuid.
func (s *GormIdentityStore) TenantID(userID string) (string, error) {
	user, ok, err := s.GetUserByID(userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUserNotFound
	}
	return user.ChatDBUUID, nil
}

// CreateUser inserts a user row. Exposed for the setup bootstrapper and
// tests; the serving path never writes users.
func (s *GormIdentityStore) CreateUser(u domain.User) error {
	model := UserModel{
		ID:         u.ID,
		Username:   u.Username,
		Password:   u.PasswordHash,
		Email:      u.Email,
		ChatDBUUID: u.ChatDBUUID,
		Role:       string(u.Role),
		Phone:      u.Phone,
		Birthday:   u.Birthday,
		City:       u.City,
		Country:    u.Country,
		CreatedAt:  u.CreatedAt,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *GormIdentityStore) Close() error {
	return closeGorm(s.db)
}

func (s *GormIdentityStore) getUser(cond string, arg any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, cond, arg).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, fmt.Errorf("get user: %w", err)
	}
	return domain.User{
		ID:           model.ID,
		Username:     model.Username,
		PasswordHash: model.Password,
		Email:        model.Email,
		ChatDBUUID:   model.ChatDBUUID,
		Role:         domain.UserRole(model.Role),
		Phone:        model.Phone,
		Birthday:     model.Birthday,
		City:         model.City,
		Country:      model.Country,
		CreatedAt:    model.CreatedAt,
	}, true, nil
}
