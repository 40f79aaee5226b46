package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// User represents an authenticated account as stored by the external
// identity collaborator. The collaboration engine only ever reads it.
type User struct {
	ID        string `json:"id" gorm:"primaryKey;type:uuid"`
	Username  string `json:"username" gorm:"uniqueIndex;not null"`
	Email     string `json:"email" gorm:"uniqueIndex;not null"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsActive  bool   `json:"is_active" gorm:"default:true"`
}

// TableName overrides the gorm table name
func (User) TableName() string {
	return "users"
}

// DisplayName returns the human-readable name for roster payloads
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// UserStore resolves user identities for the authenticator
type UserStore interface {
	// GetByID returns the user with the given opaque identifier, or an
	// error if no such user exists
	GetByID(ctx context.Context, id string) (*User, error)
}

// GormUserStore is the database-backed UserStore
type GormUserStore struct {
	db *gorm.DB
}

// NewGormUserStore creates a UserStore backed by the given gorm database
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

// GetByID implements UserStore
func (s *GormUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s not found", id)
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}
