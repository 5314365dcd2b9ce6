package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

// define error messages
var (
	ErrUserCreate            = errors.New("failed creating user")
	ErrUserNotFound          = errors.New("failed finding user")
	ErrUserDuplicateUsername = errors.New("username already taken")
)

// define postgres constraints
const (
	UniqueUsername = "idx_users_username"
)

// AutonomyLevel controls how much the agent may do without asking
type AutonomyLevel string

const (
	AutonomyLevelManual AutonomyLevel = "manual"
	AutonomyLevelSemi   AutonomyLevel = "semi"
	AutonomyLevelFull   AutonomyLevel = "full"
)

// User represents a user in the system
type User struct {
	ID                      uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username                *string        `gorm:"size:255;uniqueIndex"                           json:"username,omitempty"`
	Email                   *string        `gorm:"size:255;uniqueIndex"                           json:"email,omitempty"`
	PasswordHash            *string        `gorm:"size:255"                                       json:"-"` // Never expose password hash in JSON
	WalletAddress           *string        `gorm:"size:255"                                       json:"walletAddress,omitempty"`
	Autonomy                AutonomyLevel  `gorm:"size:20;not null;default:'semi';check:autonomy IN ('manual','semi','full')" json:"autonomy"`
	RequireApprovalAboveUSD float64        `gorm:"not null;default:100"                           json:"requireApprovalAboveUsd"`
	CreatedAt               time.Time      `                                                      json:"createdAt"`
	UpdatedAt               time.Time      `                                                      json:"updatedAt"`
	DeletedAt               gorm.DeletedAt `gorm:"index"                                          json:"deletedAt,omitempty"`

	// Associations
	Conversations []Conversation `gorm:"foreignKey:UserID" json:"conversations,omitempty"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook to ensure ID is set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// PublicUser represents user data safe for public consumption
type PublicUser struct {
	ID            uuid.UUID     `json:"id"`
	Username      *string       `json:"username,omitempty"`
	Email         *string       `json:"email,omitempty"`
	WalletAddress *string       `json:"walletAddress,omitempty"`
	Autonomy      AutonomyLevel `json:"autonomy"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// ToPublic converts User to PublicUser (removes sensitive data)
func (u *User) ToPublic() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		WalletAddress: u.WalletAddress,
		Autonomy:      u.Autonomy,
		CreatedAt:     u.CreatedAt,
	}
}

// CreateUser persists a new user and maps the uniqueness violation
// on username to a dedicated error
func CreateUser(u *User) error {
	err := db.Get().Create(u).Error
	if err != nil {
		// Identifies Postgres uniqueness violation error
		if pgErr, isPGErr := err.(*pgconn.PgError); isPGErr {
			if pgErr.ConstraintName == UniqueUsername {
				return ErrUserDuplicateUsername
			}
		}
		return ErrUserCreate
	}
	return nil
}

// GetUserByUsername fetches a user by their unique username
func GetUserByUsername(username string) (User, error) {
	user := User{}
	err := db.Get().First(&user, User{Username: &username}).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return user, ErrUserNotFound
		}
		return user, err
	}
	return user, nil
}

// EnsureUser makes sure the user with the given ID exists
func EnsureUser(userID uuid.UUID) error {
	u := &User{ID: userID}
	return db.Get().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(u).Error
}
