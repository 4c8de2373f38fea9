package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a risk profiling account linked to a Cognito identity
type User struct {
	ID         uuid.UUID `json:"id" db:"id"`
	CognitoSub string    `json:"cognito_sub" db:"cognito_sub"` // Cognito user identifier
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name" db:"name"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates an active User
func NewUser(email, cognitoSub, name string) *User {
	now := time.Now()
	return &User{
		ID:         uuid.New(),
		CognitoSub: cognitoSub,
		Email:      email,
		Name:       name,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
