// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxNameLen = 36

var (
	ErrNameTooLong = errors.New("name too long")
	ErrNameEmpty   = errors.New("name empty")
)

type UserID string

type User struct {
	ID        UserID `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Online    bool   `json:"isOnline"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(name string) (*User, error) {
	if len(name) == 0 {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return &User{ID: UserID(uuid.NewString()), Name: name}, nil
}

func (u *User) SetName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	u.Name = name
	return nil
}
