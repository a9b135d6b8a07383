package models

import (
	"time"
)

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

type User struct {
	ID                         int        `json:"id" db:"id"`
	Username                   string     `json:"username" db:"username"`
	Email                      string     `json:"email" db:"email"`
	Nickname                   string     `json:"nickname" db:"nickname"`
	Password                   string     `json:"-" db:"password"`
	Role                       string     `json:"role" db:"role"`
	IsEmailVerified            bool       `json:"is_email_verified" db:"is_email_verified"`
	EmailVerificationCode      *string    `json:"-" db:"email_verification_code"`
	EmailVerificationExpiresAt *time.Time `json:"-" db:"email_verification_expires_at"`
	CreatedAt                  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt                  time.Time  `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds elevated privilege.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicProfile is the client-visible slice of a user record. Password and
// verification-code fields never leave the server.
type PublicProfile struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:       u.ID,
		Username: u.Username,
		Nickname: u.Nickname,
		Role:     u.Role,
	}
}
