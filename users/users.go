package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AuthMethod is how a local account proves its identity.
type AuthMethod string

const (
	AuthMethodExternal AuthMethod = "external" // Signs in through the OpenID provider
	AuthMethodPassword AuthMethod = "password" // Signs in with a local password
)

type User struct {
	ID           string     `json:"id,omitempty"`          // Unique identifier for the user
	Username     string     `json:"username,omitempty"`    // Unique username
	Email        string     `json:"email,omitempty"`       // User's email address
	FirstName    string     `json:"first_name,omitempty"`  // First name of the user
	LastName     string     `json:"last_name,omitempty"`   // Last name of the user
	PasswordHash string     `json:"-"`                     // Hashed version of the user's password - never serialize
	AuthMethod   AuthMethod `json:"auth_method,omitempty"` // How the user signs in
	Suspended    bool       `json:"suspended,omitempty"`   // Suspended users cannot sign in
	CreatedAt    time.Time  `json:"created_at,omitempty"`  // Date and time when the account was created
	LastLogin    time.Time  `json:"last_login,omitempty"`  // Last time the user logged in
}

// UsesExternalAuth reports whether the account signs in through the provider.
func (u *User) UsesExternalAuth() bool {
	return u.AuthMethod == AuthMethodExternal
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
