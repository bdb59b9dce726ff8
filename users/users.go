package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jrsteele09/peek-plugin-user/tuples"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string    `json:"id,omitempty"`          // Unique identifier for the user
	UserName     string    `json:"userName"`              // Login name, unique
	DisplayName  string    `json:"displayName,omitempty"` // Name shown in user pickers
	Email        string    `json:"email,omitempty"`       // Contact address
	PasswordHash string    `json:"-"`                     // Hashed version of the user's password - never serialize
	GroupNames   []string  `json:"groupNames,omitempty"`  // Groups the user belongs to
	Blocked      bool      `json:"blocked,omitempty"`     // Blocked, has the user been blocked from logging in
	DateJoined   time.Time `json:"dateJoined,omitempty"`  // Date and time when the user was created
	LastLogin    time.Time `json:"lastLogin,omitempty"`   // Last successful login
}

// ListItem projects the user onto the public user list tuple.
func (u *User) ListItem() tuples.UserListItem {
	name := u.DisplayName
	if strings.TrimSpace(name) == "" {
		name = u.UserName
	}
	return tuples.UserListItem{UserID: u.UserName, DisplayName: name}
}

func (u *User) InGroup(group string) bool {
	for _, g := range u.GroupNames {
		if strings.EqualFold(g, group) {
			return true
		}
	}
	return false
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
