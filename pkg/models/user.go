package models

import "time"

// User is a registered account held in the in-memory registry.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Password     string    `json:"-"` // bcrypt hash
	RegisteredAt time.Time `json:"registeredAt"`
}

// Public returns a copy without the password hash.
func (u User) Public() User {
	u.Password = ""
	return u
}
