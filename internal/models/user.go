package models

import "time"

// User is a registered account. The password hash never leaves the server.
type User struct {
	ID           string     `db:"id" json:"uid"`
	Name         string     `db:"name" json:"nombre"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Online       bool       `db:"online" json:"online"`
	LastLogin    *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

// UserStats summarizes account presence counts.
type UserStats struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
}
