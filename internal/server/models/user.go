package models

import "time"

// User is an account. PasswordHash never leaves the server; ReferrerID is
// set once at registration and cleared by the database if the referrer is
// deleted.
type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string
	ReferrerID   *string
	LastLogin    *time.Time
	CreatedAt    time.Time
}
