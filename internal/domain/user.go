package domain

import "time"

// User represents an account within the platform. PasswordHash is empty for
// accounts created through federated sign-in; GoogleSub is empty for
// first-party accounts.
type User struct {
	ID           string
	Email        string
	Name         string
	Picture      string
	GoogleSub    string
	PasswordHash string
	Locale       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
