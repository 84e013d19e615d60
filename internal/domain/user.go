package domain

import "time"

// User represents a bot user stored in the database. Rows are never deleted.
type User struct {
	ID                   int64
	Username             string
	FirstName            string
	LastName             string
	NotificationsEnabled bool
	LastActivity         time.Time
}

// Profile carries the display fields received from Telegram on every contact.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}
