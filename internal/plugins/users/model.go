// Package users keeps the directory of people who appear in the activity
// log. Records carry only a numeric user ID; alert templates, email
// recipients, and feed authors resolve names and addresses here.
package users

import "time"

// User is a directory entry. IDs are assigned by the system that produces
// the activity, not by this service.
type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// UpsertRequest is the body of PUT /api/v1/users/:id.
type UpsertRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}
