package models

import "time"

// Supplier is a vendor that can receive an RFQ.
type Supplier struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Email       *string   `json:"email"`
	Description string    `json:"description,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Location    string    `json:"location,omitempty"`
	Website     string    `json:"website,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
