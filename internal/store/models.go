package store

import "time"

// Slot is one named blob. The owning packages define the names.
type Slot struct {
	Name      string    `json:"name"`
	Payload   []byte    `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}
