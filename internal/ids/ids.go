// Package ids centralizes opaque id generation so every entity in the data
// model is minted the same way.
package ids

import "github.com/google/uuid"

// New mints a new opaque identifier.
func New() string {
	return uuid.New().String()
}
