package sessions

import "github.com/google/uuid"

// NewPageID mints the opaque per-page session token embedded into served
// HTML and echoed back with every inbound task.
func NewPageID() string {
	return uuid.NewString()
}
