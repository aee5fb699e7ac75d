package watch

import "modelboard/internal/cluster"

// Envelope is the unit delivered to client mailboxes and rendered on the
// wire as the SSE data payload.
type Envelope struct {
	Type   string         `json:"type"`
	Object cluster.Object `json:"object,omitempty"`
}
