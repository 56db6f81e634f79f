package comm

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors. Handlers map these onto typed JSON-RPC error objects;
// none of them is ever allowed to crash the process.
var (
	ErrInvalidAgentID     = errors.New("invalid agent id")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionEnded       = errors.New("session has ended")
	ErrNotParticipant     = errors.New("sender is not a session participant")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrNoParticipants     = errors.New("session requires at least one participant")
)

// ThrottledError reports a denied send attempt together with the delay
// after which a retry is expected to succeed.
type ThrottledError struct {
	AgentID    string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limit exceeded for agent %s, retry after %s", e.AgentID, e.RetryAfter)
}
