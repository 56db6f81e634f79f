package gateway

import (
	"context"
	"errors"

	"github.com/meshgate/meshgate/comm"
	"github.com/meshgate/meshgate/shared"
)

// ToJSONRPCError maps a handler error onto a typed JSON-RPC error object.
// Domain errors carry stable implementation-defined codes so clients can
// react without parsing messages; throttling carries the retry hint.
func ToJSONRPCError(err error) *shared.JSONRPCError {
	if err == nil {
		return nil
	}

	var rpcErr *shared.JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var throttled *comm.ThrottledError
	if errors.As(err, &throttled) {
		return &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorRateLimited,
			Message: "Rate limit exceeded",
			Data: map[string]interface{}{
				"agentId":      throttled.AgentID,
				"retryAfterMs": throttled.RetryAfter.Milliseconds(),
			},
		}
	}

	switch {
	case errors.Is(err, comm.ErrAgentNotFound), errors.Is(err, comm.ErrSessionNotFound):
		return &shared.JSONRPCError{Code: shared.JSONRPCErrorNotFound, Message: err.Error()}
	case errors.Is(err, comm.ErrSessionEnded):
		return &shared.JSONRPCError{Code: shared.JSONRPCErrorSessionEnded, Message: err.Error()}
	case errors.Is(err, comm.ErrNotParticipant):
		return &shared.JSONRPCError{Code: shared.JSONRPCErrorNotParticipant, Message: err.Error()}
	case errors.Is(err, comm.ErrUnknownParticipant):
		return &shared.JSONRPCError{Code: shared.JSONRPCErrorUnknownParticipant, Message: err.Error()}
	case errors.Is(err, comm.ErrInvalidAgentID), errors.Is(err, comm.ErrNoParticipants):
		return &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &shared.JSONRPCError{Code: shared.JSONRPCErrorTimeout, Message: "Request timed out"}
	}

	return &shared.JSONRPCError{Code: shared.JSONRPCErrorInternal, Message: err.Error()}
}
