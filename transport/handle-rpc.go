package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/meshgate/meshgate/shared"
	"go.uber.org/zap"
)

// HandleRPC serves the unary endpoint: one JSON-RPC request envelope in,
// one envelope out. RPC-level errors still travel with HTTP 200, per the
// JSON-RPC convention.
func (t *Transport) HandleRPC() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := t.logger.With(zap.String("remoteAddr", r.RemoteAddr))

		if r.Method != http.MethodPost {
			logger.Warn("Method not allowed", zap.String("method", r.Method))
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		conn := t.getConn(w, r)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Error("Failed to read request body", zap.Error(err))
			sendJSONRPCErrorResponse(w, nil, shared.JSONRPCErrorParseError, "Failed to read request body", nil, logger)
			return
		}
		defer r.Body.Close()

		req, rpcErr := shared.ParseRequest(body)
		if rpcErr != nil {
			logger.Warn("Rejecting malformed request", zap.Error(rpcErr))
			sendJSONRPCErrorResponse(w, nil, rpcErr.Code, rpcErr.Message, rpcErr.Data, logger)
			return
		}

		result, rpcErr := t.manager.Dispatch(r.Context(), conn, req)
		if rpcErr != nil {
			sendJSONRPCErrorResponse(w, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data, logger)
			return
		}

		response, err := shared.NewResponse(req.ID, result)
		if err != nil {
			logger.Error("Failed to marshal result", zap.Error(err), zap.String("method", req.Method))
			sendJSONRPCErrorResponse(w, req.ID, shared.JSONRPCErrorInternal, "Failed to marshal result", nil, logger)
			return
		}
		sendJSONResponse(w, http.StatusOK, response, logger)
	}
}

func sendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Failed to encode JSON response", zap.Error(err))
		}
	}
}

func sendJSONRPCErrorResponse(w http.ResponseWriter, id *shared.RequestID, code int, message string, data interface{}, logger *zap.Logger) {
	errResp := shared.JSONRPCErrorResponse{
		JSONRPC: shared.JSONRPCVersion,
		ID:      id, // nil for parse errors, by spec
		Error: &shared.JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	logger.Debug("Sending JSON-RPC error",
		zap.Int("code", code),
		zap.String("message", message),
	)
	sendJSONResponse(w, http.StatusOK, errResp, logger)
}
