package transport

import (
	"io"
	"net/http"

	"github.com/meshgate/meshgate/shared"
	"go.uber.org/zap"
)

// HandleStream serves the streaming endpoint. It accepts the same request
// envelopes as /rpc but renders the response as newline-delimited JSON
// events: a start meta event, zero or more message events, then exactly
// one end meta event. The terminal marker is written even when the
// underlying call fails, with the error delivered as a message event.
func (t *Transport) HandleStream() http.HandlerFunc {
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

		// Envelope-level failures happen before the stream opens, so they
		// are reported as a plain unary error response.
		req, rpcErr := shared.ParseRequest(body)
		if rpcErr != nil {
			logger.Warn("Rejecting malformed stream request", zap.Error(rpcErr))
			sendJSONRPCErrorResponse(w, nil, rpcErr.Code, rpcErr.Message, rpcErr.Data, logger)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		sw := shared.NewStreamWriter(w)
		if err := sw.Start(); err != nil {
			// The consumer is gone; nothing effectful has happened yet.
			logger.Warn("Failed to write stream start", zap.Error(err))
			return
		}

		// Dispatch completes fully before result events are written, so a
		// dropped connection mid-stream never leaves rate-limit or
		// sequence state half-applied.
		result, dispatchErr := t.manager.Dispatch(r.Context(), conn, req)

		writeErr := func() error {
			if dispatchErr != nil {
				return sw.Error(dispatchErr)
			}
			if chunker, ok := result.(shared.Chunker); ok {
				for _, chunk := range chunker.Chunks() {
					if err := sw.Message(chunk); err != nil {
						return err
					}
				}
				return nil
			}
			return sw.Message(result)
		}()
		if writeErr != nil {
			logger.Warn("Stream write failed, client likely disconnected", zap.Error(writeErr))
			// Still attempt the terminal marker; it fails fast if the
			// connection is gone.
		}

		if err := sw.End(nil); err != nil {
			logger.Debug("Failed to write stream end", zap.Error(err))
		}
	}
}
