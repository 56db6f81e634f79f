package shared

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Stream event discriminators. A streamed response is a line-delimited
// sequence of events: one {type:"meta",event:"start"}, zero or more
// {type:"message"} events carrying result payload, and a terminal
// {type:"meta",event:"end"}.
const (
	StreamEventMeta    = "meta"
	StreamEventMessage = "message"

	StreamMetaStart = "start"
	StreamMetaEnd   = "end"
)

// StreamEvent is one line of a streamed RPC response.
type StreamEvent struct {
	Type  string           `json:"type"`
	Event string           `json:"event,omitempty"` // "start" or "end" for meta events
	Data  *json.RawMessage `json:"data,omitempty"`  // payload for message events, summary for meta
}

// Chunker lets a result deliver itself as multiple message events instead
// of a single payload. Results that do not implement it are streamed as one
// message event.
type Chunker interface {
	Chunks() []interface{}
}

// StreamWriter serializes stream events onto an HTTP response, flushing
// after every event so the consumer observes partial progress.
type StreamWriter struct {
	w       io.Writer
	flusher http.Flusher
	started bool
	ended   bool
}

// NewStreamWriter wraps an http.ResponseWriter. Flushing is best-effort:
// writers that do not implement http.Flusher are still usable, events are
// just delivered at the transport's discretion.
func NewStreamWriter(w io.Writer) *StreamWriter {
	sw := &StreamWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

func (sw *StreamWriter) writeEvent(ev *StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	if _, err := sw.w.Write(append(data, '\n')); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// Start emits the opening meta event. It must be called exactly once,
// before any message event.
func (sw *StreamWriter) Start() error {
	if sw.started {
		return nil
	}
	sw.started = true
	return sw.writeEvent(&StreamEvent{Type: StreamEventMeta, Event: StreamMetaStart})
}

// Message emits one unit of the underlying result.
func (sw *StreamWriter) Message(payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stream payload: %w", err)
	}
	rawMsg := json.RawMessage(raw)
	return sw.writeEvent(&StreamEvent{Type: StreamEventMessage, Data: &rawMsg})
}

// Error emits a message event carrying a JSON-RPC error object. The stream
// still terminates with a normal end event afterwards.
func (sw *StreamWriter) Error(rpcErr *JSONRPCError) error {
	return sw.Message(map[string]interface{}{"error": rpcErr})
}

// End emits the terminal meta event. Safe to call more than once; only the
// first call writes.
func (sw *StreamWriter) End(summary interface{}) error {
	if sw.ended {
		return nil
	}
	sw.ended = true
	ev := &StreamEvent{Type: StreamEventMeta, Event: StreamMetaEnd}
	if summary != nil {
		raw, err := json.Marshal(summary)
		if err == nil {
			rawMsg := json.RawMessage(raw)
			ev.Data = &rawMsg
		}
	}
	return sw.writeEvent(ev)
}
