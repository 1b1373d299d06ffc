package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/AnswerDotAI/ai-jup/core"
)

// setSSEHeaders commits the response to event-stream framing. After this
// point failures can only be reported in-band.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// sseEncoder writes one data frame per stream event, flushing each so the
// client sees deltas as they happen rather than on buffer boundaries.
type sseEncoder struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEEncoder wraps the response writer. The flusher is optional; without
// one frames still go out, just on the transport's schedule.
func newSSEEncoder(w http.ResponseWriter) *sseEncoder {
	flusher, _ := w.(http.Flusher)
	return &sseEncoder{w: w, flusher: flusher}
}

// Write encodes one event as `data: <json>` terminated by a blank line.
func (e *sseEncoder) Write(ev core.StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode stream event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
