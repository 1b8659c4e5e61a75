package http

import (
	"fmt"
	"net/http"

	"github.com/Drakonis96/optimAIzer-sub001/internal/streaming"
)

// sseSink prepares the response for server-sent events and returns a sink
// rendering each frame as one data line, flushed immediately so tokens
// reach the client as they arrive. X-Accel-Buffering keeps nginx-style
// proxies from holding the stream back.
func sseSink(w http.ResponseWriter) (streaming.Sink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return func(frame streaming.Frame) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", frame.JSON()); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}, nil
}
