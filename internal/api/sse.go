package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

var errSSENoFlusher = errors.New("sse response writer does not support flushing")

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func startSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errSSENoFlusher
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")

	flusher.Flush()
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// WriteEvent emits one `event:`/`data:` block. The event name is expected
// lower-case; payload is JSON-encoded.
func (writer *sseWriter) WriteEvent(eventName string, payload any) error {
	if writer == nil {
		return errors.New("sse writer missing")
	}

	if eventName != "" {
		if _, err := io.WriteString(writer.writer, "event: "); err != nil {
			return err
		}
		if _, err := io.WriteString(writer.writer, eventName); err != nil {
			return err
		}
		if _, err := io.WriteString(writer.writer, "\n"); err != nil {
			return err
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := writeSSEData(writer.writer, data); err != nil {
		return err
	}
	writer.flusher.Flush()
	return nil
}

// WriteComment emits a comment line, used for heartbeats. Comments consume
// no event slot on the client.
func (writer *sseWriter) WriteComment(comment string) error {
	if writer == nil {
		return errors.New("sse writer missing")
	}
	if _, err := io.WriteString(writer.writer, ": "); err != nil {
		return err
	}
	if _, err := io.WriteString(writer.writer, strings.TrimSpace(comment)); err != nil {
		return err
	}
	if _, err := io.WriteString(writer.writer, "\n\n"); err != nil {
		return err
	}
	writer.flusher.Flush()
	return nil
}

func writeSSEData(writer io.Writer, data []byte) error {
	if len(data) == 0 {
		_, err := io.WriteString(writer, "data:\n\n")
		return err
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		if _, err := io.WriteString(writer, "data: "); err != nil {
			return err
		}
		if _, err := writer.Write(line); err != nil {
			return err
		}
		if _, err := io.WriteString(writer, "\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(writer, "\n")
	return err
}
