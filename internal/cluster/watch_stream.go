package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// httpWatchStream decodes the newline-delimited JSON frames of a cluster
// watch response.
type httpWatchStream struct {
	body    io.ReadCloser
	decoder *json.Decoder

	closeOnce sync.Once
	closeErr  error
}

func newHTTPWatchStream(body io.ReadCloser) *httpWatchStream {
	return &httpWatchStream{
		body:    body,
		decoder: json.NewDecoder(body),
	}
}

func (s *httpWatchStream) Recv() (WatchEvent, error) {
	var event WatchEvent
	if err := s.decoder.Decode(&event); err != nil {
		if err == io.EOF {
			return WatchEvent{}, io.EOF
		}
		return WatchEvent{}, fmt.Errorf("decode watch frame: %w", err)
	}
	return event, nil
}

func (s *httpWatchStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
