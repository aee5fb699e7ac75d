package api

import (
	"bytes"
	"net/http/httptest"
	"testing"
)

func TestSSEWriterEventFormat(t *testing.T) {
	recorder := httptest.NewRecorder()
	writer, err := startSSEWriter(recorder)
	if err != nil {
		t.Fatal(err)
	}

	if err := writer.WriteEvent("modified", map[string]string{"name": "demo"}); err != nil {
		t.Fatal(err)
	}

	want := "event: modified\ndata: {\"name\":\"demo\"}\n\n"
	if got := recorder.Body.String(); got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
	if got := recorder.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	if got := recorder.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Fatalf("X-Accel-Buffering = %q", got)
	}
}

func TestSSEWriterComment(t *testing.T) {
	recorder := httptest.NewRecorder()
	writer, err := startSSEWriter(recorder)
	if err != nil {
		t.Fatal(err)
	}

	if err := writer.WriteComment("heartbeat"); err != nil {
		t.Fatal(err)
	}
	if got := recorder.Body.String(); got != ": heartbeat\n\n" {
		t.Fatalf("body = %q", got)
	}
}

func TestSSEWriterMultiLineData(t *testing.T) {
	var buffer bytes.Buffer
	if err := writeSSEData(&buffer, []byte("one\ntwo")); err != nil {
		t.Fatal(err)
	}
	if got := buffer.String(); got != "data: one\ndata: two\n\n" {
		t.Fatalf("body = %q", got)
	}
}
