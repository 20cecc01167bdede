package relay

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeStream struct {
	fragments []string
	err       error // returned after fragments run out, instead of io.EOF
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.fragments) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	fragment := s.fragments[0]
	s.fragments = s.fragments[1:]
	return fragment, nil
}

func (s *fakeStream) Close() error { return nil }

func TestWriterTextFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)

	if err := sw.Text("Hello"); err != nil {
		t.Fatal(err)
	}
	if got := rec.Body.String(); got != "0:\"Hello\"\n" {
		t.Fatalf("unexpected frame: %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type: %q", ct)
	}
	if !rec.Flushed {
		t.Fatal("expected response to be flushed after frame")
	}
}

func TestWriterEscapesNewlinesAndQuotes(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)

	if err := sw.Text("line one\nline \"two\""); err != nil {
		t.Fatal(err)
	}
	got := rec.Body.String()
	if strings.Count(got, "\n") != 1 {
		t.Fatalf("payload newlines must be escaped, got %q", got)
	}
	if !strings.HasPrefix(got, `0:"line one\nline \"two\""`) {
		t.Fatalf("unexpected frame: %q", got)
	}
}

func TestCopyRelaysAndFinishes(t *testing.T) {
	rec := httptest.NewRecorder()
	stream := &fakeStream{fragments: []string{"Hel", "lo", "", " world"}}

	if err := Copy(NewWriter(rec), stream); err != nil {
		t.Fatal(err)
	}

	want := "0:\"Hel\"\n0:\"lo\"\n0:\" world\"\nd:{\"finishReason\":\"stop\"}\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("unexpected stream:\n got %q\nwant %q", got, want)
	}
}

func TestCopyProviderFailureMidStream(t *testing.T) {
	rec := httptest.NewRecorder()
	stream := &fakeStream{fragments: []string{"partial"}, err: errors.New("provider blew up")}

	err := Copy(NewWriter(rec), stream)
	if err == nil || err.Error() != "provider blew up" {
		t.Fatalf("expected provider error, got %v", err)
	}

	got := rec.Body.String()
	if !strings.Contains(got, "0:\"partial\"\n") {
		t.Fatalf("expected partial text before failure, got %q", got)
	}
	if !strings.Contains(got, "3:\"provider blew up\"\n") {
		t.Fatalf("expected 3: error frame, got %q", got)
	}
	if strings.Contains(got, "d:") {
		t.Fatalf("failed stream must not carry the done sentinel, got %q", got)
	}
}

func TestCopyEmptyStream(t *testing.T) {
	rec := httptest.NewRecorder()

	if err := Copy(NewWriter(rec), &fakeStream{}); err != nil {
		t.Fatal(err)
	}
	if got := rec.Body.String(); got != "d:{\"finishReason\":\"stop\"}\n" {
		t.Fatalf("expected only the done sentinel, got %q", got)
	}
}
