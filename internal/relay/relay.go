// Package relay turns a completion provider's output into a line-delimited
// chunked HTTP response.
//
// Each frame is one line, `<prefix>:<payload>\n`:
//
//	0:<JSON string>  a fragment of assistant text
//	3:<JSON string>  an error signal; consumers log it and keep reading
//	d:<JSON object>  terminal sentinel, distinguishes completion from a
//	                 truncated stream
package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/chatrelay/chatrelay/internal/llm"
)

// FinishStop is the finish reason reported on normal completion.
const FinishStop = "stop"

// Writer frames fragments onto a chunked HTTP response, flushing after every
// frame so the client sees text as the provider emits it. The writer never
// buffers or accumulates fragments.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewWriter wraps a response writer for streaming.
func NewWriter(w http.ResponseWriter) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// start sends the response headers. Once called, the status can no longer
// change; later failures go out as 3: frames or truncation.
func (sw *Writer) start() {
	if sw.started {
		return
	}
	sw.started = true
	sw.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	sw.w.Header().Set("Cache-Control", "no-cache")
	sw.w.Header().Set("X-Accel-Buffering", "no")
	sw.w.WriteHeader(http.StatusOK)
}

func (sw *Writer) frame(prefix byte, payload []byte) error {
	sw.start()
	if _, err := fmt.Fprintf(sw.w, "%c:%s\n", prefix, payload); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// Text emits a fragment of assistant text as a 0: frame. The fragment is
// JSON-encoded to escape newlines and quotes.
func (sw *Writer) Text(fragment string) error {
	payload, err := json.Marshal(fragment)
	if err != nil {
		return err
	}
	return sw.frame('0', payload)
}

// StreamError emits a 3: error frame.
func (sw *Writer) StreamError(message string) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return sw.frame('3', payload)
}

// Done emits the d: terminal sentinel.
func (sw *Writer) Done(finishReason string) error {
	payload, err := json.Marshal(map[string]string{"finishReason": finishReason})
	if err != nil {
		return err
	}
	return sw.frame('d', payload)
}

// Copy forwards a provider stream to the writer fragment by fragment until
// the provider finishes or fails. Chunk boundaries are not guaranteed to
// survive the wire; consumers must reassemble on newlines.
//
// A provider failure after the stream has started is reported as a 3: frame
// followed by end of stream (the status line is already gone); the error is
// also returned so the caller can log and count it.
func Copy(sw *Writer, stream llm.Stream) error {
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			return sw.Done(FinishStop)
		}
		if err != nil {
			if werr := sw.StreamError(err.Error()); werr != nil {
				return werr
			}
			return err
		}
		if fragment == "" {
			continue
		}
		if err := sw.Text(fragment); err != nil {
			// Client went away; abandon the relay.
			return err
		}
	}
}
