package chatrelay

import (
	"bytes"
	"encoding/json"
)

// Frame prefixes of the line-delimited stream protocol. Each line on the
// wire is `<prefix>:<payload>\n`.
const (
	frameText  = '0' // payload is a JSON-encoded string fragment
	frameError = '3' // payload is a JSON-encoded error message
	frameDone  = 'd' // payload is a JSON object with the finish reason
)

// Frame is one decoded unit of the streaming protocol.
type Frame struct {
	Prefix  byte
	Payload []byte
}

// lineBuffer reassembles newline-delimited lines out of arbitrarily split
// reads. Incoming bytes are appended; complete lines are returned and the
// trailing incomplete fragment is retained for the next feed.
type lineBuffer struct {
	buf []byte
}

func (b *lineBuffer) feed(p []byte) [][]byte {
	b.buf = append(b.buf, p...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			return lines
		}
		line := make([]byte, i)
		copy(line, b.buf[:i])
		b.buf = b.buf[i+1:]
		lines = append(lines, line)
	}
}

// decodeFrame interprets one complete line. Returns false for lines that are
// not well-formed frames; callers skip those.
func decodeFrame(line []byte) (Frame, bool) {
	if len(line) < 2 || line[1] != ':' {
		return Frame{}, false
	}
	return Frame{Prefix: line[0], Payload: line[2:]}, true
}

// textFragment decodes a 0: or 3: payload into its string value.
func textFragment(payload []byte) (string, error) {
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		return "", err
	}
	return s, nil
}

// doneFrame is the payload of the d: terminal sentinel.
type doneFrame struct {
	FinishReason string `json:"finishReason"`
}
