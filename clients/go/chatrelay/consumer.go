package chatrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/qmuntal/stateless"
)

// StreamState is the state of one in-flight message exchange.
type StreamState string

const (
	StateIdle      StreamState = "idle"
	StateSent      StreamState = "sent"      // request in flight, user message pending locally
	StateThinking  StreamState = "thinking"  // headers received, no text yet
	StateStreaming StreamState = "streaming" // assistant text arriving
	StateCompleted StreamState = "completed"
	StateErrored   StreamState = "errored"
)

// Stream triggers
type streamTrigger string

const (
	triggerSubmit     streamTrigger = "submit"
	triggerHeaders    streamTrigger = "headers"
	triggerFirstFrame streamTrigger = "firstFrame"
	triggerFinish     streamTrigger = "finish"
	triggerFail       streamTrigger = "fail"
)

// newStreamMachine builds the per-exchange state machine. Errored is
// absorbing and reachable from every non-terminal state.
func newStreamMachine(onState func(StreamState)) *stateless.StateMachine {
	sm := stateless.NewStateMachine(StateIdle)

	sm.Configure(StateIdle).
		Permit(triggerSubmit, StateSent)

	sm.Configure(StateSent).
		Permit(triggerHeaders, StateThinking).
		Permit(triggerFail, StateErrored)

	sm.Configure(StateThinking).
		Permit(triggerFirstFrame, StateStreaming).
		Permit(triggerFinish, StateCompleted).
		Permit(triggerFail, StateErrored)

	sm.Configure(StateStreaming).
		Permit(triggerFinish, StateCompleted).
		Permit(triggerFail, StateErrored)

	if onState != nil {
		sm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
			if state, ok := t.Destination.(StreamState); ok {
				onState(state)
			}
		})
	}

	return sm
}

// PendingMessage is a local-only message that has not been confirmed by the
// server. It carries a client-generated ULID instead of a server ID; a
// confirmed Message replaces it wholesale on acknowledgment, so no shared
// identifier field is ever mutated in place.
type PendingMessage struct {
	LocalID   string
	Role      string
	Content   string
	CreatedAt time.Time
}

func newPendingMessage(role, content string) PendingMessage {
	return PendingMessage{
		LocalID:   ulid.Make().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// StreamOptions configures callbacks for one exchange. All callbacks are
// invoked from the reading goroutine.
type StreamOptions struct {
	// OnState is invoked on every state transition.
	OnState func(StreamState)
	// OnDelta is invoked after each decoded text fragment with the FULL
	// accumulated text so far, so renderers replace content wholesale.
	OnDelta func(accumulated string)
	// OnStreamError is invoked for 3: error frames and for malformed
	// frames. These are soft failures; the stream keeps going.
	OnStreamError func(message string)
}

// StreamResult is the outcome of one completed exchange.
type StreamResult struct {
	// UserMessage is the optimistic local copy of the submitted message.
	UserMessage PendingMessage

	// Text is the full accumulated assistant text.
	Text string

	// Truncated reports that the stream ended without the terminal
	// sentinel: the text may be incomplete, so nothing was persisted.
	Truncated bool

	// FinishReason is taken from the d: sentinel, empty when truncated.
	FinishReason string

	// Assistant is the confirmed server record of the assistant message,
	// nil when nothing was persisted.
	Assistant *Message

	// PendingAssistant holds the unconfirmed assistant message when text
	// was accumulated but not durably saved (truncation or save failure).
	PendingAssistant *PendingMessage

	// SaveErr is the error from the follow-up persistence call, if any.
	// The accumulated text stays visible locally; it is just not durable.
	SaveErr error
}

// SendMessage submits a user message to a chat and consumes the streamed
// assistant response. It returns once the stream has ended and, when the
// stream completed normally with non-empty text, the finalized assistant
// message has been pushed back for persistence.
//
// Cancelling ctx mid-stream abandons the read loop and the accumulator;
// nothing partial is persisted.
func (c *Client) SendMessage(ctx context.Context, chatID, text string, opts *StreamOptions) (*StreamResult, error) {
	if opts == nil {
		opts = &StreamOptions{}
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("chatrelay: empty message")
	}

	sm := newStreamMachine(opts.OnState)
	result := &StreamResult{
		UserMessage: newPendingMessage("user", text),
	}

	body, _ := json.Marshal(map[string]string{"msg": text})
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/chats/"+chatID+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	_ = sm.Fire(triggerSubmit)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		_ = sm.Fire(triggerFail)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		_ = sm.Fire(triggerFail)
		return nil, apiError(resp.StatusCode, respBody)
	}

	_ = sm.Fire(triggerHeaders)

	var (
		lb       lineBuffer
		acc      strings.Builder
		finished bool
		chunk    = make([]byte, 4096)
	)

	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			for _, line := range lb.feed(chunk[:n]) {
				frame, ok := decodeFrame(line)
				if !ok {
					continue
				}
				switch frame.Prefix {
				case frameText:
					fragment, err := textFragment(frame.Payload)
					if err != nil {
						if opts.OnStreamError != nil {
							opts.OnStreamError(fmt.Sprintf("malformed text frame: %v", err))
						}
						continue
					}
					if sm.MustState() == StateThinking {
						_ = sm.Fire(triggerFirstFrame)
					}
					acc.WriteString(fragment)
					if opts.OnDelta != nil {
						opts.OnDelta(acc.String())
					}
				case frameError:
					message, err := textFragment(frame.Payload)
					if err != nil {
						message = string(frame.Payload)
					}
					if opts.OnStreamError != nil {
						opts.OnStreamError(message)
					}
				case frameDone:
					var done doneFrame
					if err := json.Unmarshal(frame.Payload, &done); err == nil {
						result.FinishReason = done.FinishReason
					}
					finished = true
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// Mid-stream failure: abandon whatever was accumulated.
			_ = sm.Fire(triggerFail)
			return nil, readErr
		}
	}

	_ = sm.Fire(triggerFinish)

	result.Text = acc.String()
	result.Truncated = !finished

	if strings.TrimSpace(result.Text) == "" {
		return result, nil
	}

	if result.Truncated {
		// Completion cannot be told apart from a cut stream without the
		// sentinel; keep the text local only.
		pending := newPendingMessage("assistant", result.Text)
		result.PendingAssistant = &pending
		return result, nil
	}

	saved, err := c.SaveAssistantMessage(ctx, chatID, result.Text)
	if err != nil {
		pending := newPendingMessage("assistant", result.Text)
		result.PendingAssistant = &pending
		result.SaveErr = err
		return result, nil
	}
	result.Assistant = saved

	return result, nil
}
