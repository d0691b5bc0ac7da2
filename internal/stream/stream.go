// Package stream reconstructs a complete assistant message from the
// incremental deltas of one streamed chat response, while handing each
// delta to the caller as it arrives.
package stream

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"modelstream/internal/core"
	"modelstream/internal/metrics"
	"modelstream/internal/sse"
)

// Terminal event names and sentinels recognized on the wire.
const (
	eventError   = "error"
	eventDone    = "done"
	doneSentinel = "[DONE]"
)

// Option configures a ChatStream.
type Option func(*ChatStream)

// WithProvider tags the stream's errors, logs, and metrics with the
// provider name.
func WithProvider(name string) Option {
	return func(s *ChatStream) { s.provider = name }
}

// WithLogger sets the logger used for non-fatal diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ChatStream) { s.logger = logger }
}

// ChatStream consumes the SSE events of one streamed response. It owns
// its response body exclusively: no sharing across concurrent requests,
// no internal locking beyond idempotent Close.
type ChatStream struct {
	body     io.ReadCloser
	dec      *sse.Decoder
	provider string
	logger   *slog.Logger

	content      []string
	toolCalls    toolCallAssembler
	finishReason string
	usage        core.Usage
	id           string
	model        string
	created      int64

	done      bool
	err       error
	closeOnce sync.Once
	closeErr  error
}

// New returns a ChatStream reading from body. The stream takes ownership
// of body; callers must call Close when done, whether or not the stream
// was fully consumed.
func New(body io.ReadCloser, opts ...Option) *ChatStream {
	s := &ChatStream{
		body:   body,
		dec:    sse.NewDecoder(body),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.provider != "" {
		s.logger = s.logger.With("provider", s.provider)
	}
	return s
}

// Recv returns the next live chunk in SSE arrival order. It returns
// io.EOF once the stream has terminated gracefully (done event, [DONE]
// sentinel, or end of the byte stream); Message is valid from then on.
// Any other error is terminal: a service-reported error event, a frame
// whose data was not valid JSON, or a read failure.
func (s *ChatStream) Recv() (*core.ChatChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return nil, io.EOF
	}

	for {
		ev, err := s.dec.Next()
		if err == io.EOF {
			s.finish()
			return nil, io.EOF
		}
		if err != nil {
			return nil, s.fail(core.NewStreamError(s.provider, "reading stream: "+err.Error(), "", err))
		}

		switch {
		case ev.Name == eventError:
			return nil, s.fail(core.NewStreamError(s.provider, "service reported stream error", ev.Data, nil))

		case ev.Name == eventDone || ev.Data == doneSentinel:
			// Graceful terminal event; remaining bytes, if any, are ignored.
			s.finish()
			return nil, io.EOF
		}

		if ev.Data == "" {
			continue
		}

		chunk, err := s.consume(ev.Data)
		if err != nil {
			return nil, s.fail(err)
		}
		if chunk == nil {
			// Frame carried no delta (e.g. a usage-only frame); absorbed.
			continue
		}
		if s.provider != "" {
			metrics.StreamChunks.WithLabelValues(s.provider).Inc()
		}
		return chunk, nil
	}
}

// consume folds one JSON frame into the aggregation state and builds the
// live chunk for it. A frame that is not valid JSON is a protocol
// violation and aborts the stream; it is never silently skipped.
func (s *ChatStream) consume(data string) (*core.ChatChunk, error) {
	var frame struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Created int64  `json:"created"`
		Choices []struct {
			Delta        core.Delta `json:"delta"`
			FinishReason *string    `json:"finish_reason"`
		} `json:"choices"`
		Usage *core.Usage `json:"usage"`
	}
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return nil, core.NewStreamError(s.provider, "malformed stream frame: "+err.Error(), data, err)
	}

	if frame.ID != "" {
		s.id = frame.ID
	}
	if frame.Model != "" {
		s.model = frame.Model
	}
	if frame.Created != 0 {
		s.created = frame.Created
	}
	if frame.Usage != nil {
		s.usage = *frame.Usage
	}

	if len(frame.Choices) == 0 {
		return nil, nil
	}

	choice := frame.Choices[0]
	chunk := &core.ChatChunk{Extra: extraDeltaFields(data)}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.finishReason = *choice.FinishReason
		chunk.FinishReason = *choice.FinishReason
	}

	if choice.Delta.Content != "" {
		s.content = append(s.content, choice.Delta.Content)
		chunk.Content = choice.Delta.Content
	}

	for _, tc := range choice.Delta.ToolCalls {
		fragment := core.ToolCallChunk{
			Index: tc.Index,
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Args:  tc.Function.Arguments,
		}
		s.toolCalls.add(fragment)
		chunk.ToolCallChunks = append(chunk.ToolCallChunks, fragment)
	}

	if chunk.Content == "" && chunk.ToolCallChunks == nil && chunk.FinishReason == "" && len(chunk.Extra) == 0 {
		return nil, nil
	}
	return chunk, nil
}

// extraDeltaFields collects delta fields the aggregator does not
// interpret (reasoning traces, refusals, provider extensions) so they
// survive as opaque chunk metadata.
func extraDeltaFields(data string) map[string]any {
	delta := gjson.Get(data, "choices.0.delta")
	if !delta.IsObject() {
		return nil
	}
	var extra map[string]any
	delta.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "role", "content", "tool_calls":
			return true
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[key.Str] = value.Value()
		return true
	})
	return extra
}

// finish finalizes aggregation state after graceful termination.
func (s *ChatStream) finish() {
	s.done = true
	_ = s.Close()
}

// fail records the terminal error, releases the body, and reports the
// failure. Cleanup problems never mask the primary error.
func (s *ChatStream) fail(err error) error {
	s.err = err
	if s.provider != "" {
		metrics.StreamFailures.WithLabelValues(s.provider).Inc()
	}
	_ = s.Close()
	return err
}

// Message returns the finalized response: the full aggregated content,
// the assembled tool calls (absent entirely when none resolved), the
// last observed finish reason, and usage when the service reported it.
// It is an error to call Message before the stream has terminated.
func (s *ChatStream) Message() (*core.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.done {
		return nil, core.NewStreamError(s.provider, "stream not finished", "", nil)
	}

	message := core.Message{
		Role:    "assistant",
		Content: strings.Join(s.content, ""),
	}
	message.ToolCalls = s.toolCalls.assemble(s.logger)

	return &core.ChatResponse{
		ID:       s.id,
		Object:   "chat.completion",
		Model:    s.model,
		Provider: s.provider,
		Created:  s.created,
		Usage:    s.usage,
		Choices: []core.Choice{{
			Message:      message,
			FinishReason: s.finishReason,
		}},
	}, nil
}

// Close releases the underlying body. It is idempotent and safe to call
// on any path; close failures are recorded but never surfaced in place
// of a primary error.
func (s *ChatStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
		if s.closeErr != nil {
			s.logger.Debug("closing stream body", "error", s.closeErr)
		}
	})
	return s.closeErr
}

