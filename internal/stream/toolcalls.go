package stream

import (
	"encoding/json"
	"log/slog"
	"strings"

	"modelstream/internal/core"
)

// toolCallAccumulator holds the in-progress state of one streamed tool
// call: the last non-empty name seen and its argument fragments in
// arrival order.
type toolCallAccumulator struct {
	id   string
	name string
	args []string
}

// toolCallAssembler merges fragmented, interleaved tool-call argument
// strings into complete named calls. Identity is established strictly by
// call ID: fragments without one are usable for live display but can
// never be merged, because the wire-level index is a UI ordering hint,
// not an identity.
type toolCallAssembler struct {
	byID  map[string]*toolCallAccumulator
	order []string
}

// add routes one fragment to its accumulator. ID-less fragments are
// dropped here; the caller has already surfaced them as a live chunk.
func (a *toolCallAssembler) add(fragment core.ToolCallChunk) {
	if fragment.ID == "" {
		return
	}
	if a.byID == nil {
		a.byID = make(map[string]*toolCallAccumulator)
	}
	acc, ok := a.byID[fragment.ID]
	if !ok {
		acc = &toolCallAccumulator{id: fragment.ID}
		a.byID[fragment.ID] = acc
		a.order = append(a.order, fragment.ID)
	}
	if fragment.Name != "" {
		acc.name = fragment.Name
	}
	if fragment.Args != "" {
		acc.args = append(acc.args, fragment.Args)
	}
}

// assemble resolves all accumulators into completed calls. Concatenated
// arguments that fail to parse as JSON are kept as the raw string and
// logged; a tool call is never discarded solely because its argument
// JSON is malformed.
func (a *toolCallAssembler) assemble(logger *slog.Logger) []core.ToolCall {
	var calls []core.ToolCall
	for _, id := range a.order {
		acc := a.byID[id]
		if acc.name == "" || len(acc.args) == 0 {
			continue
		}
		raw := strings.Join(acc.args, "")

		var args any
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			logger.Warn("tool call arguments are not valid JSON, keeping raw string",
				"tool_call_id", acc.id,
				"tool", acc.name,
				"error", err,
			)
			args = raw
		}
		calls = append(calls, core.ToolCall{ID: acc.id, Name: acc.name, Args: args})
	}
	return calls
}
