// Package client consumes a prompt event stream: an incremental byte-to-event
// decoder plus the tool-call reconstruction state machine, feeding a Renderer.
package client

import (
	"bytes"
	"strings"

	"github.com/AnswerDotAI/ai-jup/core"
)

// Renderer receives reconstructed stream events as they complete. Callbacks
// run on the goroutine feeding the Consumer.
type Renderer interface {
	// Text receives an incremental assistant text delta.
	Text(delta string)
	// ToolCallStart announces a tool invocation before its arguments arrive.
	ToolCallStart(id, name string)
	// ToolInput receives one raw argument fragment for an open call.
	ToolInput(id, fragment string)
	// ToolResult reports the outcome of a previously announced call, with
	// the full accumulated argument JSON.
	ToolResult(result core.ToolResult, rawInput string)
	// Finish is called exactly once: on done, on a fatal in-band error, or
	// when the connection closes without a terminal event.
	Finish(reason string, err *core.Error)
}

type openCall struct {
	name  string
	input strings.Builder
}

// Consumer incrementally decodes an event stream. Feed accepts arbitrary
// byte chunks; events are surfaced only once a full frame line is available.
// Open tool calls are tracked in a map keyed by call ID, so interleaved
// calls from a single model turn reconstruct independently.
type Consumer struct {
	renderer Renderer
	buf      []byte
	open     map[string]*openCall
	finished bool
}

// NewConsumer creates a consumer delivering events to the given renderer.
func NewConsumer(renderer Renderer) *Consumer {
	return &Consumer{
		renderer: renderer,
		open:     make(map[string]*openCall),
	}
}

// Feed consumes the next chunk of stream bytes. Chunk boundaries are
// arbitrary; a partial trailing line is held until its remainder arrives.
// Returns true once a terminal event has been rendered.
func (c *Consumer) Feed(p []byte) bool {
	if c.finished {
		return true
	}
	c.buf = append(c.buf, p...)
	for {
		i := bytes.IndexByte(c.buf, '\n')
		if i < 0 {
			return c.finished
		}
		line := c.buf[:i]
		c.buf = c.buf[i+1:]
		c.handleLine(line)
		if c.finished {
			return true
		}
	}
}

// Close finalizes the consumer when the connection ends without a terminal
// event. A stream that already saw done or error is unaffected.
func (c *Consumer) Close() {
	c.finish("", nil)
}

// Finished reports whether a terminal event has been rendered.
func (c *Consumer) Finished() bool {
	return c.finished
}

func (c *Consumer) handleLine(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return
	}
	data = bytes.TrimPrefix(data, []byte(" "))
	if len(data) == 0 {
		return
	}
	ev, err := core.DecodeEvent(data)
	if err != nil {
		// Malformed or unknown frames never abort the stream.
		return
	}
	c.handleEvent(ev)
}

func (c *Consumer) handleEvent(ev core.StreamEvent) {
	switch ev.Type {
	case core.EventText:
		c.renderer.Text(ev.Text)
	case core.EventToolCall:
		if _, exists := c.open[ev.Call.ID]; exists {
			return
		}
		c.open[ev.Call.ID] = &openCall{name: ev.Call.Name}
		c.renderer.ToolCallStart(ev.Call.ID, ev.Call.Name)
	case core.EventToolInput:
		call, exists := c.open[ev.Input.ID]
		if !exists {
			return
		}
		call.input.WriteString(ev.Input.Fragment)
		c.renderer.ToolInput(ev.Input.ID, ev.Input.Fragment)
	case core.EventToolResult:
		call, exists := c.open[ev.Result.ID]
		if !exists {
			// A result with no prior announcement is invalid; skip it.
			return
		}
		delete(c.open, ev.Result.ID)
		c.renderer.ToolResult(*ev.Result, call.input.String())
	case core.EventError:
		c.finish("", ev.Err)
	case core.EventDone:
		c.finish(ev.DoneReason, nil)
	}
}

func (c *Consumer) finish(reason string, err *core.Error) {
	if c.finished {
		return
	}
	c.finished = true
	c.open = make(map[string]*openCall)
	c.renderer.Finish(reason, err)
}
