package claude

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
)

// MaxLineSize is the largest stream-json line the decoder accepts (4 MiB).
// Longer lines are dropped and decoding continues with the next line.
const MaxLineSize = 4 << 20

// EventType discriminates Event.
type EventType string

const (
	EventInit             EventType = "init"
	EventTextDelta        EventType = "text_delta"
	EventToolUse          EventType = "tool_use"
	EventAssistantMessage EventType = "assistant"
	EventResult           EventType = "result"
)

// Event is one decoded stream-json line.
type Event struct {
	Type EventType

	// Text is set for EventTextDelta.
	Text string

	// ToolName and ToolInput are set for EventToolUse.
	ToolName  string
	ToolInput json.RawMessage

	// Raw holds the original line for EventInit and EventAssistantMessage.
	Raw json.RawMessage

	// Result is set for EventResult.
	Result *Result
}

// Result is the terminal object of a claude run, in both stream-json and json modes.
type Result struct {
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype,omitempty"`
	IsError      bool    `json:"is_error"`
	Result       string  `json:"result"`
	SessionID    string  `json:"session_id"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	DurationMS   int64   `json:"duration_ms"`
}

type wireLine struct {
	Type  string     `json:"type"`
	Event *wireInner `json:"event,omitempty"`
}

type wireInner struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	ContentBlock *struct {
		Type  string          `json:"type"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content_block,omitempty"`
}

// ParseLine maps one stream-json line to an Event. ok is false for blank,
// unparsable and unrecognized lines.
func ParseLine(line []byte) (ev Event, ok bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{}, false
	}

	var w wireLine
	if err := json.Unmarshal(line, &w); err != nil {
		return Event{}, false
	}

	switch w.Type {
	case "system":
		return Event{Type: EventInit, Raw: json.RawMessage(line)}, true
	case "assistant":
		return Event{Type: EventAssistantMessage, Raw: json.RawMessage(line)}, true
	case "result":
		var r Result
		if err := json.Unmarshal(line, &r); err != nil {
			return Event{}, false
		}
		return Event{Type: EventResult, Result: &r}, true
	case "stream_event":
		if w.Event == nil {
			return Event{}, false
		}
		switch w.Event.Type {
		case "content_block_delta":
			d := w.Event.Delta
			if d == nil || d.Type != "text_delta" || d.Text == "" {
				return Event{}, false
			}
			return Event{Type: EventTextDelta, Text: d.Text}, true
		case "content_block_start":
			cb := w.Event.ContentBlock
			if cb == nil || cb.Type != "tool_use" {
				return Event{}, false
			}
			return Event{Type: EventToolUse, ToolName: cb.Name, ToolInput: cb.Input}, true
		}
	}
	return Event{}, false
}

// Decoder reads Events from a stream-json byte stream. Lines may arrive split
// across reads; each is reassembled on its newline before decoding.
type Decoder struct {
	r       *bufio.Reader
	logger  *slog.Logger
	lineNum int
}

// NewDecoder creates a Decoder over r.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Decoder{
		r:      bufio.NewReaderSize(r, 64*1024),
		logger: logger,
	}
}

// Next returns the next recognized event, or io.EOF when the stream ends.
func (d *Decoder) Next() (Event, error) {
	for {
		line, oversized, err := d.readLine()
		if err != nil {
			return Event{}, err
		}
		d.lineNum++

		if oversized || len(line) > MaxLineSize {
			d.logger.Warn("dropping oversized stream line", "line", d.lineNum, "limit", MaxLineSize)
			continue
		}

		ev, ok := ParseLine(line)
		if !ok {
			if len(bytes.TrimSpace(line)) > 0 {
				d.logger.Debug("ignoring stream line", "line", d.lineNum, "data", string(line[:min(100, len(line))]))
			}
			continue
		}
		return ev, nil
	}
}

// readLine returns the next newline-terminated line without its terminator.
// A final unterminated line is returned before io.EOF. Lines longer than
// MaxLineSize are consumed and reported as oversized without being buffered.
func (d *Decoder) readLine() (line []byte, oversized bool, err error) {
	for {
		chunk, rerr := d.r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > MaxLineSize+1 {
				oversized = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case rerr == nil:
			return trimEOL(line), oversized, nil
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		case errors.Is(rerr, io.EOF):
			if len(line) > 0 || oversized {
				return trimEOL(line), oversized, nil
			}
			return nil, false, io.EOF
		default:
			return nil, false, rerr
		}
	}
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}
