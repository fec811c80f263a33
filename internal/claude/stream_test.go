package claude

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want EventType
		ok   bool
	}{
		{"init", `{"type":"system","subtype":"init","session_id":"s"}`, EventInit, true},
		{"text delta", `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}}`, EventTextDelta, true},
		{"empty delta", `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":""}}}`, "", false},
		{"json delta", `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{"}}}`, "", false},
		{"tool use", `{"type":"stream_event","event":{"type":"content_block_start","content_block":{"type":"tool_use","name":"Bash","input":{"command":"ls"}}}}`, EventToolUse, true},
		{"text block start", `{"type":"stream_event","event":{"type":"content_block_start","content_block":{"type":"text"}}}`, "", false},
		{"assistant", `{"type":"assistant","message":{"content":[]}}`, EventAssistantMessage, true},
		{"result", `{"type":"result","subtype":"success","is_error":false,"result":"done","session_id":"abc","total_cost_usd":0.25,"duration_ms":1200}`, EventResult, true},
		{"unknown type", `{"type":"user","message":{}}`, "", false},
		{"garbage", `not json at all`, "", false},
		{"blank", `   `, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseLine([]byte(tt.line))
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ev.Type)
		})
	}
}

func TestParseLine_Payloads(t *testing.T) {
	ev, ok := ParseLine([]byte(`{"type":"stream_event","event":{"type":"content_block_start","content_block":{"type":"tool_use","name":"Read","input":{"path":"a.md"}}}}`))
	require.True(t, ok)
	assert.Equal(t, "Read", ev.ToolName)
	assert.JSONEq(t, `{"path":"a.md"}`, string(ev.ToolInput))

	ev, ok = ParseLine([]byte(`{"type":"result","is_error":true,"result":"boom","session_id":"s1","total_cost_usd":1.5,"duration_ms":9}`))
	require.True(t, ok)
	require.NotNil(t, ev.Result)
	assert.True(t, ev.Result.IsError)
	assert.Equal(t, "boom", ev.Result.Result)
	assert.Equal(t, "s1", ev.Result.SessionID)
	assert.InDelta(t, 1.5, ev.Result.TotalCostUSD, 1e-9)
	assert.Equal(t, int64(9), ev.Result.DurationMS)
}

func collect(t *testing.T, r io.Reader) []Event {
	t.Helper()
	dec := NewDecoder(r, nil)
	var out []Event
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestDecoder_ReassemblesSplitLines(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system"}`,
		`garbage line`,
		``,
		`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}}`,
		`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}}`,
		`{"type":"result","result":"Hello","session_id":"s"}`,
	}, "\n")

	events := collect(t, iotest.OneByteReader(strings.NewReader(input)))
	require.Len(t, events, 4)
	assert.Equal(t, EventInit, events[0].Type)
	assert.Equal(t, "Hel", events[1].Text)
	assert.Equal(t, "lo", events[2].Text)
	assert.Equal(t, EventResult, events[3].Type)
	assert.Equal(t, "Hello", events[3].Result.Result)
}

func TestDecoder_HandlesCRLF(t *testing.T) {
	events := collect(t, strings.NewReader("{\"type\":\"system\"}\r\n{\"type\":\"result\",\"result\":\"x\"}\r\n"))
	require.Len(t, events, 2)
	assert.Equal(t, EventResult, events[1].Type)
}

func TestDecoder_DropsOversizedLine(t *testing.T) {
	huge := `{"type":"assistant","pad":"` + strings.Repeat("x", MaxLineSize) + `"}`
	input := huge + "\n" + `{"type":"result","result":"after"}` + "\n"

	events := collect(t, strings.NewReader(input))
	require.Len(t, events, 1)
	assert.Equal(t, "after", events[0].Result.Result)
}

func TestDecoder_AcceptsLineAtLimit(t *testing.T) {
	prefix := `{"type":"result","result":"`
	suffix := `"}`
	body := strings.Repeat("y", MaxLineSize-len(prefix)-len(suffix))
	events := collect(t, strings.NewReader(prefix+body+suffix+"\n"))
	require.Len(t, events, 1)
	assert.Len(t, events[0].Result.Result, len(body))
}
