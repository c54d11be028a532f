package voice

import (
	"encoding/json"
	"errors"
	"strings"
)

// Platform message types.
const (
	MessageToolCalls     = "tool-calls"
	MessageFunctionCall  = "function-call"
	MessageStatusUpdate  = "status-update"
	MessageSpeechUpdate  = "speech-update"
	MessageTranscript    = "transcript"
	MessageEndOfCall     = "end-of-call-report"
	MessageHang          = "hang"
	MessageError         = "error"
)

// Envelope is the webhook body sent by the voice platform.
type Envelope struct {
	Message Message `json:"message"`
}

// Message is the subset of platform message fields the server reads.
type Message struct {
	Type           string        `json:"type"`
	Status         string        `json:"status,omitempty"`
	Role           string        `json:"role,omitempty"`
	Transcript     string        `json:"transcript,omitempty"`
	TranscriptType string        `json:"transcriptType,omitempty"`
	EndedReason    string        `json:"endedReason,omitempty"`
	Error          string        `json:"error,omitempty"`
	Call           Call          `json:"call"`
	ToolCallList   []ToolCall    `json:"toolCallList,omitempty"`
	FunctionCall   *FunctionCall `json:"functionCall,omitempty"`
}

// Call identifies the platform call.
type Call struct {
	ID string `json:"id"`
}

// ToolCall is one function invocation requested mid-conversation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its arguments, either an object or a JSON string.
type FunctionCall struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// ToolResult answers one tool call. Exactly one of Result and Error is set.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Reply is the webhook response body. Acknowledgements leave every field empty.
// A non-nil Results marks a tool-calls reply and is always encoded, even when empty.
type Reply struct {
	Results []ToolResult `json:"results,omitempty"`
	Result  string       `json:"result,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type toolCallsReply struct {
	Results []ToolResult `json:"results"`
}

// MarshalJSON implements json.Marshaler.
func (r Reply) MarshalJSON() ([]byte, error) {
	if r.Results != nil {
		return json.Marshal(toolCallsReply{Results: r.Results})
	}
	type ack Reply
	return json.Marshal(ack(r))
}

type toolArgs struct {
	Query string `json:"query"`
}

// QueryArgument extracts the "query" argument.
func (f FunctionCall) QueryArgument() (string, error) {
	raw := f.Arguments
	if len(raw) == 0 || string(raw) == "null" {
		raw = f.Parameters
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("tool call has no arguments")
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}
	var args toolArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	return strings.TrimSpace(args.Query), nil
}
