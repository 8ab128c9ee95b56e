package protocol

import (
	"encoding/json"
	"strings"
)

// Frame types the relay inspects. Everything else is opaque pass-through.
const (
	TypeSessionCreated   = "session.created"
	TypeTextMessage      = "text_message"
	TypeTextMessageAlt   = "text.message"
	TypeTextResponse     = "text_response"
	TypeError            = "error"
	TypeAudioAppend      = "input_audio_buffer.append"
	TypeResponseCancel   = "response.cancel"
	TypeFunctionCallDone = "response.function_call_arguments.done"
	TypeItemCreate       = "conversation.item.create"
	TypeResponseCreate   = "response.create"
)

// Envelope extracts only the type discriminator of a frame.
type Envelope struct {
	Type string `json:"type"`
}

// ErrorFrame is sent to the client on configuration or upstream failures.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Error: message}
}

// SessionCreated confirms a text-mode session to the client.
type SessionCreated struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func NewSessionCreated(sessionID string) SessionCreated {
	return SessionCreated{Type: TypeSessionCreated, SessionID: sessionID}
}

// TextResponse carries one full assistant reply in text mode.
type TextResponse struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func NewTextResponse(content string) TextResponse {
	return TextResponse{Type: TypeTextResponse, Content: content}
}

// FunctionCallDone is the upstream frame announcing completed tool-call
// arguments; the voice relay intercepts it to run the tool locally.
type FunctionCallDone struct {
	Type      string `json:"type"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionCallItem is the payload of a conversation.item.create that feeds a
// tool result back to the upstream.
type FunctionCallItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type ConversationItemCreate struct {
	Type string           `json:"type"`
	Item FunctionCallItem `json:"item"`
}

func NewFunctionCallOutput(callID, output string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeItemCreate,
		Item: FunctionCallItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

type ResponseCreate struct {
	Type string `json:"type"`
}

func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: TypeResponseCreate}
}

// TypeOf reports the type field of a JSON frame, or ok=false when the frame
// is not JSON or carries no type.
func TypeOf(raw []byte) (string, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", false
	}
	if env.Type == "" {
		return "", false
	}
	return env.Type, true
}

// DecodeTextMessage extracts the user text from a client frame. Only the two
// recognized spellings of the user text message with non-empty text are
// accepted; everything else returns ok=false.
func DecodeTextMessage(raw []byte) (string, bool) {
	var msg struct {
		Type    string `json:"type"`
		Content string `json:"content"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", false
	}
	if msg.Type != TypeTextMessage && msg.Type != TypeTextMessageAlt {
		return "", false
	}
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		text = strings.TrimSpace(msg.Text)
	}
	if text == "" {
		return "", false
	}
	return text, true
}

// DecodeFunctionCallDone parses an upstream frame as a completed function
// call. ok is false when the frame is not that event or lacks call id / name.
func DecodeFunctionCallDone(raw []byte) (FunctionCallDone, bool) {
	var msg FunctionCallDone
	if err := json.Unmarshal(raw, &msg); err != nil {
		return FunctionCallDone{}, false
	}
	if msg.Type != TypeFunctionCallDone {
		return FunctionCallDone{}, false
	}
	if msg.CallID == "" || msg.Name == "" {
		return FunctionCallDone{}, false
	}
	if msg.Arguments == "" {
		msg.Arguments = "{}"
	}
	return msg, true
}
