// Package protocol defines the ConversationRelay wire messages exchanged over
// the relay WebSocket: inbound transcript events from the telephony platform
// and outbound text tokens for incremental speech synthesis.
package protocol

import (
	"encoding/json"
	"strings"
)

type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func badFrame(message string) *DecodeError {
	return &DecodeError{Message: message}
}

// Setup is the first message of a relay connection; it carries call identity.
type Setup struct {
	Type             string            `json:"type"`
	SessionID        string            `json:"sessionId,omitempty"`
	CallSID          string            `json:"callSid,omitempty"`
	From             string            `json:"from,omitempty"`
	To               string            `json:"to,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// Prompt is a completed transcript utterance.
type Prompt struct {
	Type        string `json:"type"`
	VoicePrompt string `json:"voicePrompt"`
	Lang        string `json:"lang,omitempty"`
	Last        bool   `json:"last,omitempty"`
}

// Interrupt is the barge-in signal: the caller started speaking over playback.
type Interrupt struct {
	Type                    string `json:"type"`
	UtteranceUntilInterrupt string `json:"utteranceUntilInterrupt,omitempty"`
}

// DTMF reports a keypad digit pressed during the call.
type DTMF struct {
	Type  string `json:"type"`
	Digit string `json:"digit,omitempty"`
}

// Unknown is any well-formed frame with an unrecognized type. It is logged
// and otherwise ignored.
type Unknown struct {
	Type string
}

// DecodeInbound parses one inbound relay frame. Malformed JSON or a missing
// type is an error; an unrecognized type is not.
func DecodeInbound(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("missing type")
	}

	switch typ {
	case "setup":
		var msg Setup
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid setup frame")
		}
		return msg, nil
	case "prompt":
		var msg Prompt
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid prompt frame")
		}
		return msg, nil
	case "interrupt":
		var msg Interrupt
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid interrupt frame")
		}
		return msg, nil
	case "dtmf":
		var msg DTMF
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid dtmf frame")
		}
		return msg, nil
	default:
		return Unknown{Type: typ}, nil
	}
}

// TextToken is one outbound text fragment. Last marks the final fragment of a
// generation; exactly one per non-interrupted generation.
type TextToken struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Last  bool   `json:"last,omitempty"`
}

func NewTextToken(token string, last bool) TextToken {
	return TextToken{Type: "text", Token: token, Last: last}
}
