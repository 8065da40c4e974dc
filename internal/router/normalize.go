package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golovatskygroup/mcp-infer/pkg/chat"
)

// ErrMalformedResponse marks a completion payload that violates the transport contract
var ErrMalformedResponse = errors.New("malformed chat completion response")

const (
	rawPreviewLen    = 400
	parsedPreviewLen = 800
)

// Normalize turns whatever a Completer returned into a structured response.
// Errors are fatal to the run; they are never converted to data.
func Normalize(raw any) (*chat.Response, error) {
	switch v := raw.(type) {
	case *chat.Response:
		if v == nil {
			return nil, fmt.Errorf("%w: nil response", ErrMalformedResponse)
		}
		return v, nil
	case chat.Response:
		return &v, nil
	case string:
		return normalizeText(v)
	case []byte:
		return normalizeText(string(v))
	case json.RawMessage:
		return normalizeText(string(v))
	default:
		return normalizeValue(v)
	}
}

func normalizeText(s string) (*chat.Response, error) {
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON (%v): %s", ErrMalformedResponse, err, preview(s, rawPreviewLen))
	}
	return normalizeValue(parsed)
}

func normalizeValue(v any) (*chat.Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: payload can't be serialised: %v", ErrMalformedResponse, err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		// Structs and other typed values are checked through their JSON form.
		if err := json.Unmarshal(b, &obj); err != nil {
			obj = nil
		}
	}
	if _, hasChoices := obj["choices"]; !hasChoices {
		return nil, fmt.Errorf("%w: missing choices: %s", ErrMalformedResponse, preview(string(b), parsedPreviewLen))
	}

	var resp chat.Response
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrMalformedResponse, err, preview(string(b), parsedPreviewLen))
	}
	return &resp, nil
}

// firstMessage returns the first choice's message
func firstMessage(resp *chat.Response) (chat.Message, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return chat.Message{}, fmt.Errorf("%w: empty choices", ErrMalformedResponse)
	}
	msg := resp.Choices[0].Message
	if msg.Role == "" {
		msg.Role = chat.RoleAssistant
	}
	return msg, nil
}
