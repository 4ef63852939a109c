package agent

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var errInvalidArguments = errors.New("agent: tool call arguments are neither a JSON object nor an encoded object string")

// toolCallRequest is the shape an agent's response must take, literally or
// wrapped in a single fenced block, to be recognized as a tool call.
// Arguments may arrive either as a JSON string holding an encoded object or
// as an object; argumentsAsMap normalizes both to a map before Invoke.
type toolCallRequest struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// parseToolCall recognizes a response that is either entirely a single JSON
// object {"tool": "...", "arguments": ...}, or contains exactly one fenced
// code block of that shape. Anything else returns ok=false and the response
// is treated as final text.
func parseToolCall(response string) (req toolCallRequest, ok bool) {
	trimmed := strings.TrimSpace(response)

	if call, found := tryParseToolCall(trimmed); found {
		return call, true
	}

	matches := fencedBlockRegex.FindAllStringSubmatch(response, -1)
	if len(matches) != 1 {
		return toolCallRequest{}, false
	}
	return tryParseToolCall(strings.TrimSpace(matches[0][1]))
}

func tryParseToolCall(candidate string) (toolCallRequest, bool) {
	if candidate == "" || candidate[0] != '{' {
		return toolCallRequest{}, false
	}
	var req toolCallRequest
	if err := json.Unmarshal([]byte(candidate), &req); err != nil {
		return toolCallRequest{}, false
	}
	if req.Tool == "" {
		return toolCallRequest{}, false
	}
	return req, true
}

// argumentsAsMap normalizes toolCallRequest.Arguments into the
// map[string]any shape Tool.Invoke expects. Arguments may arrive as a JSON
// object directly, or as a JSON string containing an encoded object (the
// `<string|object>` shape named by the tool-call contract).
func argumentsAsMap(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if encoded == "" {
			return map[string]any{}, nil
		}
		if err := json.Unmarshal([]byte(encoded), &obj); err != nil {
			return nil, err
		}
		return obj, nil
	}

	return nil, errInvalidArguments
}
