package llm

import (
	"bytes"
	"encoding/json"

	"github.com/harpou/ai-gateway/internal/domain/entity"
)

// --- OpenAI chat completions wire types ---
// Compatible with OpenAI, Ollama (/v1), vLLM, and other conforming servers.

// ChatRequest is the upstream request body.
type ChatRequest struct {
	Model          string           `json:"model"`
	Messages       []entity.Message `json:"messages"`
	Stream         bool             `json:"stream,omitempty"`
	Temperature    *float64         `json:"temperature,omitempty"`
	MaxTokens      *int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat  `json:"response_format,omitempty"`
	Tools          json.RawMessage  `json:"tools,omitempty"`
	ToolChoice     json.RawMessage  `json:"tool_choice,omitempty"`
}

// ResponseFormat requests structured output ({"type":"json_object"}).
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletion is the upstream non-streaming response.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion candidate.
type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// AssistantMessage keeps content as raw JSON: backends in JSON mode may
// answer with a string that the connector normalizes into an object.
type AssistantMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Text returns the content as plain text. A JSON string is unquoted; any
// other shape is returned as its raw JSON representation.
func (m AssistantMessage) Text() string {
	trimmed := bytes.TrimSpace(m.Content)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// Usage is the upstream token accounting block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// modelList is the upstream GET /models response.
type modelList struct {
	Object string         `json:"object"`
	Data   []upstreamModel `json:"data"`
}

type upstreamModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// errorEnvelope is the OpenAI-shaped error body.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
