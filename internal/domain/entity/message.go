package entity

import (
	"bytes"
	"encoding/json"
)

// Message is one turn of an OpenAI-style conversation. Content is either a
// plain string or a list of typed parts (multimodal).
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
	Name    string         `json:"name,omitempty"`
}

// MessageContent models the string-or-parts union of the chat completions
// wire format. When Parts is non-nil the content serializes as an array,
// otherwise as a plain string.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// ContentPart is a single element of a multimodal content array.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef holds an image location: a web URL or a data: URI.
type ImageRef struct {
	URL string `json:"url"`
}

// MarshalJSON emits a string for plain content and an array for parts.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts both wire shapes.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &c.Parts)
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, &c.Text)
}

// IsMultimodal reports whether the content is a parts array.
func (c MessageContent) IsMultimodal() bool {
	return c.Parts != nil
}

// PlainText flattens the content to a single string. For a parts array the
// text parts are concatenated; image parts are skipped.
func (c MessageContent) PlainText() string {
	if c.Parts == nil {
		return c.Text
	}
	var buf bytes.Buffer
	for _, p := range c.Parts {
		if p.Type == "text" {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(p.Text)
		}
	}
	return buf.String()
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Content.Parts != nil {
		parts := make([]ContentPart, len(m.Content.Parts))
		for i, p := range m.Content.Parts {
			cp := p
			if p.ImageURL != nil {
				ref := *p.ImageURL
				cp.ImageURL = &ref
			}
			parts[i] = cp
		}
		out.Content.Parts = parts
	}
	return out
}

// CloneConversation deep-copies a whole conversation. Callers that mutate
// messages (image inlining, system prompt injection) must work on a copy so
// the request-scoped input stays untouched.
func CloneConversation(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
