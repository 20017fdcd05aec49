package llm

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/entity"
)

func multimodalMessage(imageURL string) []entity.Message {
	return []entity.Message{{
		Role: "user",
		Content: entity.MessageContent{Parts: []entity.ContentPart{
			{Type: "text", Text: "what is this?"},
			{Type: "image_url", ImageURL: &entity.ImageRef{URL: imageURL}},
		}},
	}}
}

func TestInlineRemoteImages_ReplacesURLWithDataURI(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	original := multimodalMessage(srv.URL + "/pic.png")
	processed, changed := InlineRemoteImages(context.Background(), original, zap.NewNop())

	if !changed {
		t.Fatal("expected changed=true")
	}
	got := processed[0].Content.Parts[1].ImageURL.URL
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)
	if got != want {
		t.Fatalf("data URI = %q, want %q", got, want)
	}
	// The caller's conversation is untouched.
	if !strings.HasPrefix(original[0].Content.Parts[1].ImageURL.URL, "http") {
		t.Fatal("input conversation was mutated")
	}
}

func TestInlineRemoteImages_IdempotentOnDataURIs(t *testing.T) {
	dataURI := "data:image/png;base64,iVBORw0KGgo="
	msgs := multimodalMessage(dataURI)

	processed, changed := InlineRemoteImages(context.Background(), msgs, zap.NewNop())
	if changed {
		t.Fatal("already inlined content must report changed=false")
	}
	if processed[0].Content.Parts[1].ImageURL.URL != dataURI {
		t.Fatal("data URI must pass through untouched")
	}
}

func TestInlineRemoteImages_TextOnlyIsNoop(t *testing.T) {
	msgs := userMessage("plain text")
	processed, changed := InlineRemoteImages(context.Background(), msgs, zap.NewNop())
	if changed {
		t.Fatal("text-only conversations never change")
	}
	if processed[0].Content.PlainText() != "plain text" {
		t.Fatal("content altered")
	}
}

func TestInlineRemoteImages_FetchFailureLeavesURLButFlagsChange(t *testing.T) {
	msgs := multimodalMessage(deadBackendURL(t) + "/pic.png")

	processed, changed := InlineRemoteImages(context.Background(), msgs, zap.NewNop())
	if !changed {
		t.Fatal("a failed substitution attempt must still disable JSON mode")
	}
	if !strings.HasPrefix(processed[0].Content.Parts[1].ImageURL.URL, "http") {
		t.Fatal("failed fetch should keep the original URL")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		contentType string
		url         string
		want        string
	}{
		{"image/jpeg", "http://x/a", "image/jpeg"},
		{"image/png; charset=binary", "http://x/a", "image/png"},
		{"text/html", "http://x/a.png", "image/png"},
		{"", "http://x/a.gif?size=2", "image/gif"},
		{"", "http://x/a", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := detectMIMEType(tt.contentType, tt.url); got != tt.want {
			t.Errorf("detectMIMEType(%q, %q) = %q, want %q", tt.contentType, tt.url, got, tt.want)
		}
	}
}
