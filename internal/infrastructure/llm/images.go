package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/entity"
)

const (
	imageFetchTimeout = 10 * time.Second
	imageUserAgent    = "Harpou-AI-Gateway/1.0"
)

var imageHTTPClient = &http.Client{Timeout: imageFetchTimeout}

// InlineRemoteImages walks a conversation and replaces every http(s) image
// URL with a base64 data: URI, so multimodal payloads reach backends that
// cannot fetch URLs themselves. The input is deep-copied; already inlined
// data: URIs pass through untouched, which makes the operation idempotent.
//
// Returns the processed copy and whether any substitution happened.
func InlineRemoteImages(ctx context.Context, msgs []entity.Message, logger *zap.Logger) ([]entity.Message, bool) {
	processed := entity.CloneConversation(msgs)
	changed := false

	for mi := range processed {
		parts := processed[mi].Content.Parts
		for pi := range parts {
			part := &parts[pi]
			if part.Type != "image_url" || part.ImageURL == nil {
				continue
			}
			url := part.ImageURL.URL
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				continue
			}

			logger.Info("Inlining image from URL", zap.String("url", url))
			dataURI, err := fetchImageAsDataURI(ctx, url)
			if err != nil {
				logger.Warn("Image fetch failed, leaving URL in place",
					zap.String("url", url),
					zap.Error(err),
				)
				changed = true // substitution was attempted; JSON mode must still be dropped
				continue
			}
			part.ImageURL.URL = dataURI
			changed = true
		}
	}

	return processed, changed
}

// fetchImageAsDataURI downloads an image and encodes it as a data: URI.
// One retry on transient transport errors.
func fetchImageAsDataURI(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		uri, err := fetchOnce(ctx, url)
		if err == nil {
			return uri, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func fetchOnce(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, imageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", imageUserAgent)

	resp, err := imageHTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	mimeType := detectMIMEType(resp.Header.Get("Content-Type"), url)
	encoded := base64.StdEncoding.EncodeToString(data)
	return fmt.Sprintf("data:%s;base64,%s", mimeType, encoded), nil
}

// detectMIMEType prefers the response Content-Type when it names an image,
// then the URL extension, then a generic fallback.
func detectMIMEType(contentType, url string) string {
	if contentType != "" && strings.Contains(contentType, "image") {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			return mt
		}
		return contentType
	}
	if ext := path.Ext(strings.SplitN(url, "?", 2)[0]); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return mt
		}
	}
	return "application/octet-stream"
}
