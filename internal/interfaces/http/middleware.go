package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/entity"
	"github.com/harpou/ai-gateway/internal/infrastructure/auth"
	"github.com/harpou/ai-gateway/internal/infrastructure/logger"
)

// Gin context keys.
const (
	ctxKeyRequestID = "request_id"
	ctxKeyPrincipal = "principal"
)

// RequestID returns the request id attached by the middleware chain.
func RequestID(c *gin.Context) string {
	return c.GetString(ctxKeyRequestID)
}

// Principal returns the authenticated principal for this request. The
// auth middleware guarantees it is set on protected routes.
func Principal(c *gin.Context) entity.Principal {
	if v, ok := c.Get(ctxKeyPrincipal); ok {
		if p, ok := v.(entity.Principal); ok {
			return p
		}
	}
	return entity.Principal{}
}

// openAIError writes an OpenAI-shaped error envelope.
func openAIError(c *gin.Context, status int, message, errType, code string) {
	body := gin.H{
		"message": message,
		"type":    errType,
	}
	if code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// requestIDMiddleware assigns every request a UUID (honoring a caller's
// X-Request-ID) and echoes it back.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// authMiddleware resolves the bearer key to a principal exactly once per
// request and memoizes it in the gin context. With no keys configured the
// gateway runs open and callers become the public principal.
func authMiddleware(principals *auth.Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxKeyPrincipal); ok {
			c.Next()
			return
		}

		if !principals.HasKeys() {
			c.Set(ctxKeyPrincipal, principals.Public())
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		key := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || key == "" || !strings.HasPrefix(header, "Bearer ") {
			openAIError(c, http.StatusUnauthorized,
				"Missing API key. Pass it in the Authorization header as 'Bearer <key>'.",
				"invalid_request_error", "missing_api_key")
			return
		}

		principal, ok := principals.Lookup(key)
		if !ok {
			logger.Warn("Rejected request with unknown API key",
				zap.String("request_id", RequestID(c)),
			)
			openAIError(c, http.StatusUnauthorized,
				"Incorrect API key provided.",
				"invalid_request_error", "invalid_api_key")
			return
		}
		c.Set(ctxKeyPrincipal, principal)
		c.Next()
	}
}

// rateLimitMiddleware enforces the principal's rate limit. Identity is the
// username, or the client IP for anonymous callers.
func rateLimitMiddleware(pool *auth.LimiterPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		identity := p.Username
		if identity == "" || p.Anonymous {
			identity = c.ClientIP()
		}
		if !pool.Allow(identity, p.RateLimit) {
			openAIError(c, http.StatusTooManyRequests,
				"Rate limit exceeded. Please slow down.",
				"rate_limit_error", "")
			return
		}
		c.Next()
	}
}

// auditedResponseWriter tees the response body for the audit record.
type auditedResponseWriter struct {
	gin.ResponseWriter
	buf       bytes.Buffer
	streaming bool
}

func (w *auditedResponseWriter) Write(b []byte) (int, error) {
	if !w.streaming {
		if strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
			// SSE bodies are unbounded; the audit record notes the mode
			// instead of buffering chunks.
			w.streaming = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// auditMiddleware writes the request/response JSONL pair for every chat
// completion. The Authorization header value is redacted.
func auditMiddleware(audit *logger.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			body = nil
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		payload := json.RawMessage(body)
		if !json.Valid(body) {
			quoted, _ := json.Marshal(string(body))
			payload = quoted
		}

		headers := make(map[string]string, len(c.Request.Header))
		for name := range c.Request.Header {
			if strings.EqualFold(name, "Authorization") {
				headers[name] = "[REDACTED]"
				continue
			}
			headers[name] = c.GetHeader(name)
		}
		audit.LogRequest(RequestID(c), payload, headers)

		writer := &auditedResponseWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		response := json.RawMessage(`{"streamed":true}`)
		if !writer.streaming {
			captured := writer.buf.Bytes()
			if json.Valid(captured) && len(captured) > 0 {
				response = json.RawMessage(captured)
			} else {
				quoted, _ := json.Marshal(string(captured))
				response = quoted
			}
		}
		audit.LogResponse(RequestID(c), response, writer.Status())
	}
}
