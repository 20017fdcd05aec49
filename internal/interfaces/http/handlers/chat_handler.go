package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/entity"
	"github.com/harpou/ai-gateway/internal/domain/service"
	"github.com/harpou/ai-gateway/internal/infrastructure/llm"
	apperrors "github.com/harpou/ai-gateway/pkg/errors"
)

// TaskTypeOrchestrate is the task type agentic requests enqueue.
const TaskTypeOrchestrate = "orchestrate"

// chatCompletionRequest is the client-facing request body. Extra OpenAI
// fields are forwarded to the upstream untouched.
type chatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []entity.Message    `json:"messages"`
	Stream         bool                `json:"stream"`
	Temperature    *float64            `json:"temperature"`
	MaxTokens      *int                `json:"max_tokens"`
	ResponseFormat *llm.ResponseFormat `json:"response_format"`
	Tools          json.RawMessage     `json:"tools"`
	ToolChoice     json.RawMessage     `json:"tool_choice"`
}

// ChatHandler serves POST /v1/chat/completions: direct proxying (stream
// or unary) and agentic task enqueueing.
type ChatHandler struct {
	connector   *llm.Connector
	queue       service.TaskQueue
	agentPrefix string
	logger      *zap.Logger
}

// NewChatHandler wires the handler.
func NewChatHandler(connector *llm.Connector, queue service.TaskQueue, agentPrefix string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		connector:   connector,
		queue:       queue,
		agentPrefix: agentPrefix,
		logger:      logger.With(zap.String("component", "chat-handler")),
	}
}

// ChatCompletions dispatches one chat completion request.
func (h *ChatHandler) ChatCompletions(c *gin.Context) {
	var req chatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Request body is not valid JSON: "+err.Error(),
			"invalid_request_error")
		return
	}
	if req.Model == "" {
		writeError(c, http.StatusBadRequest, "'model' is required.", "invalid_request_error")
		return
	}
	if len(req.Messages) == 0 {
		writeError(c, http.StatusBadRequest, "'messages' must be a non-empty list.",
			"invalid_request_error")
		return
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Content.PlainText() == "" && len(last.Content.Parts) == 0 {
		writeError(c, http.StatusBadRequest, "The last message must have content.",
			"invalid_request_error")
		return
	}

	if strings.HasPrefix(req.Model, h.agentPrefix) {
		h.enqueueAgentic(c, req)
		return
	}
	if req.Stream {
		h.streamDirect(c, req)
		return
	}
	h.completeDirect(c, req)
}

// enqueueAgentic strips the agent prefix and hands the conversation to
// the orchestrator via the task queue.
func (h *ChatHandler) enqueueAgentic(c *gin.Context, req chatCompletionRequest) {
	realModel := strings.TrimPrefix(req.Model, h.agentPrefix)

	sid := c.GetHeader("X-SID")
	if sid == "" {
		sid = uuid.NewString()
	}

	// Set by the auth middleware.
	var principal entity.Principal
	if v, ok := c.Get("principal"); ok {
		principal, _ = v.(entity.Principal)
	}

	payload := service.OrchestrationRequest{
		Conversation:      req.Messages,
		ModelID:           realModel,
		SID:               sid,
		Username:          principal.Username,
		PersonaPromptFile: principal.PersonaPromptFile,
	}

	taskID, err := h.queue.Enqueue(c.Request.Context(), TaskTypeOrchestrate, payload)
	if err != nil {
		h.logger.Error("Failed to enqueue orchestration", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Could not accept the request for processing.",
			"server_error")
		return
	}

	h.logger.Info("Agentic request accepted",
		zap.String("task_id", taskID),
		zap.String("model", realModel),
		zap.String("sid", sid),
	)
	c.JSON(http.StatusAccepted, gin.H{
		"task_id":         taskID,
		"status_endpoint": "/v1/tasks/status/" + taskID,
		"sid":             sid,
		"message":         "Request accepted. Poll the status endpoint for the result.",
	})
}

// completeDirect proxies a unary completion.
func (h *ChatHandler) completeDirect(c *gin.Context, req chatCompletionRequest) {
	completion, err := h.connector.Complete(c.Request.Context(), req.Model, req.Messages, h.options(req))
	if err != nil {
		h.writeConnectorError(c, err)
		return
	}
	c.JSON(http.StatusOK, completion)
}

// streamDirect opens the upstream stream and forwards every chunk
// verbatim as SSE, terminated by [DONE].
func (h *ChatHandler) streamDirect(c *gin.Context, req chatCompletionRequest) {
	stream, err := h.connector.Stream(c.Request.Context(), req.Model, req.Messages, h.options(req))
	if err != nil {
		h.writeConnectorError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for event := range stream.Events() {
		if event.Err != nil {
			h.logger.Warn("Stream interrupted", zap.Error(event.Err))
			errLine, _ := json.Marshal(gin.H{
				"error": gin.H{
					"message": "The upstream stream was interrupted.",
					"type":    "server_error",
				},
			})
			fmt.Fprintf(c.Writer, "data: %s\n\n", errLine)
			break
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", event.Data)
		c.Writer.Flush()
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

func (h *ChatHandler) options(req chatCompletionRequest) llm.Options {
	return llm.Options{
		JSONMode:    req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object",
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
	}
}

// writeConnectorError maps connector failures onto HTTP statuses.
// Upstream protocol errors pass through with their original status and
// body so SDK clients see what the backend said.
func (h *ChatHandler) writeConnectorError(c *gin.Context, err error) {
	if upstream, ok := apperrors.AsUpstream(err); ok {
		if json.Valid([]byte(upstream.Body)) {
			c.Data(upstream.Status, "application/json", []byte(upstream.Body))
		} else {
			writeError(c, upstream.Status, upstream.Body, "upstream_error")
		}
		return
	}

	switch {
	case apperrors.IsBackendNotFound(err):
		writeError(c, http.StatusBadRequest, err.Error(), "invalid_request_error")
	case apperrors.IsConfigMissing(err):
		h.logger.Error("Configuration gap surfaced on request path", zap.Error(err))
		writeError(c, http.StatusInternalServerError, err.Error(), "server_error")
	case apperrors.IsConnectionFailed(err):
		h.logger.Warn("All candidate backends unreachable", zap.Error(err))
		writeError(c, http.StatusBadGateway,
			"The upstream LLM backend is unreachable.", "server_error")
	default:
		h.logger.Error("Chat completion failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError,
			"Internal error while processing the completion.", "server_error")
	}
}

// writeError emits the OpenAI error envelope.
func writeError(c *gin.Context, status int, message, errType string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"message": message,
			"type":    errType,
		},
	})
}
