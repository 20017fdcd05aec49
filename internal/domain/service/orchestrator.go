package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/entity"
)

// OrchestratorConfig is the boot-time configuration of the pipeline.
type OrchestratorConfig struct {
	// RoutingModelID is "<routing_backend>/<its default model>"; empty means
	// route with the caller's own model.
	RoutingModelID string
	// RoutingPreamble overrides the generated decision instruction when the
	// operator supplies a routing prompt file.
	RoutingPreamble string
	AdminEmail      string
	Timezone        string
}

// OrchestrationRequest is the payload of one agentic task.
type OrchestrationRequest struct {
	Conversation []entity.Message `json:"conversation"`
	ModelID      string           `json:"model_id"`
	SID          string           `json:"sid"`
	Username     string           `json:"username,omitempty"`
	// PersonaPromptFile is the caller's persona prompt, used as the
	// synthesis system prompt when no tool ran.
	PersonaPromptFile string `json:"persona_prompt_file,omitempty"`
}

// decision is the routing model's verdict.
type decision struct {
	Action     string
	ToolName   string
	Parameters map[string]interface{}
}

const (
	actionCallTool      = "call_tool"
	actionRespondDirect = "respond_directly"
)

// Orchestrator runs the decision → tool → synthesis pipeline for agentic
// requests. It holds no per-request state; one instance serves all workers.
type Orchestrator struct {
	backend  ChatBackend
	tools    ToolRunner
	cfg      OrchestratorConfig
	location *time.Location
	logger   *zap.Logger
}

// NewOrchestrator builds the pipeline. An unknown timezone falls back to
// UTC with a warning.
func NewOrchestrator(backend ChatBackend, tools ToolRunner, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	loc := time.UTC
	if cfg.Timezone != "" {
		parsed, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.Warn("Unknown timezone, falling back to UTC",
				zap.String("timezone", cfg.Timezone),
			)
		} else {
			loc = parsed
		}
	}
	return &Orchestrator{
		backend:  backend,
		tools:    tools,
		cfg:      cfg,
		location: loc,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// Run executes one orchestration and returns the synthesized answer. The
// returned string is always suitable as a task result; hard failures
// degrade to apology text rather than an error wherever the user would
// otherwise see a stack trace.
func (o *Orchestrator) Run(ctx context.Context, req OrchestrationRequest) (string, error) {
	logger := o.logger.With(zap.String("sid", req.SID))

	question, ok := lastUserQuestion(req.Conversation)
	if !ok {
		logger.Warn("Conversation has no trailing user message")
		return "I'm sorry, I could not find a question to answer in your message.", nil
	}

	var dec decision
	switch {
	case strings.HasPrefix(question, internalTaskPrefix):
		// UI-internal title/tag generation: never route, never search.
		logger.Debug("Internal task prefix detected, bypassing routing")
		dec = decision{Action: actionRespondDirect}
	default:
		var err error
		dec, err = o.decide(ctx, req.ModelID, question)
		if err != nil {
			return "", fmt.Errorf("routing decision failed: %w", err)
		}
	}

	toolOutput := ""
	if dec.Action == actionCallTool {
		logger.Info("Decision: call tool", zap.String("tool", dec.ToolName))
		toolOutput = o.tools.Run(ctx, dec.ToolName, dec.Parameters, question)
	} else {
		logger.Info("Decision: respond directly")
	}

	answer, err := o.synthesize(ctx, req, toolOutput)
	if err != nil {
		logger.Warn("Synthesis failed, generating apology", zap.Error(err))
		return o.apologize(ctx, req.ModelID), nil
	}
	if strings.TrimSpace(answer) == "" {
		logger.Warn("Synthesis produced empty content")
		return hardcodedApology, nil
	}
	return answer, nil
}

// decide asks the routing model what to do with the question and
// validates its verdict against the registry.
func (o *Orchestrator) decide(ctx context.Context, callerModel, question string) (decision, error) {
	routingModel := o.cfg.RoutingModelID
	if routingModel == "" {
		routingModel = callerModel
	}

	conversation := []entity.Message{
		{Role: "system", Content: entity.MessageContent{Text: buildDecisionPrompt(o.cfg.RoutingPreamble, o.tools.Specs())}},
		{Role: "user", Content: entity.MessageContent{Text: question}},
	}

	raw, err := o.backend.Complete(ctx, routingModel, conversation, CompletionOptions{JSONMode: true})
	if err != nil {
		return decision{}, err
	}

	dec := parseDecision(raw)

	// Hallucination guard: an unknown tool or missing parameters means the
	// model made something up. Degrade to a direct answer.
	if dec.Action == actionCallTool {
		if !o.tools.Has(dec.ToolName) {
			o.logger.Warn("Routing model named an unregistered tool",
				zap.String("tool", dec.ToolName),
			)
			return decision{Action: actionRespondDirect}, nil
		}
		if dec.Parameters == nil {
			o.logger.Warn("Routing model omitted tool parameters",
				zap.String("tool", dec.ToolName),
			)
			return decision{Action: actionRespondDirect}, nil
		}
	}
	if dec.Action != actionCallTool {
		dec = decision{Action: actionRespondDirect}
	}
	return dec, nil
}

// parseDecision decodes the routing verdict, tolerating the alternative
// key names small models produce (including French ones).
func parseDecision(raw string) decision {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return decision{Action: actionRespondDirect}
	}

	pick := func(keys ...string) (json.RawMessage, bool) {
		for _, k := range keys {
			if v, ok := fields[k]; ok {
				return v, true
			}
		}
		return nil, false
	}

	var dec decision
	if v, ok := pick("action"); ok {
		_ = json.Unmarshal(v, &dec.Action)
	}
	if v, ok := pick("tool_name", "tool", "outil", "name"); ok {
		_ = json.Unmarshal(v, &dec.ToolName)
	}
	if v, ok := pick("parameters", "params", "paramètres", "arguments"); ok {
		_ = json.Unmarshal(v, &dec.Parameters)
	}

	dec.Action = strings.ToLower(strings.TrimSpace(dec.Action))
	return dec
}

// synthesize builds the final system prompt and runs the answer call on a
// deep copy of the conversation.
func (o *Orchestrator) synthesize(ctx context.Context, req OrchestrationRequest, toolOutput string) (string, error) {
	systemPrompt := timeContextLine(o.location) + "\n\n"
	switch {
	case toolOutput != "":
		systemPrompt += buildResearchPrompt(toolOutput)
	case req.PersonaPromptFile != "":
		systemPrompt += o.loadPersona(req.PersonaPromptFile)
	default:
		systemPrompt += genericAssistantPrompt
	}

	conversation := entity.CloneConversation(req.Conversation)
	conversation = replaceSystemPrompt(conversation, systemPrompt)

	return o.backend.Complete(ctx, req.ModelID, conversation, CompletionOptions{})
}

// loadPersona reads the principal's persona prompt; a missing file falls
// back to the generic prompt.
func (o *Orchestrator) loadPersona(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		o.logger.Warn("Persona prompt file unreadable",
			zap.String("path", path),
			zap.Error(err),
		)
		return genericAssistantPrompt
	}
	return string(data)
}

// apologize asks the model for a polite failure message; if even that
// fails, a hard-coded apology goes out.
func (o *Orchestrator) apologize(ctx context.Context, modelID string) string {
	conversation := []entity.Message{
		{Role: "system", Content: entity.MessageContent{Text: buildApologyPrompt(o.cfg.AdminEmail)}},
		{Role: "user", Content: entity.MessageContent{Text: "Please apologize for the failure."}},
	}
	answer, err := o.backend.Complete(ctx, modelID, conversation, CompletionOptions{})
	if err != nil || strings.TrimSpace(answer) == "" {
		return hardcodedApology
	}
	return answer
}

// lastUserQuestion extracts the question: the content of the final
// message, provided its role is user.
func lastUserQuestion(conversation []entity.Message) (string, bool) {
	if len(conversation) == 0 {
		return "", false
	}
	last := conversation[len(conversation)-1]
	if last.Role != "user" {
		return "", false
	}
	text := strings.TrimSpace(last.Content.PlainText())
	if text == "" {
		return "", false
	}
	return text, true
}

// replaceSystemPrompt swaps the first system message's content, or
// prepends one when the conversation has none.
func replaceSystemPrompt(conversation []entity.Message, prompt string) []entity.Message {
	for i := range conversation {
		if conversation[i].Role == "system" {
			conversation[i].Content = entity.MessageContent{Text: prompt}
			return conversation
		}
	}
	return append([]entity.Message{
		{Role: "system", Content: entity.MessageContent{Text: prompt}},
	}, conversation...)
}
