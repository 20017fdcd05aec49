package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/entity"
)

// --- fakes ---

// scriptedBackend replays canned answers per call and records requests.
type scriptedBackend struct {
	answers []string
	errs    []error
	calls   []struct {
		Model    string
		Messages []entity.Message
		Opts     CompletionOptions
	}
}

func (b *scriptedBackend) Complete(ctx context.Context, modelID string, conversation []entity.Message, opts CompletionOptions) (string, error) {
	i := len(b.calls)
	b.calls = append(b.calls, struct {
		Model    string
		Messages []entity.Message
		Opts     CompletionOptions
	}{modelID, conversation, opts})

	if i < len(b.errs) && b.errs[i] != nil {
		return "", b.errs[i]
	}
	if i < len(b.answers) {
		return b.answers[i], nil
	}
	return "", errors.New("no scripted answer left")
}

type fakeTools struct {
	known  map[string]bool
	output string
	ran    []string
}

func (f *fakeTools) Run(ctx context.Context, name string, params map[string]interface{}, q string) string {
	f.ran = append(f.ran, name)
	return f.output
}

func (f *fakeTools) Has(name string) bool { return f.known[name] }

func (f *fakeTools) Specs() []ToolSpec {
	out := make([]ToolSpec, 0, len(f.known))
	for name := range f.known {
		out = append(out, ToolSpec{Name: name, Description: "test tool"})
	}
	return out
}

func conversation(texts ...string) []entity.Message {
	msgs := make([]entity.Message, 0, len(texts))
	for _, text := range texts {
		msgs = append(msgs, entity.Message{Role: "user", Content: entity.MessageContent{Text: text}})
	}
	return msgs
}

func newTestOrchestrator(backend ChatBackend, tools ToolRunner) *Orchestrator {
	return NewOrchestrator(backend, tools, OrchestratorConfig{
		AdminEmail: "admin@example.org",
	}, zap.NewNop())
}

// --- decision validation ---

func TestRun_HallucinatedToolForcesDirectAnswer(t *testing.T) {
	backend := &scriptedBackend{answers: []string{
		`{"action":"call_tool","tool_name":"read_my_mind","parameters":{}}`,
		"direct answer",
	}}
	tools := &fakeTools{known: map[string]bool{"search_web": true}}

	o := newTestOrchestrator(backend, tools)
	result, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: conversation("what am I thinking?"),
		ModelID:      "a/llama3",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tools.ran) != 0 {
		t.Fatal("an unregistered tool must never execute")
	}
	if result != "direct answer" {
		t.Fatalf("result = %q", result)
	}
}

func TestRun_MissingParametersForcesDirectAnswer(t *testing.T) {
	backend := &scriptedBackend{answers: []string{
		`{"action":"call_tool","tool_name":"search_web"}`,
		"direct answer",
	}}
	tools := &fakeTools{known: map[string]bool{"search_web": true}}

	o := newTestOrchestrator(backend, tools)
	if _, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: conversation("look it up"),
		ModelID:      "a/llama3",
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tools.ran) != 0 {
		t.Fatal("a decision without parameters must not execute the tool")
	}
}

// --- internal bypass ---

func TestRun_InternalTaskPrefixSkipsRouting(t *testing.T) {
	backend := &scriptedBackend{answers: []string{"Chat title"}}
	tools := &fakeTools{known: map[string]bool{"search_web": true}}

	o := newTestOrchestrator(backend, tools)
	result, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: conversation("### Task: Generate a title for this chat"),
		ModelID:      "a/llama3",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Exactly one LLM call: synthesis. No decision round-trip, no tool.
	if len(backend.calls) != 1 {
		t.Fatalf("LLM calls = %d, want 1", len(backend.calls))
	}
	if len(tools.ran) != 0 {
		t.Fatal("internal tasks must not call tools")
	}
	if result != "Chat title" {
		t.Fatalf("result = %q", result)
	}
}

// --- tool path and prompts ---

func TestRun_ToolOutputFlowsIntoStrictSynthesisPrompt(t *testing.T) {
	backend := &scriptedBackend{answers: []string{
		`{"action":"call_tool","tool_name":"search_web","parameters":{"query":"weather"}}`,
		"synthesized from research",
	}}
	tools := &fakeTools{known: map[string]bool{"search_web": true}, output: "SEARCH CONTEXT HERE"}

	o := newTestOrchestrator(backend, tools)
	result, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: conversation("weather tomorrow?"),
		ModelID:      "a/llama3",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != "synthesized from research" {
		t.Fatalf("result = %q", result)
	}
	if tools.ran[0] != "search_web" {
		t.Fatalf("ran = %v", tools.ran)
	}

	// The decision call runs in JSON mode; the synthesis call does not.
	if !backend.calls[0].Opts.JSONMode {
		t.Fatal("decision call must request JSON mode")
	}
	if backend.calls[1].Opts.JSONMode {
		t.Fatal("synthesis call must not request JSON mode")
	}

	synthSystem := backend.calls[1].Messages[0]
	if synthSystem.Role != "system" {
		t.Fatalf("first synthesis message role = %q", synthSystem.Role)
	}
	prompt := synthSystem.Content.PlainText()
	if !strings.Contains(prompt, "SEARCH CONTEXT HERE") {
		t.Fatal("tool output missing from synthesis prompt")
	}
	if !strings.Contains(prompt, "ONLY") {
		t.Fatal("expected the strict research instruction")
	}
	if !strings.Contains(prompt, "Current date and time:") {
		t.Fatal("expected the time context line")
	}
}

func TestRun_FrenchDecisionKeysAreNormalized(t *testing.T) {
	backend := &scriptedBackend{answers: []string{
		`{"action":"call_tool","outil":"search_web","paramètres":{"query":"météo"}}`,
		"ok",
	}}
	tools := &fakeTools{known: map[string]bool{"search_web": true}, output: "ctx"}

	o := newTestOrchestrator(backend, tools)
	if _, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: conversation("météo demain ?"),
		ModelID:      "a/llama3",
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tools.ran) != 1 || tools.ran[0] != "search_web" {
		t.Fatalf("ran = %v", tools.ran)
	}
}

// --- conversation handling ---

func TestRun_NoTrailingUserMessageYieldsApology(t *testing.T) {
	backend := &scriptedBackend{}
	tools := &fakeTools{known: map[string]bool{}}

	o := newTestOrchestrator(backend, tools)
	result, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: []entity.Message{
			{Role: "assistant", Content: entity.MessageContent{Text: "hello"}},
		},
		ModelID: "a/llama3",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(backend.calls) != 0 {
		t.Fatal("no LLM call expected without a user question")
	}
	if !strings.Contains(strings.ToLower(result), "sorry") {
		t.Fatalf("result = %q, want an apology", result)
	}
}

func TestRun_CallerConversationIsNotMutated(t *testing.T) {
	backend := &scriptedBackend{answers: []string{
		`{"action":"respond_directly"}`,
		"answer",
	}}
	tools := &fakeTools{known: map[string]bool{}}

	input := []entity.Message{
		{Role: "system", Content: entity.MessageContent{Text: "original system prompt"}},
		{Role: "user", Content: entity.MessageContent{Text: "hi"}},
	}

	o := newTestOrchestrator(backend, tools)
	if _, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: input,
		ModelID:      "a/llama3",
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if input[0].Content.PlainText() != "original system prompt" {
		t.Fatal("orchestrator mutated the caller's conversation")
	}
}

// --- failure paths ---

func TestRun_SynthesisFailureTriggersApologyCall(t *testing.T) {
	backend := &scriptedBackend{
		answers: []string{`{"action":"respond_directly"}`, "", "We are sorry, contact admin@example.org"},
		errs:    []error{nil, errors.New("backend exploded"), nil},
	}
	tools := &fakeTools{known: map[string]bool{}}

	o := newTestOrchestrator(backend, tools)
	result, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: conversation("hi"),
		ModelID:      "a/llama3",
	})
	if err != nil {
		t.Fatalf("Run must not surface synthesis errors: %v", err)
	}
	if !strings.Contains(result, "sorry") {
		t.Fatalf("result = %q", result)
	}
	if len(backend.calls) != 3 {
		t.Fatalf("LLM calls = %d, want decision + failed synthesis + apology", len(backend.calls))
	}
	apologyPrompt := backend.calls[2].Messages[0].Content.PlainText()
	if !strings.Contains(apologyPrompt, "admin@example.org") {
		t.Fatal("apology prompt must reference the admin contact")
	}
}

func TestRun_ApologyCallFailureFallsBackToHardcodedText(t *testing.T) {
	backend := &scriptedBackend{
		answers: []string{`{"action":"respond_directly"}`, "", ""},
		errs:    []error{nil, errors.New("down"), errors.New("still down")},
	}
	tools := &fakeTools{known: map[string]bool{}}

	o := newTestOrchestrator(backend, tools)
	result, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: conversation("hi"),
		ModelID:      "a/llama3",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != hardcodedApology {
		t.Fatalf("result = %q, want the hard-coded apology", result)
	}
}

func TestRun_EmptySynthesisIsReplacedWithApology(t *testing.T) {
	backend := &scriptedBackend{answers: []string{`{"action":"respond_directly"}`, "   \n "}}
	tools := &fakeTools{known: map[string]bool{}}

	o := newTestOrchestrator(backend, tools)
	result, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: conversation("hi"),
		ModelID:      "a/llama3",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != hardcodedApology {
		t.Fatalf("result = %q", result)
	}
}

func TestRun_DecisionFailureFailsTheTask(t *testing.T) {
	backend := &scriptedBackend{errs: []error{errors.New("routing backend down")}}
	tools := &fakeTools{known: map[string]bool{}}

	o := newTestOrchestrator(backend, tools)
	if _, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: conversation("hi"),
		ModelID:      "a/llama3",
	}); err == nil {
		t.Fatal("a failed decision call must fail the task")
	}
}

// --- routing model selection ---

func TestRun_RoutingModelOverridesCallerModelForDecision(t *testing.T) {
	backend := &scriptedBackend{answers: []string{`{"action":"respond_directly"}`, "answer"}}
	tools := &fakeTools{known: map[string]bool{}}

	o := NewOrchestrator(backend, tools, OrchestratorConfig{
		RoutingModelID: "router/phi3",
	}, zap.NewNop())

	if _, err := o.Run(context.Background(), OrchestrationRequest{
		Conversation: conversation("hi"),
		ModelID:      "a/llama3",
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if backend.calls[0].Model != "router/phi3" {
		t.Fatalf("decision model = %q", backend.calls[0].Model)
	}
	if backend.calls[1].Model != "a/llama3" {
		t.Fatalf("synthesis model = %q", backend.calls[1].Model)
	}
}

// --- parseDecision ---

func TestParseDecision_AlternativeKeys(t *testing.T) {
	tests := []struct {
		raw      string
		wantTool string
	}{
		{`{"action":"call_tool","tool_name":"a","parameters":{}}`, "a"},
		{`{"action":"call_tool","tool":"b","params":{}}`, "b"},
		{`{"action":"call_tool","outil":"c","paramètres":{}}`, "c"},
		{`{"action":"CALL_TOOL","name":"d","arguments":{}}`, "d"},
	}
	for _, tt := range tests {
		dec := parseDecision(tt.raw)
		if dec.Action != actionCallTool {
			t.Errorf("parseDecision(%s).Action = %q", tt.raw, dec.Action)
		}
		if dec.ToolName != tt.wantTool {
			t.Errorf("parseDecision(%s).ToolName = %q, want %q", tt.raw, dec.ToolName, tt.wantTool)
		}
	}
}

func TestParseDecision_GarbageFallsBackToDirect(t *testing.T) {
	dec := parseDecision("I think I should search the web for that!")
	if dec.Action != actionRespondDirect {
		t.Fatalf("Action = %q", dec.Action)
	}
}
