package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// internalTaskPrefix marks UI-internal requests (title/tag generation)
// that must bypass routing entirely.
const internalTaskPrefix = "### Task:"

const genericAssistantPrompt = "You are a helpful assistant. Answer the user clearly and concisely."

const hardcodedApology = "I apologize, but I ran into an internal problem while preparing " +
	"your answer. Please try again in a moment."

// decisionPreamble is the default routing instruction, used when no
// routing_prompt_file overrides it.
const decisionPreamble = `You are a routing assistant. Decide whether the user's question requires calling one of the available tools, or can be answered directly.

You must answer with a single JSON object, nothing else. Either:
  {"action": "call_tool", "tool_name": "<name>", "parameters": {...}}
or:
  {"action": "respond_directly"}

Only call a tool when the question needs current or external information the tool provides.`

// buildDecisionPrompt enumerates the tool registry with a generated JSON
// example per tool, so small routing models see the exact shape expected.
func buildDecisionPrompt(preamble string, tools []ToolSpec) string {
	if preamble == "" {
		preamble = decisionPreamble
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nAvailable tools:\n")

	if len(tools) == 0 {
		b.WriteString("(none; always respond directly)\n")
		return b.String()
	}

	for _, t := range tools {
		fmt.Fprintf(&b, "\n- %s: %s\n", t.Name, t.Description)
		example := map[string]interface{}{
			"action":     "call_tool",
			"tool_name":  t.Name,
			"parameters": exampleParameters(t.Parameters),
		}
		encoded, err := json.Marshal(example)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "  Example: %s\n", encoded)
	}
	return b.String()
}

// exampleParameters fabricates a placeholder argument object from a
// JSON-Schema-like parameters block.
func exampleParameters(schema map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return out
	}
	for name, raw := range props {
		prop, _ := raw.(map[string]interface{})
		switch prop["type"] {
		case "number", "integer":
			out[name] = 0
		case "boolean":
			out[name] = false
		default:
			out[name] = "<" + name + ">"
		}
	}
	return out
}

// buildResearchPrompt is the strict synthesis prompt used when a tool ran:
// the model must answer from the gathered context alone.
func buildResearchPrompt(toolOutput string) string {
	return "You are a research assistant. Answer the user's question using ONLY " +
		"the research information below. If the answer is not present in the " +
		"research information, say that you could not find it. Do not invent facts.\n\n" +
		"=== RESEARCH INFORMATION ===\n" + toolOutput + "\n=== END RESEARCH INFORMATION ==="
}

// timeContextLine renders the current local time for the synthesis prompt.
func timeContextLine(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	return fmt.Sprintf("Current date and time: %s.", now.Format("Monday, January 2, 2006, 15:04 (MST)"))
}

// buildApologyPrompt asks the model for a polite failure message naming
// the admin contact. Used when synthesis itself failed.
func buildApologyPrompt(adminEmail string) string {
	prompt := "The system failed to produce an answer for the user. Write a short, " +
		"polite apology telling the user the service hit a temporary problem and " +
		"to try again later."
	if adminEmail != "" {
		prompt += " Mention that persistent problems can be reported to " + adminEmail + "."
	}
	return prompt
}
