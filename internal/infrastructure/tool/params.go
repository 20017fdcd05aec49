package tool

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// stringifyParam renders a decision-LLM parameter value as a string.
// Routing models emit numbers and booleans as well as strings.
func stringifyParam(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; render integers without decimals.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// formatTemplate substitutes {param} placeholders with parameter values.
// When encode is true, values are URL-encoded (for URL templates); plain
// query templates substitute verbatim.
func formatTemplate(template string, params map[string]interface{}, encode bool) string {
	out := template
	for key, value := range params {
		s := stringifyParam(value)
		if encode {
			s = url.QueryEscape(s)
		}
		out = strings.ReplaceAll(out, "{"+key+"}", s)
	}
	return out
}

// expandHeaders resolves $ENV_VAR references in header values, so
// credentials flow from the environment instead of the tools file.
func expandHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = os.ExpandEnv(v)
	}
	return out
}
