package tool

import (
	"context"
	"fmt"
)

// runURLFromTemplate formats one URL from query_template and reads it.
// Global substitutions (currently the SearXNG base URL) are available to
// the template alongside the call parameters.
func (e *Executor) runURLFromTemplate(ctx context.Context, def Definition, params map[string]interface{}) (string, error) {
	if def.ExecutionDetails.QueryTemplate == "" {
		return "", fmt.Errorf("tool %q has no query_template", def.Name)
	}

	// Parameters are URL-encoded; global substitutions are URL fragments
	// themselves and must stay verbatim.
	pageURL := formatTemplate(def.ExecutionDetails.QueryTemplate, params, true)
	pageURL = formatTemplate(pageURL, map[string]interface{}{
		"SEARXNG_BASE_URL": e.searxBaseURL,
	}, false)

	return e.reader.Read(ctx, pageURL)
}
