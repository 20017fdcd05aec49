package tool

import (
	"context"
	"fmt"
	"strings"
)

// Question keywords that trigger the auxiliary weather-context search.
var weatherEnrichmentKeywords = []string{"insect", "pollen", "uv", "air quality", "humidex"}

// runSearchAndRead formats a canned search query from the tool's
// query_template, reads the top pages_to_read hits in parallel and
// concatenates their text.
func (e *Executor) runSearchAndRead(ctx context.Context, def Definition, params map[string]interface{}, userQuestion string) (string, error) {
	if def.ExecutionDetails.QueryTemplate == "" {
		return "", fmt.Errorf("tool %q has no query_template", def.Name)
	}

	query := formatTemplate(def.ExecutionDetails.QueryTemplate, params, false)

	results, err := e.searx.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No search results found for: %s", query), nil
	}

	pagesToRead := def.ExecutionDetails.PagesToRead
	if pagesToRead <= 0 {
		pagesToRead = defaultPagesToRead
	}
	if pagesToRead > len(results) {
		pagesToRead = len(results)
	}

	urls := make([]string, 0, pagesToRead)
	for _, r := range results[:pagesToRead] {
		urls = append(urls, r.URL)
	}

	var b strings.Builder
	b.WriteString(e.reader.ReadPages(ctx, urls))

	if def.Name == "get_detailed_weather" && containsWeatherKeyword(userQuestion) {
		if extra := e.weatherEnrichment(ctx, userQuestion); extra != "" {
			b.WriteString("\n\n--- Additional context ---\n")
			b.WriteString(extra)
		}
	}
	return b.String(), nil
}

// containsWeatherKeyword reports whether the question asks about a
// condition detail that general forecasts omit.
func containsWeatherKeyword(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range weatherEnrichmentKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// weatherEnrichment runs an auxiliary search on the user's own question
// and returns the top-3 snippets. Failures degrade to no enrichment.
func (e *Executor) weatherEnrichment(ctx context.Context, question string) string {
	results, err := e.searx.Search(ctx, question)
	if err != nil {
		e.logger.Warn("Weather enrichment search failed")
		return ""
	}

	var b strings.Builder
	shown := 0
	for _, r := range results {
		if shown >= 3 {
			break
		}
		if r.Content == "" {
			continue
		}
		if shown > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", r.Title, r.Content)
		shown++
	}
	return b.String()
}
