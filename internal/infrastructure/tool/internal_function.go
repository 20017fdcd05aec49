package tool

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultPagesToRead    = 1
	defaultExcerptsToShow = 3
)

// runInternalFunction dispatches the built-in tools by well-known name.
func (e *Executor) runInternalFunction(ctx context.Context, def Definition, params map[string]interface{}) (string, error) {
	switch def.Name {
	case "search_web":
		return e.searchWeb(ctx, def, params)
	case "read_webpage":
		return e.readWebpage(ctx, params)
	default:
		return "", fmt.Errorf("no internal function named %q", def.Name)
	}
}

// searchWeb searches, reads the top pages_to_read result URLs in parallel,
// and appends excerpts_to_show extra results as plain snippets.
func (e *Executor) searchWeb(ctx context.Context, def Definition, params map[string]interface{}) (string, error) {
	query := stringifyParam(params["query"])
	if query == "" {
		return "", fmt.Errorf("'query' parameter is required")
	}

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

	excerpts := def.ExecutionDetails.ExcerptsToShow
	if excerpts <= 0 {
		excerpts = defaultExcerptsToShow
	}
	shown := 0
	for _, r := range results[pagesToRead:] {
		if shown >= excerpts {
			break
		}
		if r.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n--- Excerpt from %s (%s) ---\n%s", r.Title, r.URL, r.Content)
		shown++
	}
	return b.String(), nil
}

// readWebpage accepts a single URL or a list and reads them in parallel.
func (e *Executor) readWebpage(ctx context.Context, params map[string]interface{}) (string, error) {
	var urls []string
	switch v := params["url"].(type) {
	case string:
		urls = []string{v}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				urls = append(urls, s)
			}
		}
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("'url' parameter must be a URL or a list of URLs")
	}
	return e.reader.ReadPages(ctx, urls), nil
}
