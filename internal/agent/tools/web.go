package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultWebResults = 5

// SearchWebTool searches the web via the DuckDuckGo HTML endpoint
type SearchWebTool struct {
	client *http.Client
}

// NewSearchWebTool creates the search_web tool
func NewSearchWebTool() *SearchWebTool {
	return &SearchWebTool{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *SearchWebTool) Name() string {
	return "search_web"
}

func (t *SearchWebTool) Description() string {
	return "Search the web and return result titles, URLs, and snippets."
}

func (t *SearchWebTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "Search query"
			},
			"max_results": {
				"type": "integer",
				"description": "Maximum number of results (default: 5)"
			}
		},
		"required": ["query"]
	}`)
}

func (t *SearchWebTool) RequiresApproval() bool {
	return false
}

func (t *SearchWebTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.Query == "" {
		return &ToolResult{Content: "query is required", IsError: true}, nil
	}
	if in.MaxResults <= 0 {
		in.MaxResults = defaultWebResults
	}

	results, err := t.search(ctx, in.Query, in.MaxResults)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("web search failed: %v", err), IsError: true}, nil
	}
	if len(results) == 0 {
		return &ToolResult{Content: fmt.Sprintf("No results for %q", in.Query)}, nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return &ToolResult{Content: b.String()}, nil
}

type webSearchResult struct {
	Title   string
	URL     string
	Snippet string
}

func (t *SearchWebTool) search(ctx context.Context, query string, limit int) ([]webSearchResult, error) {
	searchURL := fmt.Sprintf("https://html.duckduckgo.com/html/?q=%s", url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Hew/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return parseDuckDuckGoHTML(string(body), limit), nil
}

func parseDuckDuckGoHTML(html string, limit int) []webSearchResult {
	var results []webSearchResult

	parts := strings.Split(html, `class="result__body"`)

	for i, part := range parts[1:] {
		if i >= limit {
			break
		}

		result := webSearchResult{}

		if idx := strings.Index(part, `class="result__a"`); idx != -1 {
			hrefStart := strings.Index(part[idx:], `href="`)
			if hrefStart != -1 {
				hrefStart += idx + 6
				hrefEnd := strings.Index(part[hrefStart:], `"`)
				if hrefEnd != -1 {
					rawURL := part[hrefStart : hrefStart+hrefEnd]
					if u, err := url.Parse(rawURL); err == nil {
						// DuckDuckGo wraps targets in a redirect with the
						// real URL in the uddg query param
						if uddg := u.Query().Get("uddg"); uddg != "" {
							result.URL = uddg
						} else {
							result.URL = rawURL
						}
					}
				}
			}

			titleStart := strings.Index(part[idx:], ">")
			if titleStart != -1 {
				titleStart += idx + 1
				titleEnd := strings.Index(part[titleStart:], "</a>")
				if titleEnd != -1 {
					result.Title = strings.TrimSpace(stripHTMLTags(part[titleStart : titleStart+titleEnd]))
				}
			}
		}

		if idx := strings.Index(part, `class="result__snippet"`); idx != -1 {
			snippetStart := strings.Index(part[idx:], ">")
			if snippetStart != -1 {
				snippetStart += idx + 1
				snippetEnd := strings.Index(part[snippetStart:], "</a>")
				if snippetEnd == -1 {
					snippetEnd = strings.Index(part[snippetStart:], "</span>")
				}
				if snippetEnd != -1 {
					result.Snippet = strings.TrimSpace(stripHTMLTags(part[snippetStart : snippetStart+snippetEnd]))
				}
			}
		}

		if result.Title != "" && result.URL != "" {
			results = append(results, result)
		}
	}

	return results
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

func stripHTMLTags(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#x27;", "'")
	s = strings.ReplaceAll(s, "&#39;", "'")
	return s
}
