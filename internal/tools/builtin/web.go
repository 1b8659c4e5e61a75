package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/httpclient"
)

const (
	defaultSearchLimit  = 5
	maxSearchLimit      = 10
	fetchTimeout        = 30 * time.Second
	maxFetchedPageChars = 15000
)

type webSearch struct {
	binding  Binding
	searcher ports.WebSearcher
}

// NewWebSearch builds the search tool on top of a WebSearcher backend.
func NewWebSearch(binding Binding, searcher ports.WebSearcher) ports.ToolExecutor {
	return &webSearch{binding: binding.withDefaults(), searcher: searcher}
}

func (t *webSearch) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web and return result titles, URLs, and snippets.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "Search query"},
				"limit": {Type: "integer", Description: "Max results, up to 10; defaults to 5"},
			},
			Required: []string{"query"},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *webSearch) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryInternet}
}

func (t *webSearch) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	limit, ok := call.IntParam("limit")
	if !ok || limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	rendered, err := t.searcher.Search(ctx, call.StringParam("query"), limit)
	if err != nil {
		return nil, errors.NewExternal("web search", 0, err, "")
	}
	if strings.TrimSpace(rendered) == "" {
		return textResult(call, "No results for %q.", call.StringParam("query")), nil
	}
	return textResult(call, "%s", rendered), nil
}

type fetchWebpage struct {
	binding Binding
	client  *http.Client
}

// NewFetchWebpage builds the page fetch tool.
func NewFetchWebpage(binding Binding) ports.ToolExecutor {
	binding = binding.withDefaults()
	return &fetchWebpage{
		binding: binding,
		client:  httpclient.New(fetchTimeout, binding.Logger),
	}
}

func (t *fetchWebpage) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "fetch_webpage",
		Description: "Fetch a web page and return its readable text content.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"url": {Type: "string", Description: "Full http or https URL"},
			},
			Required: []string{"url"},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *fetchWebpage) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryInternet}
}

func (t *fetchWebpage) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	raw := call.StringParam("url")
	parsed, err := neturl.Parse(raw)
	if err != nil {
		return nil, errors.NewValidation("url", fmt.Sprintf("invalid URL: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.NewValidation("url", fmt.Sprintf("unsupported scheme %q; use http or https", parsed.Scheme))
	}
	if parsed.Scheme == "http" {
		parsed.Scheme = "https"
		raw = parsed.String()
	}
	if t.binding.AllowHost != nil && !t.binding.AllowHost(parsed.Hostname()) {
		return nil, errors.NewPermissionDenied(CategoryInternet,
			fmt.Sprintf("host %q is not on this agent's allowed websites list", parsed.Hostname()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req.Header.Set("User-Agent", "optimAIzer/1.0 (page fetcher)")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.NewExternal("webpage", 0, err, "")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExternal("webpage", resp.StatusCode, nil, "")
	}

	finalURL := resp.Request.URL.String()
	// Refuse silent cross-domain redirects; the model must re-request the
	// target explicitly.
	if hostOf(raw) != hostOf(finalURL) {
		return textResult(call,
			"The URL redirected to a different domain.\n\nOriginal: %s\nRedirect: %s\n\nMake a new request with the redirect URL if that is where you want to go.",
			raw, finalURL), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewExternal("webpage", 0, err, "")
	}

	content, err := htmlToText(string(body))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return textResult(call, "Source: %s\n\n%s", finalURL, content), nil
}

func hostOf(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// htmlToText reduces a page to readable text: noise containers removed,
// title and headings rendered as markdown, paragraphs and list items kept.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header, aside, iframe").Remove()

	var out strings.Builder
	if title := strings.TrimSpace(doc.Find("title").Text()); title != "" {
		out.WriteString("# " + title + "\n\n")
	}
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		level := int(s.Get(0).Data[1] - '0')
		out.WriteString(strings.Repeat("#", level) + " " + text + "\n\n")
	})
	doc.Find("p, article, section").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); len(text) > 30 {
			out.WriteString(text + "\n\n")
		}
	})
	doc.Find("ul, ol").Each(func(_ int, s *goquery.Selection) {
		s.Find("li").Each(func(_ int, li *goquery.Selection) {
			if text := strings.TrimSpace(li.Text()); text != "" {
				out.WriteString("• " + text + "\n")
			}
		})
		out.WriteString("\n")
	})

	result := strings.TrimSpace(out.String())
	if len(result) > maxFetchedPageChars {
		result = result[:maxFetchedPageChars] + "\n\n[Content truncated]"
	}
	return result, nil
}
