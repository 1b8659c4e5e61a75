// Package parser lifts tool-call envelopes out of assistant text for
// backends without native tool calling. Four envelope forms are recognized,
// in precedence order: <tool_call>{...}</tool_call>,
// <function_call>{...}</function_call>, self-closing XML elements, and bare
// JSON objects on their own line. Recognized envelopes are removed from the
// user-visible text.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

var (
	toolCallPattern     = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)
	functionCallPattern = regexp.MustCompile(`(?s)<function_call>\s*(\{.*?\})\s*</function_call>`)
	xmlCallPattern      = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9_]*)((?:\s+[a-zA-Z_][a-zA-Z0-9_]*="[^"]*")*)\s*/>`)
	xmlAttrPattern      = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)="([^"]*)"`)
	toolNamePattern     = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	danglingMarkers     = regexp.MustCompile(`</?(?:tool_call|function_call)>`)
)

// htmlVoidTags are self-closing elements models emit as formatting, never as
// tool calls.
var htmlVoidTags = map[string]bool{
	"br": true, "hr": true, "img": true, "input": true, "meta": true,
	"link": true, "area": true, "base": true, "col": true, "embed": true,
	"source": true, "track": true, "wbr": true,
}

type parser struct {
	logger    logging.Logger
	knownTool func(string) bool
}

// Option configures the parser.
type Option func(*parser)

// WithKnownTools restricts the XML envelope form to registered tool names so
// stray markup is not mistaken for a call. The other forms are explicit
// enough to stand on the name pattern alone.
func WithKnownTools(fn func(string) bool) Option {
	return func(p *parser) { p.knownTool = fn }
}

// New builds a fallback parser.
func New(logger logging.Logger, opts ...Option) ports.FunctionCallParser {
	p := &parser{logger: logging.OrNop(logger)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract returns every recognized call and the text with envelopes removed.
func (p *parser) Extract(text string) ([]ports.ToolCall, string) {
	if text == "" {
		return nil, text
	}

	var calls []ports.ToolCall
	cleaned := text

	cleaned = p.extractWrapped(cleaned, toolCallPattern, &calls)
	cleaned = p.extractWrapped(cleaned, functionCallPattern, &calls)
	cleaned = p.extractXML(cleaned, &calls)
	cleaned = p.extractBareJSON(cleaned, &calls)

	cleaned = danglingMarkers.ReplaceAllString(cleaned, "")
	if len(calls) > 0 {
		cleaned = collapseBlankRuns(cleaned)
	}
	return calls, cleaned
}

func (p *parser) extractWrapped(text string, pattern *regexp.Regexp, calls *[]ports.ToolCall) string {
	return pattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := pattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		name, params, ok := p.decodePayload(sub[1])
		if !ok {
			p.logger.Debug("parser: discarding unparseable envelope payload")
			return match
		}
		*calls = append(*calls, newCall(name, params))
		return ""
	})
}

func (p *parser) extractXML(text string, calls *[]ports.ToolCall) string {
	return xmlCallPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := xmlCallPattern.FindStringSubmatch(match)
		if len(sub) < 3 {
			return match
		}
		name := sub[1]
		if htmlVoidTags[strings.ToLower(name)] || !toolNamePattern.MatchString(name) {
			return match
		}
		if p.knownTool != nil && !p.knownTool(name) {
			return match
		}
		params := map[string]any{}
		for _, attr := range xmlAttrPattern.FindAllStringSubmatch(sub[2], -1) {
			key, value := attr[1], attr[2]
			if key == "params" {
				// Reserved attribute carrying a JSON object of params.
				if nested, ok := p.decodeObject(value); ok {
					for k, v := range nested {
						params[k] = v
					}
					continue
				}
			}
			params[key] = value
		}
		*calls = append(*calls, newCall(name, params))
		return ""
	})
}

func (p *parser) extractBareJSON(text string, calls *[]ports.ToolCall) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
			kept = append(kept, line)
			continue
		}
		// The bare form needs an explicit params key; a lone {"name": ...}
		// is more likely content the model is showing the user.
		obj, ok := p.decodeObject(trimmed)
		if !ok || !hasParamsKey(obj) {
			kept = append(kept, line)
			continue
		}
		name, params, ok := p.decodeCall(obj)
		if !ok {
			kept = append(kept, line)
			continue
		}
		*calls = append(*calls, newCall(name, params))
	}
	return strings.Join(kept, "\n")
}

func hasParamsKey(obj map[string]any) bool {
	for _, key := range []string{"parameters", "params", "arguments"} {
		if _, ok := obj[key].(map[string]any); ok {
			return true
		}
	}
	return false
}

// decodePayload decodes a JSON envelope body into (name, params). Malformed
// JSON goes through jsonrepair once before rejection. The params live under
// "parameters", "params" or "arguments".
func (p *parser) decodePayload(payload string) (string, map[string]any, bool) {
	obj, ok := p.decodeObject(payload)
	if !ok {
		return "", nil, false
	}
	return p.decodeCall(obj)
}

func (p *parser) decodeCall(obj map[string]any) (string, map[string]any, bool) {
	name, _ := obj["name"].(string)
	if !toolNamePattern.MatchString(name) {
		return "", nil, false
	}
	params := map[string]any{}
	for _, key := range []string{"parameters", "params", "arguments"} {
		if nested, isMap := obj[key].(map[string]any); isMap {
			params = nested
			break
		}
	}
	return name, params, true
}

func (p *parser) decodeObject(payload string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err == nil {
		return obj, true
	}
	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, false
	}
	p.logger.Debug("parser: repaired malformed envelope JSON")
	return obj, true
}

func newCall(name string, params map[string]any) ports.ToolCall {
	if params == nil {
		params = map[string]any{}
	}
	return ports.ToolCall{ID: id.NewCallID(), Name: name, Params: params}
}

// collapseBlankRuns squeezes the holes left by removed envelopes.
func collapseBlankRuns(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
