package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
)

type searchMedia struct {
	binding Binding
	backend ports.MediaBackend
}

// NewSearchMedia builds the library search tool.
func NewSearchMedia(binding Binding, backend ports.MediaBackend) ports.ToolExecutor {
	return &searchMedia{binding: binding.withDefaults(), backend: backend}
}

func (t *searchMedia) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "search_media",
		Description: "Search the media library and its indexers for movies or series.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"kind":  {Type: "string", Description: "What to search", Enum: []string{"movie", "series"}},
				"query": {Type: "string", Description: "Title to search for"},
			},
			Required: []string{"kind", "query"},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *searchMedia) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryMedia}
}

func (t *searchMedia) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	candidates, err := t.backend.Search(ctx, call.StringParam("kind"), call.StringParam("query"))
	if err != nil {
		return nil, errors.NewExternal("media library", 0, err, "")
	}
	if len(candidates) == 0 {
		return textResult(call, "No %s found for %q.", call.StringParam("kind"), call.StringParam("query")), nil
	}

	var out strings.Builder
	for _, cand := range candidates {
		status := "not in library"
		if cand.InLibrary {
			status = "in library"
		}
		fmt.Fprintf(&out, "• %s (%d) — %s, id %s\n", cand.Title, cand.Year, status, cand.ExternalID)
	}
	return textResult(call, "%s", strings.TrimSuffix(out.String(), "\n")), nil
}

// resolveMedia matches a title against search results. Same-title hits with
// different years are never auto-picked; the caller gets the candidates and
// asks the user.
func resolveMedia(ctx context.Context, backend ports.MediaBackend, kind, ref string) (ports.MediaCandidate, error) {
	candidates, err := backend.Search(ctx, kind, ref)
	if err != nil {
		return ports.MediaCandidate{}, errors.NewExternal("media library", 0, err, "")
	}
	for _, cand := range candidates {
		if cand.ExternalID == ref {
			return cand, nil
		}
	}
	lowered := strings.ToLower(ref)
	var matches []ports.MediaCandidate
	for _, cand := range candidates {
		if strings.ToLower(cand.Title) == lowered {
			matches = append(matches, cand)
		}
	}
	if len(matches) == 0 {
		for _, cand := range candidates {
			if strings.Contains(strings.ToLower(cand.Title), lowered) {
				matches = append(matches, cand)
			}
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return ports.MediaCandidate{}, errors.NewNotFound(kind, ref)
	default:
		cands := make([]errors.Candidate, 0, len(matches))
		for _, cand := range matches {
			cands = append(cands, errors.Candidate{
				ID:    cand.ExternalID,
				Label: fmt.Sprintf("%s (%d)", cand.Title, cand.Year),
			})
		}
		return ports.MediaCandidate{}, errors.NewAmbiguous(kind, cands)
	}
}

type requestMedia struct {
	binding Binding
	backend ports.MediaBackend
}

// NewRequestMedia builds the library add tool.
func NewRequestMedia(binding Binding, backend ports.MediaBackend) ports.ToolExecutor {
	return &requestMedia{binding: binding.withDefaults(), backend: backend}
}

func (t *requestMedia) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "request_media",
		Description: "Add a movie or series to the library, found by title or external id.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"kind":  {Type: "string", Description: "What to add", Enum: []string{"movie", "series"}},
				"title": {Type: "string", Description: "Title or external id"},
			},
			Required: []string{"kind", "title"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *requestMedia) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryMedia}
}

func (t *requestMedia) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	kind := call.StringParam("kind")
	cand, err := resolveMedia(ctx, t.backend, kind, call.StringParam("title"))
	if err != nil {
		return nil, err
	}
	if cand.InLibrary {
		return textResult(call, "%s (%d) is already in the library.", cand.Title, cand.Year), nil
	}
	if err := t.backend.Request(ctx, kind, cand.ExternalID); err != nil {
		return nil, errors.NewExternal("media library", 0, err, "")
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "delete_media",
		Params: map[string]any{"kind": kind, "title": cand.ExternalID},
	})
	return textResult(call, "Requested %s (%d).", cand.Title, cand.Year), nil
}

type deleteMedia struct {
	binding Binding
	backend ports.MediaBackend
}

// NewDeleteMedia builds the library removal tool.
func NewDeleteMedia(binding Binding, backend ports.MediaBackend) ports.ToolExecutor {
	return &deleteMedia{binding: binding.withDefaults(), backend: backend}
}

func (t *deleteMedia) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "delete_media",
		Description: "Remove a movie or series from the library, found by title or external id.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"kind":  {Type: "string", Description: "What to remove", Enum: []string{"movie", "series"}},
				"title": {Type: "string", Description: "Title or external id"},
			},
			Required: []string{"kind", "title"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *deleteMedia) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryMedia, Critical: true}
}

func (t *deleteMedia) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	kind := call.StringParam("kind")
	cand, err := resolveMedia(ctx, t.backend, kind, call.StringParam("title"))
	if err != nil {
		return nil, err
	}
	if !cand.InLibrary {
		return nil, errors.NewNotFound(kind, call.StringParam("title"))
	}
	if err := t.backend.Delete(ctx, kind, cand.ExternalID); err != nil {
		return nil, errors.NewExternal("media library", 0, err, "")
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "request_media",
		Params: map[string]any{"kind": kind, "title": cand.ExternalID},
	})
	return textResult(call, "Removed %s (%d) from the library.", cand.Title, cand.Year), nil
}
