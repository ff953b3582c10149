package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/shelf/internal/config"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	c   *ops.Coordinator
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(c *ops.Coordinator, cfg *config.Config) *Handlers {
	return &Handlers{c: c, cfg: cfg}
}

// Request types for each tool

// EntryCreateRequest represents the arguments for entry_create.
type EntryCreateRequest struct {
	SpaceID string `json:"space_id"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Body    string `json:"body,omitempty"`
	Style   string `json:"style,omitempty"`
	Index   *int   `json:"index,omitempty"`
}

// IDRequest represents the arguments of tools that address one row by id.
type IDRequest struct {
	ID string `json:"id"`
}

// EntryUpdateRequest represents the arguments for entry_update.
type EntryUpdateRequest struct {
	ID    string  `json:"id"`
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
	Style *string `json:"style,omitempty"`
}

// ScopeRequest represents the arguments for entry_list.
type ScopeRequest struct {
	SpaceID string `json:"space_id"`
	Kind    string `json:"kind"`
}

// EntryReorderRequest represents the arguments for entry_reorder.
type EntryReorderRequest struct {
	SpaceID  string `json:"space_id"`
	Kind     string `json:"kind"`
	OldIndex *int   `json:"old_index"`
	NewIndex *int   `json:"new_index"`
}

// EntryMoveRequest represents the arguments for entry_move.
type EntryMoveRequest struct {
	ID      string `json:"id"`
	SpaceID string `json:"space_id"`
}

// PurgeRequest represents the arguments for entry_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// ChildAddRequest represents the arguments for child_add.
type ChildAddRequest struct {
	ParentID string `json:"parent_id"`
	Text     string `json:"text"`
	Done     bool   `json:"done,omitempty"`
	Index    *int   `json:"index,omitempty"`
}

// ChildUpdateRequest represents the arguments for child_update.
type ChildUpdateRequest struct {
	ID   string  `json:"id"`
	Text *string `json:"text,omitempty"`
	Done *bool   `json:"done,omitempty"`
}

// ParentRequest represents the arguments of tools that address a parent.
type ParentRequest struct {
	ParentID string `json:"parent_id"`
}

// ChildReorderRequest represents the arguments for child_reorder.
type ChildReorderRequest struct {
	ParentID string `json:"parent_id"`
	OldIndex *int   `json:"old_index"`
	NewIndex *int   `json:"new_index"`
}

// SpaceRequest represents the arguments for space_audit.
type SpaceRequest struct {
	SpaceID string `json:"space_id"`
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

func requireIndices(oldIndex, newIndex *int) error {
	if oldIndex == nil || newIndex == nil {
		return fmt.Errorf("old_index and new_index are required")
	}
	return nil
}

func (r *IDRequest) check() error { return requireID(r.ID) }
func (r *EntryUpdateRequest) check() error { return requireID(r.ID) }
func (r *EntryMoveRequest) check() error { return requireID(r.ID) }
func (r *ChildUpdateRequest) check() error { return requireID(r.ID) }

func (r *EntryReorderRequest) check() error { return requireIndices(r.OldIndex, r.NewIndex) }
func (r *ChildReorderRequest) check() error { return requireIndices(r.OldIndex, r.NewIndex) }

func (r *ParentRequest) check() error {
	if strings.TrimSpace(r.ParentID) == "" {
		return fmt.Errorf("parent_id is required")
	}
	return nil
}

// Output types that are not ops results

// EntryListOutput is returned by entry_list.
type EntryListOutput struct {
	SpaceID string          `json:"space_id"`
	Kind    content.Kind    `json:"kind"`
	Entries []content.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// ChildListOutput is returned by child_list.
type ChildListOutput struct {
	ParentID string           `json:"parent_id"`
	Counters content.Counters `json:"counters"`
	Children []content.Child  `json:"children"`
}

// ReorderOutput is returned by entry_reorder and child_reorder.
type ReorderOutput struct {
	Scope    string `json:"scope"`
	OldIndex int    `json:"old_index"`
	NewIndex int    `json:"new_index"`
}

// DeleteOutput is returned by entry_delete and child_delete.
type DeleteOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// SpaceListOutput is returned by space_list.
type SpaceListOutput struct {
	Spaces []string `json:"spaces"`
}

// Handler implementations

// HandleEntryCreate handles the entry_create tool call.
func (h *Handlers) HandleEntryCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntryCreateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	kind, err := parseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.c.CreateEntry(ctx, ops.CreateEntryInput{
		SpaceID: input.SpaceID,
		Kind:    kind,
		Title:   input.Title,
		Body:    input.Body,
		Style:   content.ListStyle(strings.ToLower(strings.TrimSpace(input.Style))),
		Index:   input.Index,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEntryGet handles the entry_get tool call.
func (h *Handlers) HandleEntryGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.c.Entry(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEntryUpdate handles the entry_update tool call.
func (h *Handlers) HandleEntryUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntryUpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	var style *content.ListStyle
	if input.Style != nil {
		s := content.ListStyle(strings.ToLower(strings.TrimSpace(*input.Style)))
		style = &s
	}

	result, err := h.c.UpdateEntry(ctx, ops.UpdateEntryInput{
		ID:    input.ID,
		Title: input.Title,
		Body:  input.Body,
		Style: style,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEntryDelete handles the entry_delete tool call.
func (h *Handlers) HandleEntryDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.c.DeleteEntry(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}

	return successResult(DeleteOutput{ID: input.ID, Deleted: true})
}

// HandleEntryList handles the entry_list tool call.
func (h *Handlers) HandleEntryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScopeRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	kind, err := parseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}

	entries, err := h.c.Scope(ctx, input.SpaceID, kind)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(EntryListOutput{
		SpaceID: content.Normalize(input.SpaceID),
		Kind:    kind,
		Entries: nonNil(entries),
		Count:   len(entries),
	})
}

// HandleEntryReorder handles the entry_reorder tool call.
func (h *Handlers) HandleEntryReorder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntryReorderRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	kind, err := parseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}

	scope := content.EntryScope(content.Normalize(input.SpaceID), kind)
	if err := h.c.Reorder(ctx, scope, *input.OldIndex, *input.NewIndex); err != nil {
		return errorResult(err), nil
	}

	return successResult(ReorderOutput{Scope: scope.Key(), OldIndex: *input.OldIndex, NewIndex: *input.NewIndex})
}

// HandleEntryMove handles the entry_move tool call.
func (h *Handlers) HandleEntryMove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntryMoveRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.c.MoveToSpace(ctx, input.ID, input.SpaceID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEntryPurge handles the entry_purge tool call.
func (h *Handlers) HandleEntryPurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	var days int
	if input.OlderThanDays != nil {
		days = *input.OlderThanDays
	}
	result, err := h.c.Purge(ctx, ops.PurgeInput{OlderThanDays: days})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleChildAdd handles the child_add tool call.
func (h *Handlers) HandleChildAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChildAddRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.c.AddChild(ctx, ops.AddChildInput{
		ParentID: input.ParentID,
		Text:     input.Text,
		Done:     input.Done,
		Index:    input.Index,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleChildUpdate handles the child_update tool call.
func (h *Handlers) HandleChildUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChildUpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.c.UpdateChild(ctx, ops.UpdateChildInput{
		ID:   input.ID,
		Text: input.Text,
		Done: input.Done,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleChildDelete handles the child_delete tool call.
func (h *Handlers) HandleChildDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.c.DeleteChild(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}

	return successResult(DeleteOutput{ID: input.ID, Deleted: true})
}

// HandleChildToggle handles the child_toggle tool call.
func (h *Handlers) HandleChildToggle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.c.ToggleChild(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleChildList handles the child_list tool call.
func (h *Handlers) HandleChildList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ParentRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	children, err := h.c.Children(ctx, input.ParentID)
	if err != nil {
		return errorResult(err), nil
	}
	parent, err := h.c.Entry(ctx, input.ParentID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(ChildListOutput{
		ParentID: input.ParentID,
		Counters: parent.Counters,
		Children: nonNil(children),
	})
}

// HandleChildReorder handles the child_reorder tool call.
func (h *Handlers) HandleChildReorder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChildReorderRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	scope := content.ChildScope(input.ParentID)
	if err := h.c.Reorder(ctx, scope, *input.OldIndex, *input.NewIndex); err != nil {
		return errorResult(err), nil
	}

	return successResult(ReorderOutput{Scope: scope.Key(), OldIndex: *input.OldIndex, NewIndex: *input.NewIndex})
}

// HandleSpaceList handles the space_list tool call.
func (h *Handlers) HandleSpaceList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	spaces, err := h.c.ListSpaces(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(SpaceListOutput{Spaces: nonNil(spaces)})
}

// HandleSpaceAudit handles the space_audit tool call.
func (h *Handlers) HandleSpaceAudit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SpaceRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.c.Audit(ctx, input.SpaceID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleParentReconcile handles the parent_reconcile tool call.
func (h *Handlers) HandleParentReconcile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ParentRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.c.Reconcile(ctx, input.ParentID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// parseKind converts a tool argument into a Kind.
func parseKind(s string) (content.Kind, error) {
	if strings.TrimSpace(s) == "" {
		return "", errors.NewInvalidRequest("kind is required")
	}
	kind, ok := content.ParseKind(s)
	if !ok {
		return "", errors.NewInvalidRequest(`kind must be "note", "tasklist" or "list"`)
	}
	return kind, nil
}

// nonNil keeps empty results serialized as [] rather than null.
func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if shelfErr, ok := errors.As(err); ok {
		message := shelfErr.Message
		// Keep context added by wrappers, e.g. "children[2]: ..."
		if full := err.Error(); full != shelfErr.Error() {
			message = strings.TrimSuffix(full, shelfErr.Error()) + shelfErr.Message
		}
		errorObj := map[string]any{
			"code":    shelfErr.Code,
			"message": message,
			"status":  shelfErr.Status,
		}
		if shelfErr.Code != errors.ErrInternal && shelfErr.Details != nil {
			errorObj["details"] = shelfErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	body, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(body)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
