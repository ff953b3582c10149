package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/shelf/internal/config"
	"github.com/hpungsan/shelf/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"entry", "child", "space", "parent"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"entry_create": {
		def:     entryCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryCreate },
	},
	"entry_get": {
		def:     entryGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryGet },
	},
	"entry_update": {
		def:     entryUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryUpdate },
	},
	"entry_delete": {
		def:     entryDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryDelete },
	},
	"entry_list": {
		def:     entryListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryList },
	},
	"entry_reorder": {
		def:     entryReorderToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryReorder },
	},
	"entry_move": {
		def:     entryMoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryMove },
	},
	"entry_purge": {
		def:     entryPurgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryPurge },
	},
	"child_add": {
		def:     childAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChildAdd },
	},
	"child_update": {
		def:     childUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChildUpdate },
	},
	"child_delete": {
		def:     childDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChildDelete },
	},
	"child_toggle": {
		def:     childToggleToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChildToggle },
	},
	"child_list": {
		def:     childListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChildList },
	},
	"child_reorder": {
		def:     childReorderToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChildReorder },
	},
	"space_list": {
		def:     spaceListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSpaceList },
	},
	"space_audit": {
		def:     spaceAuditToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSpaceAudit },
	},
	"parent_reconcile": {
		def:     parentReconcileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleParentReconcile },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "entry_create" → "entry").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Shelf tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(c *ops.Coordinator, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"shelf",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(c, cfg)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(c *ops.Coordinator, cfg *config.Config, version string) error {
	s := NewServer(c, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
