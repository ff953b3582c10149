package mcp

import "github.com/mark3labs/mcp-go/mcp"

const kindHelp = `Entry kind: "note", "tasklist" or "list"`

var entryCreateToolDef = mcp.NewTool("entry_create",
	mcp.WithDescription("Create a note, task list or list in a space. Appends to the end of its scope unless index is given."),
	mcp.WithString("space_id", mcp.Required(), mcp.Description("Space the entry belongs to (case-insensitive)")),
	mcp.WithString("kind", mcp.Required(), mcp.Description(kindHelp)),
	mcp.WithString("title", mcp.Required(), mcp.Description("Entry title")),
	mcp.WithString("body", mcp.Description("Markdown body; notes only")),
	mcp.WithString("style", mcp.Description(`List style: "plain" (default) or "checklist"; lists only`)),
	mcp.WithNumber("index", mcp.Description("Zero-based display position to insert at")),
)

var entryGetToolDef = mcp.NewTool("entry_get",
	mcp.WithDescription("Fetch one entry by id, including its counters."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry id")),
)

var entryUpdateToolDef = mcp.NewTool("entry_update",
	mcp.WithDescription("Edit an entry's title, body or list style. Omitted fields are left unchanged."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry id")),
	mcp.WithString("title", mcp.Description("New title")),
	mcp.WithString("body", mcp.Description("New markdown body; notes only")),
	mcp.WithString("style", mcp.Description(`New list style: "plain" or "checklist"`)),
)

var entryDeleteToolDef = mcp.NewTool("entry_delete",
	mcp.WithDescription("Soft-delete an entry and its children. Deleting a missing entry succeeds."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry id")),
)

var entryListToolDef = mcp.NewTool("entry_list",
	mcp.WithDescription("List the entries of one kind in a space, in display order."),
	mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	mcp.WithString("kind", mcp.Required(), mcp.Description(kindHelp)),
)

var entryReorderToolDef = mcp.NewTool("entry_reorder",
	mcp.WithDescription("Move the entry at old_index to new_index within its scope."),
	mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	mcp.WithString("kind", mcp.Required(), mcp.Description(kindHelp)),
	mcp.WithNumber("old_index", mcp.Required(), mcp.Description("Current zero-based position")),
	mcp.WithNumber("new_index", mcp.Required(), mcp.Description("Target zero-based position")),
)

var entryMoveToolDef = mcp.NewTool("entry_move",
	mcp.WithDescription("Move an entry to another space. It is appended to the end of the destination scope."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry id")),
	mcp.WithString("space_id", mcp.Required(), mcp.Description("Destination space id")),
)

var entryPurgeToolDef = mcp.NewTool("entry_purge",
	mcp.WithDescription("Permanently delete soft-deleted entries and children."),
	mcp.WithNumber("older_than_days", mcp.Description("Only purge rows deleted more than N days ago (default: all)")),
)

var childAddToolDef = mcp.NewTool("child_add",
	mcp.WithDescription("Add a task to a task list or an item to a list. Updates the parent's counters."),
	mcp.WithString("parent_id", mcp.Required(), mcp.Description("Task list or list id")),
	mcp.WithString("text", mcp.Required(), mcp.Description("Task or item text")),
	mcp.WithBoolean("done", mcp.Description("Start completed (tasks) or checked (checklist items)")),
	mcp.WithNumber("index", mcp.Description("Zero-based display position to insert at")),
)

var childUpdateToolDef = mcp.NewTool("child_update",
	mcp.WithDescription("Edit a child's text or done state. Omitted fields are left unchanged."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Child id")),
	mcp.WithString("text", mcp.Description("New text")),
	mcp.WithBoolean("done", mcp.Description("New done state")),
)

var childDeleteToolDef = mcp.NewTool("child_delete",
	mcp.WithDescription("Delete a task or item. Updates the parent's counters."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Child id")),
)

var childToggleToolDef = mcp.NewTool("child_toggle",
	mcp.WithDescription("Flip a task's completed state or a checklist item's checked state."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Child id")),
)

var childListToolDef = mcp.NewTool("child_list",
	mcp.WithDescription("List the children of a task list or list, in display order, with counters."),
	mcp.WithString("parent_id", mcp.Required(), mcp.Description("Task list or list id")),
)

var childReorderToolDef = mcp.NewTool("child_reorder",
	mcp.WithDescription("Move the child at old_index to new_index within its parent."),
	mcp.WithString("parent_id", mcp.Required(), mcp.Description("Task list or list id")),
	mcp.WithNumber("old_index", mcp.Required(), mcp.Description("Current zero-based position")),
	mcp.WithNumber("new_index", mcp.Required(), mcp.Description("Target zero-based position")),
)

var spaceListToolDef = mcp.NewTool("space_list",
	mcp.WithDescription("List the spaces that hold entries."),
)

var spaceAuditToolDef = mcp.NewTool("space_audit",
	mcp.WithDescription("Check every scope of a space for broken order or wrong counters, and repair what is found."),
	mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
)

var parentReconcileToolDef = mcp.NewTool("parent_reconcile",
	mcp.WithDescription("Recount a parent's counters from its stored children and repair them if wrong."),
	mcp.WithString("parent_id", mcp.Required(), mcp.Description("Task list or list id")),
)
