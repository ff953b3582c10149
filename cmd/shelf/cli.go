package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/shelf/internal/config"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/logger"
	"github.com/hpungsan/shelf/internal/ops"
	"github.com/hpungsan/shelf/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(c *ops.Coordinator, cfg *config.Config, log *logger.Logger) *cli.App {
	app := &cli.App{
		Name:    "shelf",
		Usage:   "Notes, task lists and lists in ordered spaces",
		Version: Version,
		Commands: []*cli.Command{
			createCmd(c),
			showCmd(c),
			listCmd(c),
			updateCmd(c),
			deleteCmd(c),
			reorderCmd(c),
			moveCmd(c),
			addChildCmd(c),
			childrenCmd(c),
			updateChildCmd(c),
			toggleCmd(c),
			deleteChildCmd(c),
			reorderChildCmd(c),
			reconcileCmd(c),
			auditCmd(c),
			purgeCmd(c),
			spacesCmd(c),
			serveCmd(c, cfg, log),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// spaceFlag returns the --space flag shared by scope commands.
func spaceFlag() cli.Flag {
	return &cli.StringFlag{Name: "space", Aliases: []string{"s"}, Value: "default", Usage: "Space name"}
}

// createCmd creates the create command.
func createCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create an entry (a note body may be piped via stdin)",
		Flags: []cli.Flag{
			spaceFlag(),
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Required: true, Usage: "Entry kind: note|tasklist|list"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Required: true, Usage: "Entry title"},
			&cli.StringFlag{Name: "style", Usage: "List style: plain|checklist"},
			&cli.IntFlag{Name: "index", Aliases: []string{"i"}, Usage: "Position in the scope (default: end)"},
		},
		Action: func(c *cli.Context) error {
			kind, err := parseKind(c.String("kind"))
			if err != nil {
				return outputError(err)
			}
			input := ops.CreateEntryInput{
				SpaceID: c.String("space"),
				Kind:    kind,
				Title:   c.String("title"),
				Style:   content.ListStyle(c.String("style")),
			}
			if c.IsSet("index") {
				index := c.Int("index")
				input.Index = &index
			}
			if stdinHasData() {
				body, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				input.Body = body
			}

			e, err := coord.CreateEntry(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(e)
		},
	}
}

// showCmd creates the show command.
func showCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show an entry and its children",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry ID")
			if err != nil {
				return outputError(err)
			}
			e, err := coord.Entry(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			out := map[string]any{"entry": e}
			if e.Kind.HasChildren() {
				children, err := coord.Children(c.Context, id)
				if err != nil {
					return outputError(err)
				}
				out["children"] = nonNil(children)
			}
			return outputJSON(out)
		},
	}
}

// listCmd creates the list command.
func listCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the entries of one kind in a space, in order",
		Flags: []cli.Flag{
			spaceFlag(),
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Required: true, Usage: "Entry kind: note|tasklist|list"},
		},
		Action: func(c *cli.Context) error {
			kind, err := parseKind(c.String("kind"))
			if err != nil {
				return outputError(err)
			}
			entries, err := coord.Scope(c.Context, c.String("space"), kind)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"space_id": content.Normalize(c.String("space")),
				"kind":     kind,
				"entries":  nonNil(entries),
			})
		},
	}
}

// updateCmd creates the update command.
func updateCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Update an entry (a new note body may be piped via stdin)",
		ArgsUsage: "[options] <id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
			&cli.StringFlag{Name: "style", Usage: "New list style: plain|checklist"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry ID")
			if err != nil {
				return outputError(err)
			}
			input := ops.UpdateEntryInput{ID: id}
			if c.IsSet("title") {
				title := c.String("title")
				input.Title = &title
			}
			if c.IsSet("style") {
				style := content.ListStyle(c.String("style"))
				input.Style = &style
			}
			if stdinHasData() {
				body, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				if body != "" {
					input.Body = &body
				}
			}

			e, err := coord.UpdateEntry(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(e)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete an entry",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry ID")
			if err != nil {
				return outputError(err)
			}
			if err := coord.DeleteEntry(c.Context, id); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"id": id, "deleted": true})
		},
	}
}

// reorderCmd creates the reorder command.
func reorderCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "reorder",
		Usage: "Move an entry within its scope",
		Flags: []cli.Flag{
			spaceFlag(),
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Required: true, Usage: "Entry kind: note|tasklist|list"},
			&cli.IntFlag{Name: "from", Required: true, Usage: "Current index"},
			&cli.IntFlag{Name: "to", Required: true, Usage: "New index"},
		},
		Action: func(c *cli.Context) error {
			kind, err := parseKind(c.String("kind"))
			if err != nil {
				return outputError(err)
			}
			space := c.String("space")
			scope := content.EntryScope(content.Normalize(space), kind)
			if err := coord.Reorder(c.Context, scope, c.Int("from"), c.Int("to")); err != nil {
				return outputError(err)
			}
			entries, err := coord.Scope(c.Context, space, kind)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"scope":   scope.Key(),
				"entries": nonNil(entries),
			})
		},
	}
}

// moveCmd creates the move command.
func moveCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "move",
		Usage:     "Move an entry to the end of another space",
		ArgsUsage: "[options] <id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Required: true, Usage: "Destination space"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry ID")
			if err != nil {
				return outputError(err)
			}
			e, err := coord.MoveToSpace(c.Context, id, c.String("to"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(e)
		},
	}
}

// addChildCmd creates the add-child command.
func addChildCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "add-child",
		Usage:     "Add a task or item to a parent entry",
		ArgsUsage: "[options] <parent-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Required: true, Usage: "Task or item text"},
			&cli.BoolFlag{Name: "done", Usage: "Create it completed or checked"},
			&cli.IntFlag{Name: "index", Aliases: []string{"i"}, Usage: "Position among the children (default: end)"},
		},
		Action: func(c *cli.Context) error {
			parentID, err := requireArg(c, "parent ID")
			if err != nil {
				return outputError(err)
			}
			input := ops.AddChildInput{
				ParentID: parentID,
				Text:     c.String("text"),
				Done:     c.Bool("done"),
			}
			if c.IsSet("index") {
				index := c.Int("index")
				input.Index = &index
			}
			ch, err := coord.AddChild(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(ch)
		},
	}
}

// childrenCmd creates the children command.
func childrenCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "children",
		Usage:     "List the children of a parent entry, in order",
		ArgsUsage: "<parent-id>",
		Action: func(c *cli.Context) error {
			parentID, err := requireArg(c, "parent ID")
			if err != nil {
				return outputError(err)
			}
			children, err := coord.Children(c.Context, parentID)
			if err != nil {
				return outputError(err)
			}
			parent, err := coord.Entry(c.Context, parentID)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"parent_id": parentID,
				"counters":  parent.Counters,
				"children":  nonNil(children),
			})
		},
	}
}

// updateChildCmd creates the update-child command.
func updateChildCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "update-child",
		Usage:     "Edit the text or state of a child",
		ArgsUsage: "[options] <id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Usage: "New text"},
			&cli.BoolFlag{Name: "done", Usage: "Completed or checked state"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "child ID")
			if err != nil {
				return outputError(err)
			}
			input := ops.UpdateChildInput{ID: id}
			if c.IsSet("text") {
				text := c.String("text")
				input.Text = &text
			}
			if c.IsSet("done") {
				done := c.Bool("done")
				input.Done = &done
			}
			ch, err := coord.UpdateChild(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(ch)
		},
	}
}

// toggleCmd creates the toggle command.
func toggleCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "toggle",
		Usage:     "Flip the completed or checked state of a child",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "child ID")
			if err != nil {
				return outputError(err)
			}
			ch, err := coord.ToggleChild(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(ch)
		},
	}
}

// deleteChildCmd creates the delete-child command.
func deleteChildCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "delete-child",
		Usage:     "Soft-delete a child",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "child ID")
			if err != nil {
				return outputError(err)
			}
			if err := coord.DeleteChild(c.Context, id); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"id": id, "deleted": true})
		},
	}
}

// reorderChildCmd creates the reorder-child command.
func reorderChildCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "reorder-child",
		Usage:     "Move a child within its parent",
		ArgsUsage: "[options] <parent-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "from", Required: true, Usage: "Current index"},
			&cli.IntFlag{Name: "to", Required: true, Usage: "New index"},
		},
		Action: func(c *cli.Context) error {
			parentID, err := requireArg(c, "parent ID")
			if err != nil {
				return outputError(err)
			}
			scope := content.ChildScope(parentID)
			if err := coord.Reorder(c.Context, scope, c.Int("from"), c.Int("to")); err != nil {
				return outputError(err)
			}
			children, err := coord.Children(c.Context, parentID)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"scope":    scope.Key(),
				"children": nonNil(children),
			})
		},
	}
}

// reconcileCmd creates the reconcile command.
func reconcileCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "reconcile",
		Usage:     "Recount a parent's counters from its stored children",
		ArgsUsage: "<parent-id>",
		Action: func(c *cli.Context) error {
			parentID, err := requireArg(c, "parent ID")
			if err != nil {
				return outputError(err)
			}
			out, err := coord.Reconcile(c.Context, parentID)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// auditCmd creates the audit command.
func auditCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Check and repair the order and counters of a space",
		Flags: []cli.Flag{spaceFlag()},
		Action: func(c *cli.Context) error {
			out, err := coord.Audit(c.Context, c.String("space"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted entries and children",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = days
			}

			out, err := coord.Purge(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// spacesCmd creates the spaces command.
func spacesCmd(coord *ops.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "spaces",
		Usage: "List the spaces that hold entries",
		Action: func(c *cli.Context) error {
			spaces, err := coord.ListSpaces(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"spaces": nonNil(spaces)})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(coord *ops.Coordinator, cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8321, Usage: "Port to listen on"},
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(coord, cfg, log, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv, log); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// requireArg returns the first positional argument.
func requireArg(c *cli.Context, what string) (string, error) {
	if c.NArg() == 0 || strings.TrimSpace(c.Args().First()) == "" {
		return "", errors.NewInvalidRequest(what + " is required")
	}
	return strings.TrimSpace(c.Args().First()), nil
}

// parseKind converts the --kind flag into a Kind.
func parseKind(s string) (content.Kind, error) {
	kind, ok := content.ParseKind(s)
	if !ok {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown kind %q (want note, tasklist or list)", s))
	}
	return kind, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
