package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/hpungsan/shelf/internal/config"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/db"
	"github.com/hpungsan/shelf/internal/ops"
)

// setupTestCoordinator creates a coordinator over a temporary database.
func setupTestCoordinator(t *testing.T) *ops.Coordinator {
	t.Helper()
	cfg := config.DefaultConfig()
	backend, err := db.Open(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	s, err := backend.ForOwner(cfg.Owner)
	if err != nil {
		t.Fatalf("ForOwner: %v", err)
	}
	c := ops.New(s, ops.Options{Owner: cfg.Owner, Step: cfg.OrderStep})
	t.Cleanup(func() { c.Close() })
	return c
}

// runCLI runs the app with args, feeding stdin when non-empty, and returns
// what it wrote to stdout.
func runCLI(t *testing.T, c *ops.Coordinator, stdin string, args ...string) (string, error) {
	t.Helper()

	oldStdin, oldStdout := os.Stdin, os.Stdout
	defer func() {
		os.Stdin, os.Stdout = oldStdin, oldStdout
	}()

	if stdin != "" {
		stdinR, stdinW, err := os.Pipe()
		if err != nil {
			t.Fatalf("stdin pipe: %v", err)
		}
		go func() {
			_, _ = stdinW.WriteString(stdin)
			stdinW.Close()
		}()
		os.Stdin = stdinR
	} else {
		devNull, err := os.Open(os.DevNull)
		if err != nil {
			t.Fatalf("open %s: %v", os.DevNull, err)
		}
		defer devNull.Close()
		os.Stdin = devNull
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	os.Stdout = w

	outCh := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outCh <- buf.String()
	}()

	app := newCLIApp(c, config.DefaultConfig(), nil)
	runErr := app.Run(append([]string{"shelf"}, args...))

	w.Close()
	return <-outCh, runErr
}

func mustRun(t *testing.T, c *ops.Coordinator, args ...string) string {
	t.Helper()
	out, err := runCLI(t, c, "", args...)
	if err != nil {
		t.Fatalf("shelf %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decodeInto(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("failed to parse output %q: %v", out, err)
	}
}

func createViaCLI(t *testing.T, c *ops.Coordinator, args ...string) content.Entry {
	t.Helper()
	var e content.Entry
	decodeInto(t, mustRun(t, c, append([]string{"create"}, args...)...), &e)
	return e
}

type listOutput struct {
	SpaceID string          `json:"space_id"`
	Entries []content.Entry `json:"entries"`
}

func titlesOf(entries []content.Entry) string {
	titles := make([]string, len(entries))
	for i, e := range entries {
		titles[i] = e.Title
	}
	return strings.Join(titles, ",")
}

// TestParseDuration tests the parseDuration helper function.
func TestParseDuration(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int
		expectError bool
	}{
		{name: "valid days", input: "7d", expected: 7},
		{name: "zero days", input: "0d", expected: 0},
		{name: "missing suffix", input: "7", expectError: true},
		{name: "hours not supported", input: "7h", expectError: true},
		{name: "not a number", input: "xd", expectError: true},
		{name: "negative", input: "-1d", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseDuration(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for input, want := range map[string]content.Kind{
		"note":     content.KindNote,
		"Notes":    content.KindNote,
		"tasks":    content.KindTaskList,
		"tasklist": content.KindTaskList,
		"lists":    content.KindList,
	} {
		got, err := parseKind(input)
		if err != nil || got != want {
			t.Errorf("parseKind(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	if _, err := parseKind("board"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestCLICreateAndList(t *testing.T) {
	c := setupTestCoordinator(t)

	createViaCLI(t, c, "--space", "Home", "--kind", "note", "--title", "A")
	createViaCLI(t, c, "-s", "home", "-k", "notes", "-t", "C")
	b := createViaCLI(t, c, "-s", "home", "-k", "note", "-t", "B", "--index", "1")

	if b.SpaceID != "home" {
		t.Errorf("expected normalized space 'home', got %q", b.SpaceID)
	}

	var list listOutput
	decodeInto(t, mustRun(t, c, "list", "-s", "home", "-k", "note"), &list)
	if got := titlesOf(list.Entries); got != "A,B,C" {
		t.Errorf("expected order A,B,C, got %s", got)
	}
}

func TestCLICreate_NoteBodyFromStdin(t *testing.T) {
	c := setupTestCoordinator(t)

	out, err := runCLI(t, c, "# Heading\n\nsome text\n", "create", "-k", "note", "-t", "doc")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	var e content.Entry
	decodeInto(t, out, &e)
	if e.Body != "# Heading\n\nsome text" {
		t.Errorf("unexpected body %q", e.Body)
	}
	if e.SpaceID != "default" {
		t.Errorf("expected default space, got %q", e.SpaceID)
	}
}

func TestCLICreate_Errors(t *testing.T) {
	c := setupTestCoordinator(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown kind", []string{"create", "-k", "board", "-t", "x"}, "[INVALID_REQUEST]"},
		{"index out of range", []string{"create", "-k", "note", "-t", "x", "--index", "3"}, "[OUT_OF_RANGE]"},
		{"style on a note", []string{"create", "-k", "note", "-t", "x", "--style", "checklist"}, "[INVALID_REQUEST]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, c, "", tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %s in %q", tt.want, err.Error())
			}
		})
	}
}

func TestCLIShowAndUpdate(t *testing.T) {
	c := setupTestCoordinator(t)
	e := createViaCLI(t, c, "-k", "note", "-t", "draft")

	var updated content.Entry
	decodeInto(t, mustRun(t, c, "update", "--title", "final", e.ID), &updated)
	if updated.Title != "final" {
		t.Errorf("expected title 'final', got %q", updated.Title)
	}

	var shown struct {
		Entry    content.Entry   `json:"entry"`
		Children []content.Child `json:"children"`
	}
	decodeInto(t, mustRun(t, c, "show", e.ID), &shown)
	if shown.Entry.Title != "final" {
		t.Errorf("show returned title %q", shown.Entry.Title)
	}
	if shown.Children != nil {
		t.Errorf("notes should not report children, got %v", shown.Children)
	}

	_, err := runCLI(t, c, "", "show", "NOPE")
	if err == nil || !strings.Contains(err.Error(), "[NOT_FOUND]") {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	_, err = runCLI(t, c, "", "show")
	if err == nil || !strings.Contains(err.Error(), "entry ID is required") {
		t.Errorf("expected missing ID error, got %v", err)
	}
}

func TestCLIDelete(t *testing.T) {
	c := setupTestCoordinator(t)
	e := createViaCLI(t, c, "-k", "note", "-t", "gone")

	for i := 0; i < 2; i++ {
		var out map[string]any
		decodeInto(t, mustRun(t, c, "delete", e.ID), &out)
		if out["deleted"] != true {
			t.Errorf("delete #%d: expected deleted=true, got %v", i+1, out)
		}
	}

	var list listOutput
	decodeInto(t, mustRun(t, c, "list", "-k", "note"), &list)
	if len(list.Entries) != 0 {
		t.Errorf("expected empty scope, got %s", titlesOf(list.Entries))
	}
}

func TestCLIReorder(t *testing.T) {
	c := setupTestCoordinator(t)
	for _, title := range []string{"A", "B", "C", "D"} {
		createViaCLI(t, c, "-k", "tasklist", "-t", title)
	}

	var out struct {
		Scope   string          `json:"scope"`
		Entries []content.Entry `json:"entries"`
	}
	decodeInto(t, mustRun(t, c, "reorder", "-k", "tasks", "--from", "3", "--to", "1"), &out)
	if out.Scope != "space:default:tasklist" {
		t.Errorf("unexpected scope %q", out.Scope)
	}
	if got := titlesOf(out.Entries); got != "A,D,B,C" {
		t.Errorf("expected A,D,B,C, got %s", got)
	}

	_, err := runCLI(t, c, "", "reorder", "-k", "tasks", "--from", "0", "--to", "9")
	if err == nil || !strings.Contains(err.Error(), "[OUT_OF_RANGE]") {
		t.Errorf("expected OUT_OF_RANGE, got %v", err)
	}
}

func TestCLIMove(t *testing.T) {
	c := setupTestCoordinator(t)
	createViaCLI(t, c, "-s", "work", "-k", "list", "-t", "existing")
	e := createViaCLI(t, c, "-s", "home", "-k", "list", "-t", "books")

	var moved content.Entry
	decodeInto(t, mustRun(t, c, "move", "--to", "Work", e.ID), &moved)
	if moved.SpaceID != "work" {
		t.Errorf("expected space 'work', got %q", moved.SpaceID)
	}

	var work listOutput
	decodeInto(t, mustRun(t, c, "list", "-s", "work", "-k", "list"), &work)
	if got := titlesOf(work.Entries); got != "existing,books" {
		t.Errorf("expected moved entry appended, got %s", got)
	}

	var home listOutput
	decodeInto(t, mustRun(t, c, "list", "-s", "home", "-k", "list"), &home)
	if len(home.Entries) != 0 {
		t.Errorf("expected source scope empty, got %s", titlesOf(home.Entries))
	}
}

func TestCLIChildren(t *testing.T) {
	c := setupTestCoordinator(t)
	list := createViaCLI(t, c, "-k", "tasklist", "-t", "groceries")

	var milk, eggs content.Child
	decodeInto(t, mustRun(t, c, "add-child", "--text", "milk", list.ID), &milk)
	decodeInto(t, mustRun(t, c, "add-child", "--text", "eggs", list.ID), &eggs)
	mustRun(t, c, "add-child", "--text", "bread", "--done", "--index", "0", list.ID)

	var toggled content.Child
	decodeInto(t, mustRun(t, c, "toggle", milk.ID), &toggled)
	if !toggled.Done {
		t.Error("expected milk to be done after toggle")
	}

	mustRun(t, c, "update-child", "--text", "a dozen eggs", eggs.ID)
	mustRun(t, c, "reorder-child", "--from", "2", "--to", "0", list.ID)

	var out struct {
		ParentID string           `json:"parent_id"`
		Counters content.Counters `json:"counters"`
		Children []content.Child  `json:"children"`
	}
	decodeInto(t, mustRun(t, c, "children", list.ID), &out)

	var texts []string
	for _, ch := range out.Children {
		texts = append(texts, ch.Text)
	}
	if strings.Join(texts, ",") != "a dozen eggs,bread,milk" {
		t.Errorf("unexpected children order %v", texts)
	}
	if out.Counters != (content.Counters{Total: 3, Completed: 2}) {
		t.Errorf("expected counters 2/3, got %+v", out.Counters)
	}

	mustRun(t, c, "delete-child", milk.ID)
	mustRun(t, c, "delete-child", milk.ID)

	var rec ops.ReconcileOutput
	decodeInto(t, mustRun(t, c, "reconcile", list.ID), &rec)
	if rec.Repaired {
		t.Error("counters should already match the stored children")
	}
	if rec.Counters != (content.Counters{Total: 2, Completed: 1}) {
		t.Errorf("expected counters 1/2, got %+v", rec.Counters)
	}
}

func TestCLIToggle_PlainListRejected(t *testing.T) {
	c := setupTestCoordinator(t)
	list := createViaCLI(t, c, "-k", "list", "-t", "books")

	var item content.Child
	decodeInto(t, mustRun(t, c, "add-child", "--text", "dune", list.ID), &item)

	_, err := runCLI(t, c, "", "toggle", item.ID)
	if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestCLIAuditAndSpaces(t *testing.T) {
	c := setupTestCoordinator(t)
	createViaCLI(t, c, "-s", "b", "-k", "note", "-t", "x")
	createViaCLI(t, c, "-s", "a", "-k", "tasklist", "-t", "y")

	var spaces struct {
		Spaces []string `json:"spaces"`
	}
	decodeInto(t, mustRun(t, c, "spaces"), &spaces)
	if strings.Join(spaces.Spaces, ",") != "a,b" {
		t.Errorf("expected spaces a,b, got %v", spaces.Spaces)
	}

	var audit ops.AuditOutput
	decodeInto(t, mustRun(t, c, "audit", "-s", "a"), &audit)
	if audit.SpaceID != "a" || audit.Scopes != len(content.Kinds) {
		t.Errorf("unexpected audit %+v", audit)
	}
	if len(audit.OrderRepairs) != 0 || len(audit.CounterRepairs) != 0 {
		t.Errorf("healthy space reported repairs: %+v", audit)
	}
}

func TestCLIPurge(t *testing.T) {
	c := setupTestCoordinator(t)
	e := createViaCLI(t, c, "-k", "note", "-t", "old")
	mustRun(t, c, "delete", e.ID)

	var out ops.PurgeOutput
	decodeInto(t, mustRun(t, c, "purge", "--older-than", "7d"), &out)
	if out.Purged != 0 {
		t.Errorf("expected nothing older than 7 days, purged %d", out.Purged)
	}

	decodeInto(t, mustRun(t, c, "purge"), &out)
	if out.Purged != 1 {
		t.Errorf("expected 1 purged, got %d", out.Purged)
	}

	_, err := runCLI(t, c, "", "purge", "--older-than", "7")
	if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestCLIVersionNeedsNoStore(t *testing.T) {
	app := newCLIApp(nil, nil, nil)
	if app.Version != Version {
		t.Errorf("expected version %q, got %q", Version, app.Version)
	}
	if len(app.Commands) != len(cliCommands)-1 {
		t.Errorf("cliCommands lists %d commands, app has %d", len(cliCommands)-1, len(app.Commands))
	}
	for _, cmd := range app.Commands {
		if !cliCommands[cmd.Name] {
			t.Errorf("command %q missing from cliCommands", cmd.Name)
		}
	}
}
