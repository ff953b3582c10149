package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/hpungsan/shelf/internal/config"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/logger"
	"github.com/hpungsan/shelf/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	c        *ops.Coordinator
	cfg      *config.Config
	log      *logger.Logger
	renderer *Renderer

	done     chan struct{}
	stopOnce sync.Once
}

func newHandlers(c *ops.Coordinator, cfg *config.Config, log *logger.Logger, renderer *Renderer) *Handlers {
	return &Handlers{
		c:        c,
		cfg:      cfg,
		log:      log,
		renderer: renderer,
		done:     make(chan struct{}),
	}
}

// stop ends every open event stream.
func (h *Handlers) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// HandleSpaces handles GET /spaces: the spaces that hold entries.
func (h *Handlers) HandleSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.c.ListSpaces(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if spaces == nil {
		spaces = []string{}
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"spaces": spaces})
		return
	}

	h.renderer.renderPage(w, r, "spaces", SpacesPageData{
		PageData: h.renderer.page("Spaces", "spaces"),
		Spaces:   spaces,
		Kinds:    content.Kinds,
	})
}

// HandleScope handles GET /spaces/{space}/{kind}: one ordered scope.
func (h *Handlers) HandleScope(w http.ResponseWriter, r *http.Request) {
	space, kind, err := scopeParams(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	entries, err := h.c.Scope(r.Context(), space, kind)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"space_id": space,
			"kind":     kind,
			"entries":  nonNil(entries),
		})
		return
	}

	h.renderer.renderPage(w, r, "scope", h.scopePage(space, kind, entries))
}

func (h *Handlers) scopePage(space string, kind content.Kind, entries []content.Entry) ScopePageData {
	return ScopePageData{
		PageData: h.renderer.page(fmt.Sprintf("%s · %s", space, kindLabel(kind)), space),
		SpaceID:  space,
		Kind:     kind,
		Entries:  entries,
		Kinds:    content.Kinds,
	}
}

// HandleScopeEvents handles GET /spaces/{space}/{kind}/events: a stream of
// the scope's displayed state. The first event is the current state.
func (h *Handlers) HandleScopeEvents(w http.ResponseWriter, r *http.Request) {
	space, kind, err := scopeParams(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	sub, err := h.c.WatchScope(r.Context(), space, kind)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	defer sub.Close()

	if err := streamEvents(w, r, h.done, "scope", sub.C()); err != nil {
		h.log.Debug("event stream ended", "path", r.URL.Path, "error", err)
	}
}

// HandleReorder handles POST /spaces/{space}/{kind}/reorder: move the entry
// at old_index to new_index.
func (h *Handlers) HandleReorder(w http.ResponseWriter, r *http.Request) {
	space, kind, err := scopeParams(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	oldIndex, err := formInt(r, "old_index")
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	newIndex, err := formInt(r, "new_index")
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if err := h.c.Reorder(r.Context(), content.EntryScope(space, kind), oldIndex, newIndex); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	entries, err := h.c.Scope(r.Context(), space, kind)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: swap the list only
	if r.Header.Get("HX-Request") == "true" {
		h.renderer.renderBlock(w, http.StatusOK, "scope", "entries", h.scopePage(space, kind, entries))
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"space_id": space,
			"kind":     kind,
			"entries":  nonNil(entries),
		})
		return
	}

	http.Redirect(w, r, scopePath(space, kind), http.StatusSeeOther)
}

// HandleEntry handles GET /entries/{id}: one entry with its children.
func (h *Handlers) HandleEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("entry ID is required"))
		return
	}

	e, err := h.c.Entry(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	var children []content.Child
	if e.Kind.HasChildren() {
		children, err = h.c.Children(r.Context(), id)
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		// Nobody watches this page's children once it is rendered.
		h.c.Forget(id)
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"entry":    e,
			"children": nonNil(children),
		})
		return
	}

	var rendered template.HTML
	if e.Kind == content.KindNote {
		rendered = renderMarkdown(e.Body)
	}

	h.renderer.renderPage(w, r, "entry", EntryPageData{
		PageData:     h.renderer.page(e.Title, e.SpaceID),
		Entry:        e,
		RenderedHTML: rendered,
		Children:     children,
		Checkable:    content.Checkable(*e),
	})
}

// HandleChildrenEvents handles GET /entries/{id}/events: a stream of a
// parent's children and counters.
func (h *Handlers) HandleChildrenEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("entry ID is required"))
		return
	}

	sub, err := h.c.WatchChildren(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	defer func() {
		sub.Close()
		h.c.Forget(id)
	}()

	if err := streamEvents(w, r, h.done, "children", sub.C()); err != nil {
		h.log.Debug("event stream ended", "path", r.URL.Path, "error", err)
	}
}

// HandleToggle handles POST /children/{id}/toggle: flip a child's done state.
func (h *Handlers) HandleToggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("child ID is required"))
		return
	}

	child, err := h.c.ToggleChild(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	target := "/entries/" + url.PathEscape(child.ParentID)

	// HTMX request: reload the parent via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, child)
		return
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandlePurge handles POST /purge: permanently delete soft-deleted rows.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	var input ops.PurgeInput
	if r.FormValue("older_than_days") != "" {
		days, err := formInt(r, "older_than_days")
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		input.OlderThanDays = days
	}

	result, err := h.c.Purge(r.Context(), input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: return HTML fragment
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<div class="purge-result">` + template.HTMLEscapeString(result.Message) + `</div>`))
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/spaces", http.StatusSeeOther)
}

// streamEvents writes each value from updates as a server-sent event until
// the client goes away, the server stops or updates is closed.
func streamEvents[T any](w http.ResponseWriter, r *http.Request, done <-chan struct{}, event string, updates <-chan T) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-done:
			return nil
		case v, ok := <-updates:
			if !ok {
				return nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

// scopeParams reads and validates the {space} and {kind} path values.
func scopeParams(r *http.Request) (string, content.Kind, error) {
	space := content.Normalize(r.PathValue("space"))
	if space == "" {
		return "", "", errors.NewInvalidRequest("space is required")
	}
	kind, ok := content.ParseKind(r.PathValue("kind"))
	if !ok {
		return "", "", errors.NewInvalidRequest(fmt.Sprintf("unknown kind %q", r.PathValue("kind")))
	}
	return space, kind, nil
}

// scopePath returns the page URL of a scope.
func scopePath(space string, kind content.Kind) string {
	return "/spaces/" + url.PathEscape(space) + "/" + string(kind)
}

// formInt parses a required integer form field.
func formInt(r *http.Request, name string) (int, error) {
	s := r.FormValue(name)
	if s == "" {
		return 0, errors.NewInvalidRequest(name + " is required")
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewInvalidRequest(name + " must be an integer")
	}
	return v, nil
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
