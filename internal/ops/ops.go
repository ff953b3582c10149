// Package ops is the content coordinator: the only entry point views use to
// read and change entries and children.
//
// Every command computes its result from the displayed state, publishes it to
// watchers at once, and then persists it through a single serial writer. When
// the write fails the displayed state is rolled back.
package ops

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/shelf/internal/bus"
	"github.com/hpungsan/shelf/internal/cache"
	"github.com/hpungsan/shelf/internal/config"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/logger"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// RetryPolicy bounds the retries of transient persistence failures.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetry matches the configuration defaults.
var DefaultRetry = RetryPolicy{MaxAttempts: 4, Initial: 50 * time.Millisecond, Max: time.Second}

// RetryFromConfig reads the retry settings of cfg.
func RetryFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		Initial:     time.Duration(cfg.RetryInitialMs) * time.Millisecond,
		Max:         time.Duration(cfg.RetryMaxMs) * time.Millisecond,
	}
}

// Options configure a Coordinator. Zero values get defaults.
type Options struct {
	Logger *logger.Logger

	// Owner is stamped on optimistic rows and on change notices. It must
	// match the owner the store is bound to.
	Owner string

	Step  int64
	Retry RetryPolicy

	// Clock supplies timestamps for new and updated rows.
	Clock func() time.Time

	// Forwarder carries change notices to other processes; optional.
	Forwarder bus.Forwarder
}

// ScopeView is what watchers of an entry scope receive.
type ScopeView struct {
	Scope   content.Scope   `json:"scope"`
	Entries []content.Entry `json:"entries"`
	Version uint64          `json:"version"`
}

// ChildrenView is what watchers of a parent's children receive. Loaded is
// false until the children have been fetched.
type ChildrenView struct {
	ParentID string           `json:"parent_id"`
	Loaded   bool             `json:"loaded"`
	Children []content.Child  `json:"children"`
	Counters content.Counters `json:"counters"`
	Version  uint64           `json:"version"`
}

// scopeState is the displayed order of one entry scope.
type scopeState struct {
	scope   content.Scope
	entries []content.Entry
	version uint64
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	store  store.Store
	seq    sequence.Sequencer
	log    *logger.Logger
	owner  string
	retry  RetryPolicy
	clock  func() time.Time
	fwd    bus.Forwarder
	origin string

	mu       sync.Mutex
	scopes   map[string]*scopeState
	where    map[string]string // entry id -> scope key
	childVer map[string]uint64 // parent id -> children version
	parentOf map[string]string // child id -> parent id
	closed   bool

	cache   *cache.Cache
	entries *bus.Hub[ScopeView]
	kids    *bus.Hub[ChildrenView]
	writer  *writer
}

// New returns a Coordinator over s.
func New(s store.Store, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = DefaultRetry.MaxAttempts
	}
	if opts.Retry.Initial <= 0 {
		opts.Retry.Initial = DefaultRetry.Initial
	}
	if opts.Retry.Max < opts.Retry.Initial {
		opts.Retry.Max = opts.Retry.Initial
	}

	return &Coordinator{
		store:    s,
		seq:      sequence.New(opts.Step),
		log:      opts.Logger.With("service", "coordinator"),
		owner:    opts.Owner,
		retry:    opts.Retry,
		clock:    opts.Clock,
		fwd:      opts.Forwarder,
		origin:   content.MustNewID(),
		scopes:   make(map[string]*scopeState),
		where:    make(map[string]string),
		childVer: make(map[string]uint64),
		parentOf: make(map[string]string),
		cache:    cache.New(),
		entries:  bus.NewHub[ScopeView](),
		kids:     bus.NewHub[ChildrenView](),
		writer:   newWriter(),
	}
}

// Close waits for queued writes, then closes every subscription and the
// forwarder.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writer.close()
	c.entries.Close()
	c.kids.Close()
	if c.fwd != nil {
		return c.fwd.Close()
	}
	return nil
}

func (c *Coordinator) now() time.Time {
	return content.Truncate(c.clock())
}

// submit queues a write. Caller holds c.mu so the queue order is the order
// in which commands were issued.
func (c *Coordinator) submit(ctx context.Context, op string, fn func(ctx context.Context) error) <-chan error {
	if c.closed {
		done := make(chan error, 1)
		done <- errors.NewInternal(errClosed)
		return done
	}
	ctx = context.WithoutCancel(ctx)
	return c.writer.submit(func() error {
		return c.persist(ctx, op, fn)
	})
}

// lookup returns the displayed entry with id. Caller holds c.mu.
func (c *Coordinator) lookup(id string) (content.Entry, bool) {
	key, ok := c.where[id]
	if !ok {
		return content.Entry{}, false
	}
	st := c.scopes[key]
	if i := content.EntryIndex(st.entries, id); i >= 0 {
		return st.entries[i], true
	}
	return content.Entry{}, false
}

// entryFor returns the displayed entry with id, loading its scope first when
// the entry has not been seen yet.
func (c *Coordinator) entryFor(ctx context.Context, id string) (content.Entry, error) {
	if id == "" {
		return content.Entry{}, errors.NewInvalidRequest("id is required")
	}
	c.mu.Lock()
	e, ok := c.lookup(id)
	c.mu.Unlock()
	if ok {
		return e, nil
	}

	var fetched *content.Entry
	err := c.read(ctx, store.OpGetEntry, func(ctx context.Context) error {
		var err error
		fetched, err = c.store.GetEntry(ctx, id)
		return err
	})
	if err != nil {
		return content.Entry{}, err
	}
	if err := c.ensureScope(ctx, fetched.Scope()); err != nil {
		return content.Entry{}, err
	}

	c.mu.Lock()
	e, ok = c.lookup(id)
	c.mu.Unlock()
	if ok {
		return e, nil
	}

	// The scope was displayed before the entry reached the store.
	if err := c.refreshScope(ctx, fetched.Scope()); err != nil {
		return content.Entry{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.lookup(id); ok {
		return e, nil
	}
	return content.Entry{}, errors.NewNotFound(id)
}

// ensureScope loads scope from the store unless it is already displayed.
func (c *Coordinator) ensureScope(ctx context.Context, scope content.Scope) error {
	key := scope.Key()
	c.mu.Lock()
	_, ok := c.scopes[key]
	c.mu.Unlock()
	if ok {
		return nil
	}

	entries, err := c.fetchScope(ctx, scope)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.scopes[key]; !ok {
		c.install(scope, entries)
	}
	return nil
}

func (c *Coordinator) fetchScope(ctx context.Context, scope content.Scope) ([]content.Entry, error) {
	var entries []content.Entry
	err := c.read(ctx, store.OpListEntries, func(ctx context.Context) error {
		var err error
		entries, err = c.store.ListEntries(ctx, scope.SpaceID, scope.Kind)
		return err
	})
	return entries, err
}

// refreshScope replaces the displayed scope with the stored one. The fetch
// queues behind every write issued before it, so it sees their outcome. When
// a command changes the scope while the fetch is queued, the fetch runs again
// behind that command's write.
func (c *Coordinator) refreshScope(ctx context.Context, scope content.Scope) error {
	key := scope.Key()
	for {
		var entries []content.Entry
		c.mu.Lock()
		version := c.scopeVersion(key)
		done := c.submit(ctx, store.OpListEntries, func(ctx context.Context) error {
			var err error
			entries, err = c.store.ListEntries(ctx, scope.SpaceID, scope.Kind)
			return err
		})
		c.mu.Unlock()
		if err := <-done; err != nil {
			c.log.Error("scope refresh failed", "scope", key, "error", err)
			return err
		}

		c.mu.Lock()
		if c.scopeVersion(key) == version {
			c.install(scope, entries)
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
	}
}

// install makes entries the displayed state of scope. Caller holds c.mu.
func (c *Coordinator) install(scope content.Scope, entries []content.Entry) {
	key := scope.Key()
	st, ok := c.scopes[key]
	if !ok {
		st = &scopeState{scope: scope}
		c.scopes[key] = st
	}
	for _, e := range st.entries {
		if c.where[e.ID] == key {
			delete(c.where, e.ID)
		}
	}
	st.entries = content.CloneEntries(entries)
	if st.entries == nil {
		st.entries = []content.Entry{}
	}
	for _, e := range st.entries {
		c.where[e.ID] = key
	}
	c.publishScope(st)
}

// publishScope bumps the scope version and fans the state out. Caller holds c.mu.
func (c *Coordinator) publishScope(st *scopeState) uint64 {
	st.version++
	c.entries.Publish(st.scope.Key(), ScopeView{
		Scope:   st.scope,
		Entries: content.CloneEntries(st.entries),
		Version: st.version,
	})
	return st.version
}

// replaceEntry swaps in a new snapshot of a displayed entry and publishes its
// scope. It returns the new scope version, or zero when the entry is not
// displayed. Caller holds c.mu.
func (c *Coordinator) replaceEntry(e content.Entry) uint64 {
	key, ok := c.where[e.ID]
	if !ok {
		return 0
	}
	st := c.scopes[key]
	i := content.EntryIndex(st.entries, e.ID)
	if i < 0 {
		return 0
	}
	st.entries[i] = e
	return c.publishScope(st)
}

// scopeVersion returns the version of the scope holding entry id. Caller holds c.mu.
func (c *Coordinator) scopeVersion(key string) uint64 {
	if st, ok := c.scopes[key]; ok {
		return st.version
	}
	return 0
}

// publishChildren fans out the children of parentID. Caller holds c.mu.
func (c *Coordinator) publishChildren(parentID string) uint64 {
	c.childVer[parentID]++
	view := ChildrenView{ParentID: parentID, Version: c.childVer[parentID], Children: []content.Child{}}
	if children, ok := c.cache.Get(parentID); ok {
		view.Loaded = true
		view.Children = children
		for _, ch := range children {
			c.parentOf[ch.ID] = parentID
		}
	}
	if parent, ok := c.lookup(parentID); ok {
		view.Counters = parent.Counters
	}
	c.kids.Publish(content.ChildScope(parentID).Key(), view)
	return c.childVer[parentID]
}

// dropChildren forgets which children belong to parentID. Caller holds c.mu.
func (c *Coordinator) dropChildren(parentID string) {
	for id, p := range c.parentOf {
		if p == parentID {
			delete(c.parentOf, id)
		}
	}
}

// loadChildren returns the displayed children of parentID, fetching them on
// first use behind any queued writes.
func (c *Coordinator) loadChildren(ctx context.Context, parentID string) ([]content.Child, error) {
	if children, ok := c.cache.Get(parentID); ok {
		return children, nil
	}
	children, err := c.cache.Load(ctx, parentID, func(ctx context.Context) ([]content.Child, error) {
		var out []content.Child
		c.mu.Lock()
		done := c.submit(ctx, store.OpListChildren, func(ctx context.Context) error {
			var err error
			out, err = c.store.ListChildren(ctx, parentID)
			return err
		})
		c.mu.Unlock()
		err := <-done
		return out, err
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.publishChildren(parentID)
	c.mu.Unlock()
	return children, nil
}

// reloadChildren drops the cached children of parentID and, when someone is
// watching, fetches them again.
func (c *Coordinator) reloadChildren(ctx context.Context, parentID string) {
	c.cache.Invalidate(parentID)
	if !c.kids.Watched(content.ChildScope(parentID).Key()) {
		return
	}
	if _, err := c.loadChildren(ctx, parentID); err != nil {
		c.log.Warn("children reload failed", "parent_id", parentID, "error", err)
	}
}

// parentOfChild finds the parent of a child, asking the store when the child
// is not displayed.
func (c *Coordinator) parentOfChild(ctx context.Context, childID string) (string, error) {
	if childID == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	c.mu.Lock()
	parentID, ok := c.parentOf[childID]
	c.mu.Unlock()
	if ok {
		return parentID, nil
	}

	var child *content.Child
	err := c.read(ctx, store.OpGetChild, func(ctx context.Context) error {
		var err error
		child, err = c.store.GetChild(ctx, childID)
		return err
	})
	if err != nil {
		return "", err
	}
	return child.ParentID, nil
}
