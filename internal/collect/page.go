package collect

// Crumb is a minimal (id, title) reference used for ancestor chains and
// breadcrumb trails.
type Crumb struct {
	ID    string
	Title string
}

// Page is the central entity of a run: one remote page, immutable once its
// Children field has been filled in by the collector.
type Page struct {
	ID    string
	Title string

	// Ancestors runs from the hierarchy root's child down to the parent
	// of this page; empty for the root. Populated for hierarchy pages.
	Ancestors []Crumb

	// Content is the raw HTML body, immutable once fetched.
	Content string

	// Children holds hierarchy child IDs in remote listing order.
	Children []string

	// ExpansionDepth is 0 for pages reached via hierarchy, N for pages
	// first reached via N hops of hyperlink-following.
	ExpansionDepth int

	// DiscoveredVia names the page whose content first linked here. Set
	// only when ExpansionDepth > 0; used for breadcrumb reconstruction,
	// never for ownership.
	DiscoveredVia string
}

// IsRoot reports whether this page is the hierarchy root of the run.
func (p *Page) IsRoot(rootID string) bool { return p.ID == rootID }

// Result is the outcome of a traversal: every discovered page keyed by ID,
// plus the visit order.
type Result struct {
	RootID string
	Pages  map[string]*Page
	Order  []string
}

// Len returns the number of discovered pages.
func (r *Result) Len() int { return len(r.Pages) }

// Get returns the page for an ID, or nil.
func (r *Result) Get(id string) *Page { return r.Pages[id] }
