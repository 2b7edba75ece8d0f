package confluence

// Page is the content representation returned by the remote API for a
// single page fetch or a child listing entry.
type Page struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      Body      `json:"body"`
	Ancestors []PageRef `json:"ancestors,omitempty"`
}

// Body wraps the rendered content variants; only the view body is consumed.
type Body struct {
	View View `json:"view"`
}

// View carries the rendered HTML of a page.
type View struct {
	Value string `json:"value"`
}

// PageRef is a minimal (id, title) reference used for ancestor chains.
type PageRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// childListing is one page of a paginated child listing.
type childListing struct {
	Results []Page `json:"results"`
	Size    int    `json:"size"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}
