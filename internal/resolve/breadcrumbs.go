package resolve

import (
	"slices"

	"git.home.luguber.info/inful/wikimirror/internal/collect"
	"git.home.luguber.info/inful/wikimirror/internal/util/sets"
)

// Trail returns the breadcrumb chain for a page, ordered from the crumb
// nearest the hierarchy root down to the page's immediate parent. Hierarchy
// pages walk their ancestor list starting after the run root. Link-discovered
// pages walk discoveredVia pointers back toward the hierarchy, stopping at
// the first hierarchy page or on a repeat visit.
func Trail(result *collect.Result, page *collect.Page) []collect.Crumb {
	if page.ExpansionDepth == 0 {
		return hierarchyTrail(result.RootID, page)
	}
	return linkTrail(result, page)
}

func hierarchyTrail(rootID string, page *collect.Page) []collect.Crumb {
	for i, ancestor := range page.Ancestors {
		if ancestor.ID == rootID {
			return slices.Clone(page.Ancestors[i+1:])
		}
	}
	return nil
}

func linkTrail(result *collect.Result, page *collect.Page) []collect.Crumb {
	var chain []collect.Crumb
	seen := sets.New(page.ID)
	current := result.Get(page.DiscoveredVia)
	for current != nil && !seen.Has(current.ID) {
		seen.Add(current.ID)
		chain = append(chain, collect.Crumb{ID: current.ID, Title: current.Title})
		if current.ExpansionDepth == 0 {
			break
		}
		current = result.Get(current.DiscoveredVia)
	}
	slices.Reverse(chain)
	return chain
}
