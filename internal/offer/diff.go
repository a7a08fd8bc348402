package offer

// DiffResult contains the results of comparing the current offers with the cached ones
type DiffResult struct {
	NewIDs     []string          // in current order
	RemovedIDs []string          // in previous order
	NewOffers  []*Offer          // offers behind NewIDs
	All        map[string]*Offer // union keyed by ID, current wins
}

// HasChanges reports whether any offer was added or removed
func (d *DiffResult) HasChanges() bool {
	return len(d.NewIDs) > 0 || len(d.RemovedIDs) > 0
}

// Diff compares the freshly fetched offers against the previously cached ones
func Diff(current, previous []*Offer) *DiffResult {
	result := &DiffResult{
		NewIDs:     make([]string, 0),
		RemovedIDs: make([]string, 0),
		NewOffers:  make([]*Offer, 0),
	}

	currentIdx := Index(current)
	previousIdx := Index(previous)

	for _, o := range current {
		if _, seen := previousIdx[o.ID]; !seen {
			result.NewIDs = append(result.NewIDs, o.ID)
			result.NewOffers = append(result.NewOffers, o)
		}
	}

	for _, o := range previous {
		if _, still := currentIdx[o.ID]; !still {
			result.RemovedIDs = append(result.RemovedIDs, o.ID)
		}
	}

	// Current records are indexed last so they replace cached ones
	union := make([]*Offer, 0, len(previous)+len(current))
	union = append(union, previous...)
	result.All = Index(append(union, current...))

	return result
}
