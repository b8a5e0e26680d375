// Package match resolves which billing client a campaign belongs to, based
// on campaign naming conventions.
package match

import (
	"sort"
	"strings"

	"github.com/ignite/reportsync/internal/domain"
)

// Client returns the best-matching billing client for a campaign name, or
// nil when no candidate matches. Deterministic and side-effect free: callers
// must never create a client because a match failed.
//
// Candidates are tried longest name first so that a short client name
// ("JAE") can never shadow a more specific one ("JAE Automation") that is
// also a valid prefix of the campaign name.
func Client(campaignName string, candidates []domain.Client) *domain.Client {
	if campaignName == "" || len(candidates) == 0 {
		return nil
	}

	sorted := make([]domain.Client, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Name) > len(sorted[j].Name)
	})

	for i := range sorted {
		if sorted[i].Name == "" {
			continue
		}
		if strings.HasPrefix(campaignName, sorted[i].Name) {
			return &sorted[i]
		}
	}
	return nil
}
