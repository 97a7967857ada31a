// Package sharesync keeps shared items in step with the backend: encrypting
// pushes under the share DEK, unwrapping incoming shares, and merging
// concurrent edits when a push loses the version race.
package sharesync

import "github.com/avoronov/planvault/internal/client/models"

// MergeItems combines two replicas of the same shared item after a version
// conflict. The remote replica dictates entry order; for entries present in
// both, the local value wins; entries only the local replica knows are
// appended at the end in local order. The result is deterministic for a
// given pair of inputs, so two clients resolving the same conflict converge.
func MergeItems(remote, local *models.Item) *models.Item {
	merged := &models.Item{
		ID:        remote.ID,
		Title:     local.Title,
		Notes:     local.Notes,
		UpdatedAt: local.UpdatedAt,
	}
	if remote.UpdatedAt.After(local.UpdatedAt) {
		merged.UpdatedAt = remote.UpdatedAt
	}

	localByID := make(map[string]models.Entry, len(local.Entries))
	for _, e := range local.Entries {
		localByID[e.ID] = e
	}

	seen := make(map[string]bool, len(remote.Entries))
	for _, e := range remote.Entries {
		seen[e.ID] = true
		if le, ok := localByID[e.ID]; ok {
			merged.Entries = append(merged.Entries, le)
		} else {
			merged.Entries = append(merged.Entries, e)
		}
	}

	for _, e := range local.Entries {
		if !seen[e.ID] {
			merged.Entries = append(merged.Entries, e)
		}
	}

	return merged
}

// MergeWorkspaces applies the same policy one level up: remote item order,
// per-item merge where both replicas hold the item, local-only items
// appended.
func MergeWorkspaces(remote, local *models.Workspace) *models.Workspace {
	merged := &models.Workspace{}

	seen := make(map[string]bool, len(remote.Items))
	for n := range remote.Items {
		r := &remote.Items[n]
		seen[r.ID] = true
		if l := local.FindItem(r.ID); l != nil {
			merged.Items = append(merged.Items, *MergeItems(r, l))
		} else {
			merged.Items = append(merged.Items, *r)
		}
	}

	for _, item := range local.Items {
		if !seen[item.ID] {
			merged.Items = append(merged.Items, item)
		}
	}

	return merged
}
