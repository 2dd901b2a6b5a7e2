package moderation

import (
	"fmt"
	"strings"
	"time"
)

// RejectedDraftPolicy decides what happens to the draft of a rejected proposal.
type RejectedDraftPolicy string

const (
	// RetainRejectedDrafts keeps the orphaned draft for audit.
	RetainRejectedDrafts RejectedDraftPolicy = "retain"
	// DeleteRejectedDrafts removes the draft and every row it owns.
	DeleteRejectedDrafts RejectedDraftPolicy = "delete"
)

// ParseRejectedDraftPolicy accepts "retain" or "delete"; empty means retain.
func ParseRejectedDraftPolicy(raw string) (RejectedDraftPolicy, error) {
	switch RejectedDraftPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RetainRejectedDrafts:
		return RetainRejectedDrafts, nil
	case DeleteRejectedDrafts:
		return DeleteRejectedDrafts, nil
	default:
		return "", fmt.Errorf("unknown rejected draft policy %q", raw)
	}
}

// Options tunes intake and review.
type Options struct {
	// GeocodeTimeout bounds address enrichment of one submission.
	GeocodeTimeout time.Duration
	RejectedDrafts RejectedDraftPolicy
	// RejectStaleProposals fails approval of an UPDATE or DELETE prepared
	// against a version that is no longer active.
	RejectStaleProposals bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		GeocodeTimeout:       30 * time.Second,
		RejectedDrafts:       RetainRejectedDrafts,
		RejectStaleProposals: true,
	}
}
