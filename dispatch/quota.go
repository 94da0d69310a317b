package dispatch

import (
	"github.com/outflowhq/outflow/internal/util"
)

const (
	// MinQuota and MaxQuota bound any configured per-workspace quota.
	MinQuota = 1
	MaxQuota = 100

	// DefaultQuota and DefaultHighQuota are the fallbacks when configuration
	// is missing or unparseable.
	DefaultQuota     = 2
	DefaultHighQuota = 6
)

// QuotaPolicy maps a workspace to its concurrency ceiling. Pure: no side
// effects and no error cases; invalid configuration silently falls back.
type QuotaPolicy struct {
	defaultQuota int
	highQuota    int
}

// NewQuotaPolicy builds a policy from configured quota values. Values outside
// [MinQuota, MaxQuota] are clamped, zero or negative values fall back to the
// defaults, and the high quota is raised to at least the default quota.
func NewQuotaPolicy(defaultQuota, highQuota int) QuotaPolicy {
	if defaultQuota <= 0 {
		defaultQuota = DefaultQuota
	}
	if highQuota <= 0 {
		highQuota = DefaultHighQuota
	}
	defaultQuota = util.Clamp(defaultQuota, MinQuota, MaxQuota)
	highQuota = util.Clamp(highQuota, MinQuota, MaxQuota)
	if highQuota < defaultQuota {
		highQuota = defaultQuota
	}
	return QuotaPolicy{defaultQuota: defaultQuota, highQuota: highQuota}
}

// Resolve returns the concurrency ceiling for a workspace. The eligibility
// flag is resolved by the caller from workspace settings and/or the static
// allow-list (see NewEligibility).
func (p QuotaPolicy) Resolve(workspaceID string, highEligible bool) int {
	_ = workspaceID // quota currently varies only by tier
	if highEligible {
		return p.highQuota
	}
	return p.defaultQuota
}

// DefaultTier returns the policy's default quota.
func (p QuotaPolicy) DefaultTier() int { return p.defaultQuota }

// HighTier returns the policy's high quota.
func (p QuotaPolicy) HighTier() int { return p.highQuota }

// EligibilityFunc reports whether a workspace is eligible for the high
// quota tier.
type EligibilityFunc func(workspaceID string) bool

// NewEligibility merges the legacy static allow-list with an optional
// per-workspace settings lookup. A workspace is eligible if either source
// says so. lookup may be nil.
func NewEligibility(allowList []string, lookup EligibilityFunc) EligibilityFunc {
	allowed := make(map[string]struct{}, len(allowList))
	for _, id := range allowList {
		allowed[id] = struct{}{}
	}
	return func(workspaceID string) bool {
		if _, ok := allowed[workspaceID]; ok {
			return true
		}
		if lookup != nil {
			return lookup(workspaceID)
		}
		return false
	}
}
