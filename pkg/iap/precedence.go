package iap

// MemberSource tells where a member's activity flag came from.
type MemberSource string

const (
	SourceRemote MemberSource = "remote"
	SourceCache  MemberSource = "cache"
)

// MemberStatus is one product of a subscription group.
type MemberStatus struct {
	ProductID string       `json:"product_id"`
	Level     int          `json:"level"`
	Active    bool         `json:"active"`
	Verified  bool         `json:"verified"`
	Source    MemberSource `json:"source"`
}

// GroupStatus is the derived state of a subscription group. It is rebuilt
// on every query and never persisted.
type GroupStatus struct {
	GroupID string         `json:"group_id"`
	Members []MemberStatus `json:"members"`
}

// Member returns the status of productID within the group.
func (g GroupStatus) Member(productID string) (MemberStatus, bool) {
	for _, m := range g.Members {
		if m.ProductID == productID {
			return m, true
		}
	}
	return MemberStatus{}, false
}

// Highest returns the highest-tier active verified member, if any.
func (g GroupStatus) Highest() (MemberStatus, bool) {
	var best MemberStatus
	found := false
	for _, m := range g.Members {
		if !m.Active || !m.Verified {
			continue
		}
		if !found || outranks(m.Level, best.Level) {
			best, found = m, true
		}
	}
	return best, found
}

// outranks reports whether tier level a is more valuable than level b.
// Lower numeric levels are higher tiers.
func outranks(a, b int) bool {
	return a < b
}

// IsHighestActive reports whether no other active, verified member of the
// group outranks productID. With no competing active member the answer is
// true. A productID outside the group has no rank, so any active, verified
// member counts as outranking it; callers check membership separately.
func IsHighestActive(productID string, group GroupStatus) bool {
	target, member := group.Member(productID)
	for _, m := range group.Members {
		if m.ProductID == productID || !m.Active || !m.Verified {
			continue
		}
		if !member || outranks(m.Level, target.Level) {
			return false
		}
	}
	return true
}
