package access

import "hrportal/internal/domain/auth"

// Composer maps a role to its ordered menu.
type Composer struct {
	policy *Policy
}

func NewComposer(policy *Policy) *Composer {
	return &Composer{policy: policy}
}

// Entries is total: unknown or empty roles get the baseline menu. The result
// is a fresh slice on every call.
func (c *Composer) Entries(role auth.Role) []NavEntry {
	entries, ok := c.policy.navigation[auth.ParseRole(string(role))]
	if !ok {
		entries = c.policy.baseline
	}
	return append([]NavEntry(nil), entries...)
}
