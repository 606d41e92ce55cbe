package domain

import (
	"slices"
	"sort"
)

// Decision is the verdict of one policy evaluation together with the header mutations
// the gateway applies when the request is allowed.
type Decision struct {
	Allowed bool
	Reason  string
	// Rule names the rule that produced the outcome. It is diagnostic only.
	Rule            string
	HeadersToSet    map[string]string
	HeadersToRemove []string
}

// SetHeaderNames returns the keys of HeadersToSet in sorted order.
func (d Decision) SetHeaderNames() []string {
	names := make([]string, 0, len(d.HeadersToSet))
	for name := range d.HeadersToSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Removes reports whether the decision strips the named header.
func (d Decision) Removes(name string) bool {
	return slices.Contains(d.HeadersToRemove, name)
}
