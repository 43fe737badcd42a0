package plan

import (
	"encoding/json"
	"sort"
)

// CompletionSet accumulates the sheet ids that reported one stage done.
// Membership is idempotent, which is what makes at-least-once delivery safe:
// re-adding a sheet never changes the size the phase policy compares against.
type CompletionSet struct {
	members map[string]struct{}
}

// NewCompletionSet returns an empty set.
func NewCompletionSet() CompletionSet {
	return CompletionSet{members: make(map[string]struct{})}
}

// Add records a sheet id and returns the resulting size.
func (c *CompletionSet) Add(sheetID string) int {
	if c.members == nil {
		c.members = make(map[string]struct{})
	}
	c.members[sheetID] = struct{}{}
	return len(c.members)
}

// Has reports whether the sheet id is already recorded.
func (c CompletionSet) Has(sheetID string) bool {
	_, ok := c.members[sheetID]
	return ok
}

// Size returns the number of recorded sheet ids.
func (c CompletionSet) Size() int {
	return len(c.members)
}

// Members returns the recorded sheet ids in sorted order.
func (c CompletionSet) Members() []string {
	out := make([]string, 0, len(c.members))
	for id := range c.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the set.
func (c CompletionSet) Clone() CompletionSet {
	clone := CompletionSet{members: make(map[string]struct{}, len(c.members))}
	for id := range c.members {
		clone.members[id] = struct{}{}
	}
	return clone
}

// MarshalJSON serializes the set as a sorted array of sheet ids.
func (c CompletionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Members())
}

// UnmarshalJSON restores the set from an array of sheet ids.
func (c *CompletionSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	c.members = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c.members[id] = struct{}{}
	}
	return nil
}
