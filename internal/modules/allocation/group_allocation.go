package allocation

import (
	"sort"

	"github.com/aristath/aidalloc/pkg/formulas"
)

// OtherGroup collects members without a group name.
const OtherGroup = "OTHER"

// GroupMember is one allocation tagged with the group it rolls up into.
type GroupMember struct {
	Group string
	Value float64
}

// GroupAllocation represents allocation for a single group
type GroupAllocation struct {
	Name         string  `json:"name"`
	Institutions int     `json:"institutions"`
	Allocated    float64 `json:"allocated"`
	Share        float64 `json:"share"`
}

// CalculateGroupAllocation aggregates member values by group. Share is the
// group's fraction of total; members with an empty group count as OTHER.
func CalculateGroupAllocation(members []GroupMember, total float64) []GroupAllocation {
	values, counts := aggregateByGroup(members)
	return buildGroupAllocations(values, counts, total)
}

// aggregateByGroup sums member values and counts members with a positive value.
func aggregateByGroup(members []GroupMember) (map[string]float64, map[string]int) {
	values := make(map[string]float64)
	counts := make(map[string]int)

	for _, m := range members {
		group := m.Group
		if group == "" {
			group = OtherGroup
		}
		values[group] += m.Value
		if m.Value > 0 {
			counts[group]++
		}
	}

	return values, counts
}

// buildGroupAllocations creates GroupAllocation structs from group values
func buildGroupAllocations(values map[string]float64, counts map[string]int, total float64) []GroupAllocation {
	allocations := make([]GroupAllocation, 0, len(values))
	for name, value := range values {
		var share float64
		if total > 0 {
			share = value / total
		}

		allocations = append(allocations, GroupAllocation{
			Name:         name,
			Institutions: counts[name],
			Allocated:    formulas.Round(value, 2),
			Share:        formulas.Round(share, 4),
		})
	}

	// Sort by name for consistent output
	sort.Slice(allocations, func(i, j int) bool {
		return allocations[i].Name < allocations[j].Name
	})

	return allocations
}
