package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateByGroup(t *testing.T) {
	members := []GroupMember{
		{Group: "CA", Value: 1000},
		{Group: "CA", Value: 500},
		{Group: "TX", Value: 750},
		{Group: "TX", Value: 0},
	}

	values, counts := aggregateByGroup(members)

	assert.Equal(t, 1500.0, values["CA"])
	assert.Equal(t, 750.0, values["TX"])
	assert.Equal(t, 2, counts["CA"])
	assert.Equal(t, 1, counts["TX"], "zero-valued members are not counted")
}

func TestAggregateByGroup_UnassignedMember(t *testing.T) {
	values, counts := aggregateByGroup([]GroupMember{
		{Group: "CA", Value: 1000},
		{Value: 500},
	})

	assert.Equal(t, 1000.0, values["CA"])
	assert.Equal(t, 500.0, values[OtherGroup])
	assert.Equal(t, 1, counts[OtherGroup])
}

func TestCalculateGroupAllocation(t *testing.T) {
	members := []GroupMember{
		{Group: "TX", Value: 3000},
		{Group: "CA", Value: 4000},
		{Group: "NY", Value: 2000},
		{Group: "CA", Value: 1000},
	}

	allocs := CalculateGroupAllocation(members, 10000)

	require.Len(t, allocs, 3)
	assert.Equal(t, []string{"CA", "NY", "TX"}, []string{allocs[0].Name, allocs[1].Name, allocs[2].Name})
	assert.Equal(t, GroupAllocation{Name: "CA", Institutions: 2, Allocated: 5000, Share: 0.5}, allocs[0])
	assert.Equal(t, 0.2, allocs[1].Share)
	assert.Equal(t, 0.3, allocs[2].Share)
}

func TestCalculateGroupAllocation_ZeroTotal(t *testing.T) {
	allocs := CalculateGroupAllocation([]GroupMember{{Group: "CA"}}, 0)

	require.Len(t, allocs, 1)
	assert.Zero(t, allocs[0].Share)
	assert.Zero(t, allocs[0].Institutions)
}

func TestCalculateGroupAllocation_Empty(t *testing.T) {
	assert.Empty(t, CalculateGroupAllocation(nil, 100))
}
