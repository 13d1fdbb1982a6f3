package memory

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
)

var flagCombinations = []core1_0.MemoryPropertyFlags{
	deviceLocal,
	hostVisible | hostCoherent,
	hostVisible | hostCached,
	hostVisible | hostCoherent | hostCached,
	deviceLocal | hostVisible | hostCoherent,
	deviceLocal | hostVisible | hostCoherent | hostCached,
	deviceLocal | core1_0.MemoryPropertyLazilyAllocated,
	0,
}

func randomProperties(rng *rand.Rand) core1_0.PhysicalDeviceMemoryProperties {
	props := core1_0.PhysicalDeviceMemoryProperties{
		MemoryHeaps: []core1_0.MemoryHeap{
			{Size: 1 << 30, Flags: core1_0.MemoryHeapDeviceLocal},
			{Size: 1 << 28},
		},
	}

	typeCount := 1 + rng.Intn(12)
	for i := 0; i < typeCount; i++ {
		flags := flagCombinations[rng.Intn(len(flagCombinations))]
		heapIndex := 1
		if flags&deviceLocal != 0 {
			heapIndex = 0
		}
		props.MemoryTypes = append(props.MemoryTypes, core1_0.MemoryType{PropertyFlags: flags, HeapIndex: heapIndex})
	}
	return props
}

func TestRankTypesIsOrderedSubsequenceOfIdeal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ideal := DefaultIdealRanking()

	for iteration := 0; iteration < 200; iteration++ {
		props := randomProperties(rng)
		selector, err := NewTypeSelector(props, ideal)
		require.NoError(t, err)

		for usage := UsageStatic; usage < usageClassCount; usage++ {
			ranked := selector.RankTypes(usage)

			lastIdealIndex := -1
			seen := map[int]bool{}
			for _, typeIndex := range ranked {
				require.GreaterOrEqual(t, typeIndex, 0)
				require.Less(t, typeIndex, len(props.MemoryTypes))
				require.False(t, seen[typeIndex], "type %d ranked twice", typeIndex)
				seen[typeIndex] = true

				idealIndex := -1
				for i, flags := range ideal[usage] {
					if flags == props.MemoryTypes[typeIndex].PropertyFlags {
						idealIndex = i
						break
					}
				}
				require.NotEqual(t, -1, idealIndex, "type %d has flags outside the ideal list", typeIndex)
				require.GreaterOrEqual(t, idealIndex, lastIdealIndex)
				lastIdealIndex = idealIndex
			}

			// Nothing supported is dropped
			for typeIndex, memType := range props.MemoryTypes {
				for _, flags := range ideal[usage] {
					if flags == memType.PropertyFlags {
						require.True(t, seen[typeIndex], "type %d with flags %s was dropped for %s", typeIndex, flags, usage)
					}
				}
			}
		}
	}
}

func TestRankTypesExactMatchInDeviceOrder(t *testing.T) {
	props := core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: hostVisible | hostCoherent, HeapIndex: 1},
			{PropertyFlags: deviceLocal, HeapIndex: 0},
			{PropertyFlags: deviceLocal | hostVisible | hostCoherent, HeapIndex: 0},
			{PropertyFlags: deviceLocal, HeapIndex: 0},
		},
		MemoryHeaps: []core1_0.MemoryHeap{{Size: 1 << 30}, {Size: 1 << 28}},
	}

	selector, err := NewTypeSelector(props, IdealRanking{
		UsageStatic:   {deviceLocal, hostVisible | hostCoherent},
		UsageStreamed: {deviceLocal | hostVisible | hostCoherent, deviceLocal | hostVisible | hostCoherent},
	})
	require.NoError(t, err)

	require.Equal(t, []int{1, 3, 0}, selector.RankTypes(UsageStatic))
	// Duplicate ideal entries do not duplicate types, and superset flags do not match
	require.Equal(t, []int{2}, selector.RankTypes(UsageStreamed))
	require.Empty(t, selector.RankTypes(UsageImmediate))
	require.Empty(t, selector.LazyTypes())
}

func TestRankTypesReturnsCopy(t *testing.T) {
	props := core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{{PropertyFlags: deviceLocal}},
		MemoryHeaps: []core1_0.MemoryHeap{{Size: 1 << 30}},
	}
	selector, err := NewTypeSelector(props, DefaultIdealRanking())
	require.NoError(t, err)

	ranked := selector.RankTypes(UsageStatic)
	ranked[0] = 99
	require.Equal(t, []int{0}, selector.RankTypes(UsageStatic))
}

func TestNewTypeSelectorRejectsBadInput(t *testing.T) {
	testCases := []struct {
		name  string
		props core1_0.PhysicalDeviceMemoryProperties
		ideal IdealRanking
	}{
		{
			name:  "NoTypes",
			props: core1_0.PhysicalDeviceMemoryProperties{MemoryHeaps: []core1_0.MemoryHeap{{Size: 1}}},
			ideal: DefaultIdealRanking(),
		},
		{
			name: "BadHeapIndex",
			props: core1_0.PhysicalDeviceMemoryProperties{
				MemoryTypes: []core1_0.MemoryType{{PropertyFlags: deviceLocal, HeapIndex: 3}},
				MemoryHeaps: []core1_0.MemoryHeap{{Size: 1}},
			},
			ideal: DefaultIdealRanking(),
		},
		{
			name: "UnknownUsage",
			props: core1_0.PhysicalDeviceMemoryProperties{
				MemoryTypes: []core1_0.MemoryType{{PropertyFlags: deviceLocal}},
				MemoryHeaps: []core1_0.MemoryHeap{{Size: 1}},
			},
			ideal: IdealRanking{UsageClass(12): {deviceLocal}},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := NewTypeSelector(testCase.props, testCase.ideal)
			require.Error(t, err)
		})
	}
}

func TestParseUsageClass(t *testing.T) {
	for usage := UsageStatic; usage < usageClassCount; usage++ {
		parsed, err := ParseUsageClass(usage.String())
		require.NoError(t, err)
		require.Equal(t, usage, parsed)
	}

	_, err := ParseUsageClass("Forever")
	require.Error(t, err)
}
