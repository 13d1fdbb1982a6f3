package memutils_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/substrate/memutils"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutils.CheckPow2(1, "one"))
	require.NoError(t, memutils.CheckPow2(uint(256), "alignment"))
	require.ErrorIs(t, memutils.CheckPow2(0, "zero"), memutils.PowerOfTwoError)
	require.ErrorIs(t, memutils.CheckPow2(24, "alignment"), memutils.PowerOfTwoError)
}

func TestAlign(t *testing.T) {
	require.Equal(t, 0, memutils.AlignUp(0, 256))
	require.Equal(t, 256, memutils.AlignUp(1, 256))
	require.Equal(t, 256, memutils.AlignUp(256, 256))
	require.Equal(t, 512, memutils.AlignUp(257, 256))
	require.Equal(t, 256, memutils.AlignDown(511, 256))
	require.True(t, memutils.IsAligned(1<<20, 4096))
	require.False(t, memutils.IsAligned(100, 64))
}

func TestDetailedStatistics(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	require.Equal(t, math.MaxInt, stats.AllocationSizeMin)

	stats.BlockCount = 1
	stats.BlockBytes = 1000
	stats.AddAllocation(100)
	stats.AddAllocation(300)
	stats.AddUnusedRange(600)

	var total memutils.DetailedStatistics
	total.Clear()
	total.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:      1,
			BlockBytes:      1000,
			AllocationCount: 2,
			AllocationBytes: 400,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  100,
		AllocationSizeMax:  300,
		UnusedRangeSizeMin: 600,
		UnusedRangeSizeMax: 600,
	}, total)
	require.Equal(t, 600, total.UnusedBytes())
}
