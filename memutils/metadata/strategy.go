package metadata

import "github.com/cockroachdb/errors"

// AllocationStrategy selects how a free range is chosen for a new allocation. If no
// strategy bit is set, a balanced strategy is used.
type AllocationStrategy uint32

const (
	// AllocationStrategyMinMemory chooses the smallest free range that fits, minimizing
	// fragmentation at the expense of allocation time
	AllocationStrategyMinMemory AllocationStrategy = 1 << iota
	// AllocationStrategyMinTime chooses the first suitable free range that is cheap to find
	AllocationStrategyMinTime
	// AllocationStrategyMinOffset chooses the lowest offset available, producing tightly
	// packed blocks
	AllocationStrategyMinOffset
)

var strategyNames = map[AllocationStrategy]string{
	AllocationStrategyMinMemory: "MinMemory",
	AllocationStrategyMinTime:   "MinTime",
	AllocationStrategyMinOffset: "MinOffset",
}

func (s AllocationStrategy) String() string {
	if s == 0 {
		return "Balanced"
	}
	name, ok := strategyNames[s]
	if !ok {
		return "Mixed"
	}
	return name
}

// ParseAllocationStrategy is the inverse of AllocationStrategy.String for single
// strategies and Balanced
func ParseAllocationStrategy(name string) (AllocationStrategy, error) {
	if name == "" || name == "Balanced" {
		return 0, nil
	}
	for strategy, strategyName := range strategyNames {
		if strategyName == name {
			return strategy, nil
		}
	}
	return 0, errors.Newf("unknown allocation strategy %q", name)
}
