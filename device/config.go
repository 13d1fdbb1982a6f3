package device

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/command"
	"github.com/vkngwrapper/substrate/memory"
	"github.com/vkngwrapper/substrate/memutils/metadata"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables a Device is created with
type Config struct {
	// WaitTimeout bounds fence waits. A wait that runs longer reports a suspected hang.
	WaitTimeout time.Duration
	// RecycleLimit is the number of idle command streams each pool keeps
	RecycleLimit int
	// HeapSizeLimits caps the bytes allocated from each native memory heap. It is
	// either empty or has one entry per heap; 0 means no cap.
	HeapSizeLimits []int
	// Ranking overrides the ideal memory type ranking. nil selects
	// memory.DefaultIdealRanking.
	Ranking memory.IdealRanking
	// Strategy is the placement strategy heaps sub-allocate with
	Strategy metadata.AllocationStrategy
}

// DefaultConfig returns the configuration used for zero Config fields
func DefaultConfig() Config {
	return Config{
		WaitTimeout:  command.DefaultWaitTimeout,
		RecycleLimit: command.DefaultRecycleLimit,
	}
}

func (c Config) poolOptions() command.PoolOptions {
	return command.PoolOptions{
		WaitTimeout:  c.WaitTimeout,
		RecycleLimit: c.RecycleLimit,
	}
}

func (c Config) allocatorOptions() memory.CreateOptions {
	return memory.CreateOptions{
		Ranking:        c.Ranking,
		HeapSizeLimits: c.HeapSizeLimits,
		Strategy:       c.Strategy,
	}
}

// configDocument is the YAML form of Config
type configDocument struct {
	WaitTimeout    time.Duration       `yaml:"waitTimeout,omitempty"`
	RecycleLimit   int                 `yaml:"recycleLimit,omitempty"`
	HeapSizeLimits []int               `yaml:"heapSizeLimits,omitempty"`
	Strategy       string              `yaml:"strategy,omitempty"`
	Ranking        map[string][]string `yaml:"ranking,omitempty"`
}

// LoadConfig reads a YAML config. Fields missing from the document keep their
// DefaultConfig values. Ranking entries are lists of memory property flag names joined
// by '|', such as "DeviceLocal|HostVisible".
func LoadConfig(r io.Reader) (Config, error) {
	var document configDocument
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	err := decoder.Decode(&document)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to parse device config")
	}

	config := DefaultConfig()
	if document.WaitTimeout < 0 {
		return Config{}, errors.Newf("waitTimeout %s is negative", document.WaitTimeout)
	}
	if document.WaitTimeout > 0 {
		config.WaitTimeout = document.WaitTimeout
	}
	if document.RecycleLimit < 0 {
		return Config{}, errors.Newf("recycleLimit %d is negative", document.RecycleLimit)
	}
	if document.RecycleLimit > 0 {
		config.RecycleLimit = document.RecycleLimit
	}
	config.HeapSizeLimits = document.HeapSizeLimits

	config.Strategy, err = metadata.ParseAllocationStrategy(document.Strategy)
	if err != nil {
		return Config{}, err
	}

	if document.Ranking != nil {
		config.Ranking = make(memory.IdealRanking, len(document.Ranking))
		for usageName, entries := range document.Ranking {
			usage, err := memory.ParseUsageClass(usageName)
			if err != nil {
				return Config{}, err
			}

			flagList := make([]core1_0.MemoryPropertyFlags, 0, len(entries))
			for _, entry := range entries {
				flags, err := ParseMemoryProperties(entry)
				if err != nil {
					return Config{}, errors.Wrapf(err, "ranking for %s", usageName)
				}
				flagList = append(flagList, flags)
			}
			config.Ranking[usage] = flagList
		}
	}

	return config, nil
}

// WriteYAML writes c in the form LoadConfig reads
func (c Config) WriteYAML(w io.Writer) error {
	document := configDocument{
		WaitTimeout:    c.WaitTimeout,
		RecycleLimit:   c.RecycleLimit,
		HeapSizeLimits: c.HeapSizeLimits,
	}
	if c.Strategy != 0 {
		document.Strategy = c.Strategy.String()
	}

	if c.Ranking != nil {
		document.Ranking = make(map[string][]string, len(c.Ranking))
		for usage, flagList := range c.Ranking {
			entries := make([]string, 0, len(flagList))
			for _, flags := range flagList {
				entries = append(entries, FormatMemoryProperties(flags))
			}
			document.Ranking[usage.String()] = entries
		}
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	err := encoder.Encode(&document)
	if err != nil {
		return errors.Wrap(err, "failed to write device config")
	}
	return encoder.Close()
}

var memoryPropertyNames = map[string]core1_0.MemoryPropertyFlags{
	"DeviceLocal":     core1_0.MemoryPropertyDeviceLocal,
	"HostVisible":     core1_0.MemoryPropertyHostVisible,
	"HostCoherent":    core1_0.MemoryPropertyHostCoherent,
	"HostCached":      core1_0.MemoryPropertyHostCached,
	"LazilyAllocated": core1_0.MemoryPropertyLazilyAllocated,
}

// ParseMemoryProperties parses flag names joined by '|'. "None" is the empty set.
func ParseMemoryProperties(value string) (core1_0.MemoryPropertyFlags, error) {
	value = strings.TrimSpace(value)
	if value == "None" {
		return 0, nil
	}

	var flags core1_0.MemoryPropertyFlags
	for _, name := range strings.Split(value, "|") {
		flag, ok := memoryPropertyNames[strings.TrimSpace(name)]
		if !ok {
			return 0, errors.Newf("unknown memory property %q", name)
		}
		flags |= flag
	}
	return flags, nil
}

// FormatMemoryProperties is the inverse of ParseMemoryProperties
func FormatMemoryProperties(flags core1_0.MemoryPropertyFlags) string {
	if flags == 0 {
		return "None"
	}

	names := make([]string, 0, len(memoryPropertyNames))
	for name, flag := range memoryPropertyNames {
		if flags&flag != 0 {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return memoryPropertyNames[names[i]] < memoryPropertyNames[names[j]]
	})
	return strings.Join(names, "|")
}
