package engine

import (
	"maps"
	"time"

	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/rules"
)

// Default tuning values.
const (
	DefaultSimultaneousInputWindow = 2000 * time.Millisecond
	DefaultMaxInputBuffer          = 10
	DefaultDebounce                = 500 * time.Millisecond

	// ChannelRingSize bounds each channel's recent-input history.
	ChannelRingSize = 5
)

// Config holds the engine's tuning parameters.
type Config struct {
	// SimultaneousInputWindow is how close in time inputs must arrive to be
	// fusion candidates. Inputs older than twice the window are pruned.
	SimultaneousInputWindow time.Duration

	// MaxInputBuffer caps the global fusion buffer; oldest entries go first.
	MaxInputBuffer int

	// EnableConflictResolution is informational. ResolveConflict is always
	// available.
	EnableConflictResolution bool

	// DefaultPriority is the per-type priority used when an input has none.
	// Lower wins.
	DefaultPriority map[ir.InputType]int

	// Rules is the initial rule list, in evaluation order.
	Rules []rules.Rule
}

// DefaultPriorities returns the stock per-type priority table.
func DefaultPriorities() map[ir.InputType]int {
	return map[ir.InputType]int{
		ir.InputVoice:   1,
		ir.InputText:    2,
		ir.InputCamera:  2,
		ir.InputGesture: 3,
		ir.InputTouch:   4,
		ir.InputSensor:  5,
	}
}

// DefaultConfig returns the stock configuration with no rules installed.
// Callers typically add rules.DefaultRules() separately.
func DefaultConfig() Config {
	return Config{
		SimultaneousInputWindow:  DefaultSimultaneousInputWindow,
		MaxInputBuffer:           DefaultMaxInputBuffer,
		EnableConflictResolution: true,
		DefaultPriority:          DefaultPriorities(),
	}
}

// withDefaults fills fields left at their zero value from DefaultConfig.
// A nil DefaultPriority means the stock table; a non-nil one replaces it.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SimultaneousInputWindow == 0 {
		c.SimultaneousInputWindow = def.SimultaneousInputWindow
	}
	if c.MaxInputBuffer == 0 {
		c.MaxInputBuffer = def.MaxInputBuffer
	}
	if c.DefaultPriority == nil {
		c.DefaultPriority = def.DefaultPriority
	}
	return c
}

// ConfigPatch is a partial configuration update. Nil fields are left
// unchanged. DefaultPriority replaces the whole table when set.
//
// Rules are not patchable; use AddRule and RemoveRule.
type ConfigPatch struct {
	SimultaneousInputWindow  *time.Duration
	MaxInputBuffer           *int
	EnableConflictResolution *bool
	DefaultPriority          map[ir.InputType]int
}

// apply merges p into c. No validation: last write wins.
func (p ConfigPatch) apply(c *Config) {
	if p.SimultaneousInputWindow != nil {
		c.SimultaneousInputWindow = *p.SimultaneousInputWindow
	}
	if p.MaxInputBuffer != nil {
		c.MaxInputBuffer = *p.MaxInputBuffer
	}
	if p.EnableConflictResolution != nil {
		c.EnableConflictResolution = *p.EnableConflictResolution
	}
	if p.DefaultPriority != nil {
		c.DefaultPriority = maps.Clone(p.DefaultPriority)
	}
}
