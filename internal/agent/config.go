package agent

import "time"

// Default values for Config.
const (
	DefaultMaxIterations = 10
	DefaultLoopThreshold = 3
	DefaultEngineTimeout = 2 * time.Minute
	DefaultThreadID      = "session_v3"
)

// Config controls how the controller drives the reasoning engine.
type Config struct {
	// MaxIterations is the maximum number of engine drives per turn.
	MaxIterations int

	// LoopThreshold is how many times the same tool call (name + args)
	// can repeat within a turn before the turn is considered stuck.
	LoopThreshold int

	// EngineTimeout bounds a single engine call. Operator decisions are
	// never subject to a timeout.
	EngineTimeout time.Duration

	// SystemPrompt is sent ahead of the history on every engine call.
	// It is never stored in the session.
	SystemPrompt string
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.LoopThreshold <= 0 {
		c.LoopThreshold = DefaultLoopThreshold
	}
	if c.EngineTimeout <= 0 {
		c.EngineTimeout = DefaultEngineTimeout
	}
	return c
}
