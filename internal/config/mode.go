package config

import "time"

// Mode is the capability ceiling: whether passes may touch devices
type Mode string

const (
	ModeReport    Mode = "report"    // Diff and report only
	ModeRemediate Mode = "remediate" // + one corrective action per pass
)

// ParseMode converts a string to Mode, defaulting to ModeReport
func ParseMode(s string) Mode {
	switch s {
	case "report":
		return ModeReport
	case "remediate":
		return ModeRemediate
	default:
		return ModeReport
	}
}

// Level returns numeric level for comparison (higher = more capabilities)
func (m Mode) Level() int {
	switch m {
	case ModeReport:
		return 0
	case ModeRemediate:
		return 1
	default:
		return 0
	}
}

// Allows returns true if this mode allows the given mode's capabilities
func (m Mode) Allows(required Mode) bool {
	return m.Level() >= required.Level()
}

// Posture defines how hard passes lean on devices
type Posture string

const (
	PostureCautious   Posture = "cautious"   // Long timeouts, few devices at once
	PostureBalanced   Posture = "balanced"   // Default
	PostureAggressive Posture = "aggressive" // Short timeouts, wide fan-out
)

// ParsePosture converts a string to Posture, defaulting to PostureBalanced
func ParsePosture(s string) Posture {
	switch s {
	case "cautious":
		return PostureCautious
	case "balanced":
		return PostureBalanced
	case "aggressive":
		return PostureAggressive
	default:
		return PostureBalanced
	}
}

// BehaviorProfile defines timing and concurrency settings
type BehaviorProfile struct {
	FetchTimeout        time.Duration `yaml:"fetch_timeout"`
	CommandTimeout      time.Duration `yaml:"command_timeout"`
	PreflightTimeout    time.Duration `yaml:"preflight_timeout"`
	MaxConcurrentPasses int           `yaml:"max_concurrent_passes"`
}

// PostureProfiles maps postures to their default behavior profiles
var PostureProfiles = map[Posture]BehaviorProfile{
	PostureCautious: {
		FetchTimeout:        2 * time.Minute,
		CommandTimeout:      5 * time.Minute,
		PreflightTimeout:    30 * time.Second,
		MaxConcurrentPasses: 1,
	},
	PostureBalanced: {
		FetchTimeout:        time.Minute,
		CommandTimeout:      3 * time.Minute,
		PreflightTimeout:    15 * time.Second,
		MaxConcurrentPasses: 4,
	},
	PostureAggressive: {
		FetchTimeout:        20 * time.Second,
		CommandTimeout:      time.Minute,
		PreflightTimeout:    5 * time.Second,
		MaxConcurrentPasses: 16,
	},
}

// GetProfile returns the behavior profile for a posture
func (p Posture) GetProfile() BehaviorProfile {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
