package config

import "github.com/brettbedarf/memfs/internal/util"

// CLI verbosity values accepted by [ConfigOverride.LogLvl]. Higher is chattier.
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// VerboseToLogLevel converts a CLI verbosity into a util.LogLevel.
// Values outside [ErrorVerbose, TraceVerbose] are clamped.
func VerboseToLogLevel(verbose int) util.LogLevel {
	verbose = max(ErrorVerbose, min(verbose, TraceVerbose))
	lvls := [...]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[verbose-1]
}
