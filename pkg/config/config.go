package config

import (
	"fmt"
	"strings"

	"github.com/xplshn/awc/pkg/cli"
)

type Feature int

const (
	FeatComments Feature = iota
	FeatVerboseTrace
	FeatStrictTerm
	FeatStrictOutput
	FeatCount
)

type Warning int

const (
	WarnShadow Warning = iota
	WarnUnknownChar
	WarnTrailing
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	WordSize   int
	OutputPath string
}

// DefaultOutput is where the driver writes the generated assembly.
const DefaultOutput = "out.s"

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		WordSize:   4,
		OutputPath: DefaultOutput,
	}

	features := map[Feature]Info{
		FeatComments:     {"comments", true, "Skip `comment ... ;` sequences in the source."},
		FeatVerboseTrace: {"verbose-trace", false, "Record a named derivation trace alongside the production numbers."},
		FeatStrictTerm:   {"strict-term", false, "Make type mismatches in multiplicative terms fail the translation."},
		FeatStrictOutput: {"strict-output", false, "Only write the assembly file when translation succeeded."},
	}

	warnings := map[Warning]Info{
		WarnShadow:      {"shadow", false, "Warn when a declaration hides a name from an enclosing block."},
		WarnUnknownChar: {"unknown-char", true, "Warn about characters the scanner could not classify."},
		WarnTrailing:    {"trailing", true, "Warn about tokens following the final '.'."},
		WarnExtra:       {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// WarningName returns the flag spelling of wt, e.g. "shadow".
func (c *Config) WarningName(wt Warning) string { return c.Warnings[wt].Name }

func (c *Config) applyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		return fmt.Errorf("unrecognized flag '%s'", flag)
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return nil
	}

	if isWarning {
		w, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(w, enable)
		return nil
	}
	f, ok := c.FeatureMap[name]
	if !ok {
		return fmt.Errorf("unknown feature '%s'", name)
	}
	c.SetFeature(f, enable)
	return nil
}

// ProcessDirectiveFlags applies a whitespace separated list such as
// "-Wall -Wno-shadow -Fstrict-term".
func (c *Config) ProcessDirectiveFlags(flagStr string) error {
	for _, flag := range strings.Fields(flagStr) {
		if err := c.applyFlag(flag); err != nil {
			return err
		}
	}
	return nil
}

// SetupFlagGroups registers -W<name>/-Wno-<name> and -F<name>/-Fno-<name>
// for every warning and feature, plus -Wall and -Wno-all.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) {
	warningFlags := make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := info.Enabled, false
		warningFlags[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled,
		}
	}

	featureFlags := make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := info.Enabled, false
		featureFlags[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled,
		}
	}

	var wall, wnoall bool
	fs.Bool(&wall, "Wall", "", false, "Enable all warnings.")
	fs.Bool(&wnoall, "Wno-all", "", false, "Disable all warnings.")
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning", "Available Warnings:", warningFlags)
	fs.AddFlagGroup("Feature Flags", "Enable or disable translation features", "feature", "Available Features:", featureFlags)
}

// ProcessFlags applies the flags reported by visitFlag. -Wall and -Wno-all
// go first so that a specific -W<name> or -Wno-<name> overrides them.
// Names that are not warning or feature flags are ignored.
func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) error {
	var err error
	apply := func(name string) {
		if err == nil {
			err = c.applyFlag("-" + name)
		}
	}
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" {
			apply(name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" && c.isFlagName(name) {
			apply(name)
		}
	})
	return err
}

// ApplyFlags applies the warning and feature flags set on fs by its last
// Parse. A flag explicitly given a false value (-Wshadow=false) is skipped.
func (c *Config) ApplyFlags(fs *cli.FlagSet) error {
	return c.ProcessFlags(func(fn func(name string)) {
		fs.Visit(func(f *cli.Flag) {
			if f.Value.String() == "true" {
				fn(f.Name)
			}
		})
	})
}

func (c *Config) isFlagName(name string) bool {
	switch {
	case strings.HasPrefix(name, "W"):
		_, ok := c.WarningMap[strings.TrimPrefix(strings.TrimPrefix(name, "W"), "no-")]
		return ok
	case strings.HasPrefix(name, "F"):
		_, ok := c.FeatureMap[strings.TrimPrefix(strings.TrimPrefix(name, "F"), "no-")]
		return ok
	}
	return false
}
