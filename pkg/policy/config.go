package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Defaults for the baseline rule set.
const (
	DefaultRestrictedPathPrefix   = "/admin"
	DefaultBusinessHoursStart     = 9
	DefaultBusinessHoursEnd       = 17
	DefaultProductionEnvironment  = "production"
	DefaultProductionAccessHeader = "x-production-access"
	DefaultProductionAccessValue  = "true"
	DefaultBotSubstring           = "bot"
)

// HourWindow is an inclusive-exclusive range of wall-clock hours.
type HourWindow struct {
	Start int
	End   int
}

// Contains reports whether hour falls in [Start, End).
func (w HourWindow) Contains(hour int) bool {
	return hour >= w.Start && hour < w.End
}

// String renders the window for humans, e.g. "9 AM - 5 PM".
func (w HourWindow) String() string {
	return formatHour(w.Start) + " - " + formatHour(w.End)
}

func formatHour(hour int) string {
	suffix := "AM"
	if hour%24 >= 12 {
		suffix = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d %s", h, suffix)
}

// Config parameterizes the baseline rules. It is a value: build it once at startup and
// hand it to NewBaselineChain, which copies what it needs.
type Config struct {
	RestrictedPathPrefix   string
	BusinessHours          HourWindow
	ProductionEnvironment  string
	ProductionAccessHeader string
	ProductionAccessValue  string
	BotSubstrings          []string
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		RestrictedPathPrefix:   DefaultRestrictedPathPrefix,
		BusinessHours:          HourWindow{Start: DefaultBusinessHoursStart, End: DefaultBusinessHoursEnd},
		ProductionEnvironment:  DefaultProductionEnvironment,
		ProductionAccessHeader: DefaultProductionAccessHeader,
		ProductionAccessValue:  DefaultProductionAccessValue,
		BotSubstrings:          []string{DefaultBotSubstring},
	}
}

// Validate rejects configurations the pipeline must not start with.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.RestrictedPathPrefix) == "" {
		errs = append(errs, errors.New("restricted path prefix must not be empty"))
	}
	if c.BusinessHours.Start < 0 || c.BusinessHours.Start > 24 || c.BusinessHours.End < 0 || c.BusinessHours.End > 24 {
		errs = append(errs, fmt.Errorf("business hours must be within 0-24, got %d-%d", c.BusinessHours.Start, c.BusinessHours.End))
	} else if c.BusinessHours.Start >= c.BusinessHours.End {
		errs = append(errs, fmt.Errorf("business hours start %d must be before end %d", c.BusinessHours.Start, c.BusinessHours.End))
	}
	if strings.TrimSpace(c.ProductionEnvironment) == "" {
		errs = append(errs, errors.New("production environment must not be empty"))
	}
	if strings.TrimSpace(c.ProductionAccessHeader) == "" {
		errs = append(errs, errors.New("production access header must not be empty"))
	}
	if len(c.BotSubstrings) == 0 {
		errs = append(errs, errors.New("at least one bot substring is required"))
	}
	for i, s := range c.BotSubstrings {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, fmt.Errorf("bot substring %d must not be empty", i))
		}
	}

	return errors.Join(errs...)
}

// normalized returns a deep copy with header names and bot substrings lower-cased.
func (c Config) normalized() Config {
	out := c
	out.ProductionAccessHeader = strings.ToLower(strings.TrimSpace(c.ProductionAccessHeader))
	out.BotSubstrings = make([]string, 0, len(c.BotSubstrings))
	for _, s := range c.BotSubstrings {
		out.BotSubstrings = append(out.BotSubstrings, strings.ToLower(s))
	}
	return out
}
