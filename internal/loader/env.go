package loader

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ApplyEnv overrides cfg with values from the process environment.
// Unset variables leave the current value untouched.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, nil)
}

func applyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{
		Environment: environ,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseDuration,
			reflect.TypeOf(false):            parseBool,
		},
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// parseDuration accepts a bare integer as milliseconds or a Go duration.
func parseDuration(v string) (interface{}, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

var trueValues = []string{"1", "true", "yes", "y", "on"}

// parseBool treats 1, true, yes, y and on as true and anything else as false.
func parseBool(v string) (interface{}, error) {
	return slices.Contains(trueValues, strings.ToLower(strings.TrimSpace(v))), nil
}
