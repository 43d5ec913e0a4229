package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Helper functions shared by every Load* function in this package.  Optional
// variables fall back to a default; required ones are collected by loader.

func envStr(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

// loader accumulates problems with required variables so that Load can
// report all of them at once instead of stopping at the first.
type loader struct {
	errs []error
}

// must retrieves the value of a required environment variable.  An unset or
// empty variable is recorded as an error and "" is returned.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.errs = append(l.errs, fmt.Errorf("missing required env var: %s", key))
		return ""
	}
	return strings.TrimSpace(v)
}

// intOr is like envInt but records malformed values instead of silently
// using the default.
func (l *loader) intOr(key string, d int) int {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid int for %s: %q", key, v))
		return d
	}
	return n
}

// durOr records malformed durations the same way intOr does.
func (l *loader) durOr(key string, d time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid duration for %s: %q", key, v))
		return d
	}
	return dur
}

func (l *loader) fail(format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf(format, args...))
}
