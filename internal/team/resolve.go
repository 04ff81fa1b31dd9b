package team

import (
	"fmt"
	"go/token"
	"math/rand"
	"os"
	"strings"
	"time"
)

// Resolve turns a team specification string into a Resolution. The spec is,
// in order of precedence:
//
//  1. a transport address ("ws://host:port") — a remote competitor will
//     dial in; no local Team exists yet;
//  2. a path to a plugin source file, optionally suffixed with ":Factory";
//  3. one or two comma-separated builtin player identifiers.
//
// Every failure is wrapped in ErrLoad and names the offending spec; nothing
// is retried. rng seeds the builtin players and the "random" pick; a nil rng
// uses a time-seeded source.
func Resolve(spec string, rng *rand.Rand) (Resolution, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return Resolution{}, fmt.Errorf("%w: empty spec", ErrLoad)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if strings.Contains(trimmed, "://") {
		return Resolution{Remote: true, Bind: trimmed}, nil
	}
	if path, factory, ok := pluginSpec(trimmed); ok {
		t, err := loadPlugin(path, factory)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: spec %q: %w", ErrLoad, spec, err)
		}
		if err := ValidateName(t.Name); err != nil {
			return Resolution{}, fmt.Errorf("%w: spec %q: %w", ErrLoad, spec, err)
		}
		return Resolution{Team: t}, nil
	}
	t, err := builtinTeam(trimmed, rng)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: spec %q: %w", ErrLoad, spec, err)
	}
	if err := ValidateName(t.Name); err != nil {
		return Resolution{}, fmt.Errorf("%w: spec %q: %w", ErrLoad, spec, err)
	}
	return Resolution{Team: t}, nil
}

// pluginSpec decides whether the spec names a plugin file and splits off an
// optional ":Factory" suffix.
func pluginSpec(spec string) (path, factory string, ok bool) {
	path = spec
	if idx := strings.LastIndex(spec, ":"); idx > 0 {
		if suffix := spec[idx+1:]; token.IsIdentifier(suffix) {
			path, factory = spec[:idx], suffix
		}
	}
	if strings.HasSuffix(path, ".go") {
		return path, factory, true
	}
	if _, err := os.Stat(path); err == nil {
		return path, factory, true
	}
	return "", "", false
}
