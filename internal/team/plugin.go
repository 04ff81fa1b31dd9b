// internal/team/plugin.go
//
// Plugin teams are single Go source files evaluated at runtime. The file
// must expose a zero-argument factory (NewTeam by default, or the name given
// after a colon in the spec) returning a map with a "name" string and a
// "move" function. The returned shape is validated before anything depends
// on it; the rest of the system only ever sees the Team interface.

package team

import (
	"encoding/json"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// DefaultFactory is the factory symbol looked up when the spec names none.
const DefaultFactory = "NewTeam"

// PluginMover is the move-function signature a plugin factory must provide
// under the "move" key.
type PluginMover = func(round int, state map[string]any) (string, error)

func checkModuleName(path string) error {
	name := strings.TrimSuffix(filepath.Base(path), ".go")
	if !token.IsIdentifier(name) {
		return fmt.Errorf("module name %q is not a valid identifier", name)
	}
	if token.Lookup(name).IsKeyword() {
		return fmt.Errorf("module name %q is a reserved word", name)
	}
	if strings.HasPrefix(name, "_") {
		return fmt.Errorf("module name %q must not start with an underscore", name)
	}
	return nil
}

// loadPlugin interprets the module at path and builds a Team from its
// factory. A directory path must hold exactly one Go source file.
func loadPlugin(path, factory string) (*Team, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		resolved, err := soleGoFile(path)
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	if err := checkModuleName(path); err != nil {
		return nil, err
	}
	if factory == "" {
		factory = DefaultFactory
	}
	if !token.IsIdentifier(factory) {
		return nil, fmt.Errorf("factory name %q is not a valid identifier", factory)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("interpreter setup: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(factory)
	if err != nil {
		return nil, fmt.Errorf("%s must define %s() (map[string]any, error): %w", path, factory, err)
	}
	raw, err := invokeFactory(fnValue, factory)
	if err != nil {
		return nil, err
	}
	return teamFromFactoryValue(raw)
}

func soleGoFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	var found string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%s holds more than one Go file", dir)
		}
		found = filepath.Join(dir, entry.Name())
	}
	if found == "" {
		return "", fmt.Errorf("%s holds no Go file", dir)
	}
	return found, nil
}

func invokeFactory(value reflect.Value, factory string) (map[string]any, error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("missing %s function", factory)
	}
	if value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", factory)
	}
	if value.Type().NumIn() != 0 {
		return nil, fmt.Errorf("%s must take no arguments", factory)
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return (map[string]any[, error])", factory)
	}
	if len(results) == 2 {
		if err, ok := results[1].Interface().(error); ok && err != nil {
			return nil, fmt.Errorf("%s: %w", factory, err)
		}
	}
	raw, ok := results[0].Interface().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, want map[string]any", factory, results[0].Interface())
	}
	return raw, nil
}

func teamFromFactoryValue(raw map[string]any) (*Team, error) {
	name, ok := raw["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("factory result is missing a %q string", "name")
	}
	moveVal, ok := raw["move"]
	if !ok {
		return nil, fmt.Errorf("factory result is missing a %q function", "move")
	}
	move, ok := moveVal.(PluginMover)
	if !ok {
		return nil, fmt.Errorf("%q has type %T, want func(int, map[string]any) (string, error)", "move", moveVal)
	}
	mover := wrapPluginMover(move)
	return &Team{Name: name, Movers: [2]Mover{mover, mover}}, nil
}

func wrapPluginMover(move PluginMover) Mover {
	return func(round int, state json.RawMessage) (string, error) {
		var decoded map[string]any
		if len(state) > 0 {
			if err := json.Unmarshal(state, &decoded); err != nil {
				return "", fmt.Errorf("team: decode state: %w", err)
			}
		}
		return move(round, decoded)
	}
}
