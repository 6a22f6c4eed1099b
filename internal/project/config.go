package project

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

// ConfigPrefix is the file name prefix of project files, e.g. `qmod.toml`
// or `qmod_msvc.toml`.
const ConfigPrefix = "qmod"

type Config struct {
	Project  ProjectSection           `toml:"project"`
	Compiler CompilerSection          `toml:"compiler"`
	Build    BuildSection             `toml:"build"`
	Modules  ModulesSection           `toml:"modules"`
	Targets  map[string]TargetSection `toml:"targets"`
}

// ProjectSection defines the [project] section
type ProjectSection struct {
	Name    string   `toml:"name"`
	Authors []string `toml:"authors"`
	// CompilationDB writes compile_commands.json; on unless set to false.
	CompilationDB *bool `toml:"compilation_db"`
}

// CompilerSection defines the [compiler(.*)] section
type CompilerSection struct {
	Kind       string   `toml:"kind"`
	DriverPath string   `toml:"driver_path"`
	Standard   string   `toml:"cpp_standard"`
	StdLib     string   `toml:"std_lib"`
	ImportStd  bool     `toml:"import_std"`
	ExtraArgs  []string `toml:"extra_args"`
}

// BuildSection defines the [build(.*)] section
type BuildSection struct {
	OutputDir string `toml:"output_dir"`
}

// ModulesSection defines the [modules(.*)] section
type ModulesSection struct {
	BaseIfcsDir     string                `toml:"base_ifcs_dir"`
	Interfaces      []InterfaceEntry      `toml:"interfaces"`
	BaseImplsDir    string                `toml:"base_impls_dir"`
	Implementations []ImplementationEntry `toml:"implementations"`
	SysModules      []string              `toml:"sys_modules"`
	ExtraArgs       []string              `toml:"extra_args"`
}

type InterfaceEntry struct {
	File         string          `toml:"file"`
	ModuleName   string          `toml:"module_name"`
	Partition    *PartitionEntry `toml:"partition"`
	Dependencies []string        `toml:"dependencies"`
}

type PartitionEntry struct {
	Module        string `toml:"module"`
	PartitionName string `toml:"partition_name"`
	IsInternal    bool   `toml:"is_internal_partition"`
}

type ImplementationEntry struct {
	File         string   `toml:"file"`
	Dependencies []string `toml:"dependencies"`
}

// TargetSection defines one [targets.<name>] section
type TargetSection struct {
	Kind      string   `toml:"kind"`
	Sources   []string `toml:"sources"`
	Imports   []string `toml:"imports"`
	ExtraArgs []string `toml:"extra_args"`
	LinkArgs  []string `toml:"link_args"`
}

// mergeInto overlays src onto dst, two structs of the same type: slices
// are appended, maps merged, booleans ORed and any other non-zero field
// replaces the base value.
func mergeInto(dst, src reflect.Value) {
	for i := range src.NumField() {
		d, s := dst.Field(i), src.Field(i)
		if !d.CanSet() || s.IsZero() {
			continue
		}
		switch d.Kind() {
		case reflect.Slice:
			d.Set(reflect.AppendSlice(d, s))
		case reflect.Map:
			if d.IsNil() {
				d.Set(reflect.MakeMapWithSize(d.Type(), s.Len()))
			}
			iter := s.MapRange()
			for iter.Next() {
				d.SetMapIndex(iter.Key(), iter.Value())
			}
		default:
			d.Set(s)
		}
	}
}

// remarshal converts a generic TOML table into dst.
func remarshal(v any, dst any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	return toml.Unmarshal(b, dst)
}

func decodeSection(raw map[string]any, name string, dst any) error {
	data, ok := raw[name]
	if !ok {
		return nil
	}
	if err := remarshal(data, dst); err != nil {
		return fmt.Errorf("[%s]: %w", name, err)
	}
	return nil
}

// decodeConditionalSection decodes the plain keys of a section, then
// overlays every sub-table whose key is a boolean expression that holds,
// e.g. [compiler."target_os == 'windows'"]. Overlays apply in key order.
func decodeConditionalSection[T any](raw map[string]any, name string, dst *T, env ConfigEnv) error {
	data, ok := raw[name]
	if !ok {
		return nil
	}
	table, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("[%s] must be a table", name)
	}

	base := make(map[string]any, len(table))
	var conditions []string
	for key, val := range table {
		if _, sub := val.(map[string]any); sub && env.isCondition(key) {
			conditions = append(conditions, key)
			continue
		}
		base[key] = val
	}
	if err := remarshal(base, dst); err != nil {
		return fmt.Errorf("[%s]: %w", name, err)
	}

	slices.Sort(conditions)
	for _, cond := range conditions {
		holds, err := env.holds(cond)
		if err != nil {
			return fmt.Errorf("[%s.%q]: %w", name, cond, err)
		}
		if !holds {
			continue
		}
		var overlay T
		if err := remarshal(table[cond], &overlay); err != nil {
			return fmt.Errorf("[%s.%q]: %w", name, cond, err)
		}
		mergeInto(reflect.ValueOf(dst).Elem(), reflect.ValueOf(overlay))
	}
	return nil
}

var templateRe = regexp.MustCompile(`\{\{(.+?)\}\}`)

func (env ConfigEnv) isCondition(key string) bool {
	_, err := expr.Compile(key, expr.Env(env), expr.AsBool())
	return err == nil
}

func (env ConfigEnv) holds(cond string) (bool, error) {
	program, err := expr.Compile(cond, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

// expand replaces every {{ expr }} in s with the value of the expression.
func (env ConfigEnv) expand(s string) (string, error) {
	var firstErr error
	out := templateRe.ReplaceAllStringFunc(s, func(m string) string {
		if firstErr != nil {
			return m
		}
		code := strings.TrimSpace(m[2 : len(m)-2])
		program, err := expr.Compile(code, expr.Env(env))
		if err != nil {
			firstErr = fmt.Errorf("template %q: %w", code, err)
			return m
		}
		v, err := expr.Run(program, env)
		if err != nil {
			firstErr = fmt.Errorf("template %q: %w", code, err)
			return m
		}
		return fmt.Sprint(v)
	})
	return out, firstErr
}

// expandTree expands the templates of every string in a decoded TOML tree,
// in place.
func (env ConfigEnv) expandTree(node any) (any, error) {
	switch v := node.(type) {
	case string:
		return env.expand(v)
	case map[string]any:
		for key, child := range v {
			expanded, err := env.expandTree(child)
			if err != nil {
				return nil, err
			}
			v[key] = expanded
		}
	case []any:
		for i, child := range v {
			expanded, err := env.expandTree(child)
			if err != nil {
				return nil, err
			}
			v[i] = expanded
		}
	}
	return node, nil
}

// ParseConfig decodes a project file, expanding templates before the
// sections are read.
func ParseConfig(r io.Reader, env ConfigEnv) (*Config, error) {
	var raw map[string]any
	if err := toml.NewDecoder(r).Decode(&raw); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}
	if _, err := env.expandTree(raw); err != nil {
		return nil, err
	}

	cfg := new(Config)
	if err := decodeSection(raw, "project", &cfg.Project); err != nil {
		return nil, err
	}
	if err := decodeConditionalSection(raw, "compiler", &cfg.Compiler, env); err != nil {
		return nil, err
	}
	if err := decodeConditionalSection(raw, "build", &cfg.Build, env); err != nil {
		return nil, err
	}
	if err := decodeConditionalSection(raw, "modules", &cfg.Modules, env); err != nil {
		return nil, err
	}
	if err := decodeSection(raw, "targets", &cfg.Targets); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfigFromFile parses a config file from a filepath
func ParseConfigFromFile(path string, env ConfigEnv) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseConfig(bufio.NewReader(f), env)
}

// ConfigEnv is the environment visible to expressions in config files.
type ConfigEnv struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
	basedir    string
}

func NewConfigEnv(basedir string) ConfigEnv {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			environ[k] = v
		}
	}

	return ConfigEnv{
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
		basedir:    basedir,
	}
}

// ReadFile lets expressions inline a file of the project, e.g. a version string.
func (env ConfigEnv) ReadFile(path string) (string, error) {
	fullPath := filepath.Join(env.basedir, path)
	rel, err := filepath.Rel(env.basedir, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside of project directory %q", path, env.basedir)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
