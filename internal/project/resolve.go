package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/qmod/internal/failure"
)

const stageConfig = "config"

// Overrides are CLI settings applied on top of a config file.
type Overrides struct {
	Compiler   string
	DriverPath string
}

// Discover lists the project files in root whose name contains match
// (every `qmod*.toml` when match is empty), sorted.
func Discover(root, match string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var found []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ConfigPrefix) || filepath.Ext(name) != ".toml" {
			continue
		}
		if match != "" && !strings.Contains(name, match) {
			continue
		}
		found = append(found, filepath.Join(root, name))
	}
	slices.Sort(found)
	return found, nil
}

// Load parses the config at path and resolves it into a Model.
func Load(path string, ov Overrides) (*Model, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	root := filepath.Dir(path)
	cfg, err := ParseConfigFromFile(path, NewConfigEnv(root))
	if err != nil {
		return nil, failure.New(failure.Config, stageConfig, filepath.Base(path), err)
	}
	m, err := Resolve(cfg, root, path, ov)
	if err != nil {
		return nil, failure.New(failure.Config, stageConfig, filepath.Base(path), err)
	}
	return m, nil
}

// Resolve turns a parsed config into a validated Model rooted at root.
func Resolve(cfg *Config, root, configFile string, ov Overrides) (*Model, error) {
	m := &Model{
		Name:          cfg.Project.Name,
		Root:          root,
		ConfigFile:    configFile,
		OutputDir:     cfg.Build.OutputDir,
		CompilationDB: cfg.Project.CompilationDB == nil || *cfg.Project.CompilationDB,
	}
	if m.Name == "" {
		m.Name = filepath.Base(root)
	}
	if m.OutputDir == "" {
		m.OutputDir = "out"
	}

	if err := resolveCompiler(m, cfg.Compiler, ov); err != nil {
		return nil, err
	}
	if err := resolveModules(m, cfg.Modules); err != nil {
		return nil, err
	}
	if err := resolveTargets(m, cfg.Targets); err != nil {
		return nil, err
	}
	return m, nil
}

func resolveCompiler(m *Model, sec CompilerSection, ov Overrides) error {
	kindName := sec.Kind
	if ov.Compiler != "" {
		kindName = ov.Compiler
	}
	if kindName == "" {
		return errors.New("[compiler] kind is required")
	}
	kind, err := ParseCompilerKind(kindName)
	if err != nil {
		return err
	}
	std, err := ParseStandard(sec.Standard)
	if err != nil {
		return err
	}

	c := Compiler{
		Kind:       kind,
		DriverPath: sec.DriverPath,
		Standard:   std,
		StdLib:     StdLib(sec.StdLib),
		ImportStd:  sec.ImportStd,
		ExtraArgs:  sec.ExtraArgs,
	}
	if ov.DriverPath != "" {
		c.DriverPath = ov.DriverPath
	}

	switch c.StdLib {
	case StdLibDefault, StdLibLibCxx, StdLibLibStdCxx:
	default:
		return fmt.Errorf("unknown std_lib %q", c.StdLib)
	}
	if c.StdLib != StdLibDefault && kind != Clang {
		return fmt.Errorf("std_lib is only meaningful for clang, not %s", kind)
	}
	if c.ImportStd && kind == GCC {
		return errors.New("import_std is not supported with gcc")
	}

	m.Compiler = c
	return nil
}

func (m *Model) checkUnit(path string) (File, error) {
	f := NewFile(path)
	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := os.Stat(m.Abs(f.Path())); err != nil {
		return f, fmt.Errorf("translation unit %s: %w", path, err)
	}
	return f, nil
}

func resolveModules(m *Model, sec ModulesSection) error {
	names := make(map[string]string)

	for _, entry := range sec.Interfaces {
		f, err := m.checkUnit(filepath.Join(sec.BaseIfcsDir, entry.File))
		if err != nil {
			return err
		}
		ifc := ModuleInterface{
			File:         f,
			ModuleName:   entry.ModuleName,
			Dependencies: slices.Clone(entry.Dependencies),
		}
		if entry.Partition != nil {
			ifc.Partition = &Partition{
				Module:   entry.Partition.Module,
				Name:     entry.Partition.PartitionName,
				Internal: entry.Partition.IsInternal,
			}
			if ifc.Partition.Module == "" && ifc.ModuleName == "" {
				return fmt.Errorf("partition %s does not name its module", f.Path())
			}
		}
		name := ifc.Name()
		if prev, dup := names[name]; dup {
			return fmt.Errorf("module %q is exported by both %s and %s", name, prev, f.Path())
		}
		names[name] = f.Path()
		m.Modules.Interfaces = append(m.Modules.Interfaces, ifc)
	}

	for _, entry := range sec.Implementations {
		f, err := m.checkUnit(filepath.Join(sec.BaseImplsDir, entry.File))
		if err != nil {
			return err
		}
		deps := slices.Clone(entry.Dependencies)
		if len(deps) == 0 {
			deps = []string{f.Stem}
		}
		m.Modules.Implementations = append(m.Modules.Implementations, ModuleImplementation{File: f, Dependencies: deps})
	}

	for _, h := range sec.SysModules {
		hf := HeaderFile{Header: h}
		if err := hf.Validate(); err != nil {
			return fmt.Errorf("sys_modules: %w", err)
		}
		m.Modules.SystemModules = append(m.Modules.SystemModules, hf)
	}
	m.Modules.ExtraArgs = sec.ExtraArgs
	return nil
}

func resolveTargets(m *Model, targets map[string]TargetSection) error {
	if len(targets) == 0 {
		return errors.New("no [targets] declared")
	}
	for name, sec := range targets {
		kind := TargetKind(sec.Kind)
		switch kind {
		case "":
			kind = Executable
		case Executable, Test:
		default:
			return fmt.Errorf("target %q: unknown kind %q", name, sec.Kind)
		}

		paths, err := collectFiles(m.Root, sec.Sources)
		if err != nil {
			return fmt.Errorf("target %q: %w", name, err)
		}
		if len(paths) == 0 {
			return fmt.Errorf("target %q: sources matched no files", name)
		}

		t := Target{
			Name:      name,
			Kind:      kind,
			Imports:   slices.Clone(sec.Imports),
			ExtraArgs: sec.ExtraArgs,
			LinkArgs:  sec.LinkArgs,
		}
		for _, p := range paths {
			f, err := m.checkUnit(p)
			if err != nil {
				return fmt.Errorf("target %q: %w", name, err)
			}
			t.Sources = append(t.Sources, SourceFile{File: f, Target: name, Dependencies: t.Imports})
		}
		m.Targets = append(m.Targets, t)
	}
	slices.SortFunc(m.Targets, func(a, b Target) int { return strings.Compare(a.Name, b.Name) })
	return nil
}

// collectFiles expands glob patterns relative to root into a sorted,
// de-duplicated list of root-relative file paths.
func collectFiles(root string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	fsys := os.DirFS(root)

	for _, pat := range patterns {
		pat = filepath.ToSlash(pat)
		if filepath.IsAbs(pat) {
			if _, ok := seen[pat]; !ok {
				seen[pat] = struct{}{}
				files = append(files, filepath.Clean(pat))
			}
			continue
		}
		matches, err := doublestar.Glob(fsys, pat, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("while globbing %s: %w", pat, err)
		}
		slices.Sort(matches)
		for _, match := range matches {
			p := filepath.FromSlash(match)
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}
	return files, nil
}
