// Package command holds the generated compiler and linker command lines of
// one run, and the generator that produces them from a project model.
package command

import (
	"path/filepath"
	"slices"

	"github.com/qobs-build/qmod/internal/project"
)

// Status is the build state of one translation unit or link step.
type Status string

const (
	// Pending means the compiler must be invoked this run.
	Pending Status = "pending"
	// Built means the unit was compiled successfully this run.
	Built Status = "built"
	// Cached means the unit was up to date and skipped.
	Cached Status = "cached"
	// Failed means the process could not be spawned or exited non-zero.
	Failed Status = "failed"
)

// UpToDate reports whether a persisted status lets the next run skip the unit.
func (s Status) UpToDate() bool { return s == Built || s == Cached }

// UnitKind is the precedence group a command belongs to.
type UnitKind string

const (
	KindStd            UnitKind = "std"
	KindStdCompat      UnitKind = "std.compat"
	KindSystem         UnitKind = "system"
	KindInterface      UnitKind = "interface"
	KindImplementation UnitKind = "implementation"
	KindSource         UnitKind = "source"
)

// importsModules reports whether units of this kind see the std and system
// module references.
func (k UnitKind) importsModules() bool {
	return k == KindInterface || k == KindImplementation || k == KindSource
}

// SourceCommandLine is the compile command of one translation unit. Args
// holds only the unit specific arguments; the shared ones live in the
// Flyweight of the owning Commands.
type SourceCommandLine struct {
	Directory string   `json:"directory"`
	Filename  string   `json:"filename"`
	Kind      UnitKind `json:"kind"`
	// Module is the module a std, system or interface unit exports.
	Module       string   `json:"module,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	// ImportsAll marks a source whose target declared no imports; it is
	// treated as depending on every module.
	ImportsAll bool     `json:"imports_all,omitempty"`
	Args       []string `json:"args"`
	Status     Status   `json:"status"`
	Byproduct  string   `json:"byproduct"`
	// BMI is the compiled interface importers read, set when it is a
	// separate file from Byproduct (msvc .ifc, gcc gcm.cache).
	BMI string `json:"bmi,omitempty"`
}

// Path is the translation unit's path (a header name for system modules).
func (c *SourceCommandLine) Path() string {
	if c.Directory == "" {
		return c.Filename
	}
	return filepath.Join(c.Directory, c.Filename)
}

// Key identifies a unit across runs. A file compiled by two targets yields
// two commands with different byproducts.
func (c *SourceCommandLine) Key() string {
	return string(c.Kind) + "|" + c.Path() + "|" + c.Byproduct
}

func (c *SourceCommandLine) String() string {
	return string(c.Kind) + " " + c.Path()
}

// DependsOn reports whether the unit imports the named module.
func (c *SourceCommandLine) DependsOn(module string) bool {
	return c.ImportsAll || slices.Contains(c.Dependencies, module)
}

// LinkerCommandLine links a target out of unit byproducts.
type LinkerCommandLine struct {
	Output string `json:"output"`
	// OutputArgs names the output in the dialect's shape: `-o <path>` or `/Fe<path>`.
	OutputArgs []string `json:"output_args"`
	Shared     []string `json:"shared,omitempty"`
	Extra      []string `json:"extra,omitempty"`
	Inputs     []string `json:"inputs"`
	Status     Status   `json:"status"`
}

// Args is the full argument list after the general flags.
func (l *LinkerCommandLine) Args() []string {
	args := make([]string, 0, len(l.OutputArgs)+len(l.Shared)+len(l.Inputs)+len(l.Extra))
	args = append(args, l.OutputArgs...)
	args = append(args, l.Shared...)
	args = append(args, l.Inputs...)
	args = append(args, l.Extra...)
	return args
}

type Target struct {
	Name    string               `json:"name"`
	Kind    project.TargetKind   `json:"kind"`
	Sources []*SourceCommandLine `json:"sources"`
	Linker  LinkerCommandLine    `json:"linker"`
	// NeedsLink is decided per run by the cache and never persisted.
	NeedsLink bool `json:"-"`
}

type Modules struct {
	Std       *SourceCommandLine   `json:"std,omitempty"`
	StdCompat *SourceCommandLine   `json:"std_compat,omitempty"`
	System    []*SourceCommandLine `json:"system,omitempty"`
	// Interfaces are in dependency order.
	Interfaces      []*SourceCommandLine `json:"interfaces,omitempty"`
	Implementations []*SourceCommandLine `json:"implementations,omitempty"`
}

// Commands is everything generated for one run.
type Commands struct {
	Compiler  project.CompilerKind `json:"compiler"`
	Driver    string               `json:"driver"`
	Flyweight Flyweight            `json:"flyweight"`
	Modules   Modules              `json:"modules"`
	Targets   map[string]*Target   `json:"targets"`
}

// TargetNames returns the target names sorted.
func (c *Commands) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Units returns every compile command in precedence order.
func (c *Commands) Units() []*SourceCommandLine {
	var units []*SourceCommandLine
	for _, stage := range c.Stages() {
		units = append(units, stage.Units...)
	}
	return units
}

// ModuleUnits returns the std, system, interface and implementation
// commands, the inputs shared by every target's link.
func (c *Commands) ModuleUnits() []*SourceCommandLine {
	var units []*SourceCommandLine
	if c.Modules.Std != nil {
		units = append(units, c.Modules.Std)
	}
	if c.Modules.StdCompat != nil {
		units = append(units, c.Modules.StdCompat)
	}
	units = append(units, c.Modules.System...)
	units = append(units, c.Modules.Interfaces...)
	units = append(units, c.Modules.Implementations...)
	return units
}

// Lookup indexes the commands by Key.
func (c *Commands) Lookup() map[string]*SourceCommandLine {
	idx := make(map[string]*SourceCommandLine)
	for _, u := range c.Units() {
		idx[u.Key()] = u
	}
	return idx
}

// FullArgs is the complete argument list a unit is compiled with.
func (c *Commands) FullArgs(u *SourceCommandLine) []string {
	fw := &c.Flyweight
	common := fw.Common()
	var refs []string
	if u.Kind.importsModules() {
		refs = fw.References()
	}
	args := make([]string, 0, len(fw.General)+len(common)+len(refs)+1+len(u.Args))
	args = append(args, fw.General...)
	args = append(args, common...)
	args = append(args, refs...)
	args = append(args, fw.CompileOnly())
	args = append(args, u.Args...)
	return args
}

// LinkArgs is the complete argument list of a target's link step.
func (c *Commands) LinkArgs(t *Target) []string {
	return append(slices.Clone(c.Flyweight.General), t.Linker.Args()...)
}
