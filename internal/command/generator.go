package command

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"

	"github.com/qobs-build/qmod/internal/failure"
	"github.com/qobs-build/qmod/internal/project"
)

const stageGenerate = "generate"

var errStdDisabled = errors.New("the standard library modules are only available with import_std = true")

// Generate produces the command lines of every unit and target in the
// model, respecting module build order. The returned commands are all
// pending; the cache decides what can be skipped.
func Generate(m *project.Model, tc Toolchain) (*Commands, error) {
	g := &generator{
		model: m,
		tc:    tc,
		args:  newArgsBuilder(m, tc),
		cmds: &Commands{
			Compiler:  m.Compiler.Kind,
			Driver:    tc.Driver,
			Flyweight: NewFlyweight(m, tc),
			Targets:   make(map[string]*Target, len(m.Targets)),
		},
		ifcs:    make(map[string]*project.ModuleInterface, len(m.Modules.Interfaces)),
		headers: make(map[string]bool, len(m.Modules.SystemModules)),
	}
	for i := range m.Modules.Interfaces {
		ifc := &m.Modules.Interfaces[i]
		g.ifcs[ifc.Name()] = ifc
	}
	for _, h := range m.Modules.SystemModules {
		g.headers[h.Header] = true
	}

	steps := []func() error{g.stdModules, g.systemModules, g.interfaces, g.implementations, g.targets}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return g.cmds, nil
}

type generator struct {
	model   *project.Model
	tc      Toolchain
	args    argsBuilder
	cmds    *Commands
	ifcs    map[string]*project.ModuleInterface
	headers map[string]bool
}

func unit(kind UnitKind, tu project.TranslationUnit) *SourceCommandLine {
	u := &SourceCommandLine{Filename: tu.Filename(), Kind: kind, Status: Pending}
	if kind != KindSystem {
		u.Directory = filepath.Dir(tu.Path())
	}
	return u
}

func (g *generator) stdModules() error {
	c := g.model.Compiler
	if !c.ImportStd {
		return nil
	}
	if c.Kind == project.Clang && g.tc.Major < 18 {
		return failure.Newf(failure.Generation, stageGenerate, project.StdModule,
			"import_std needs clang 18 or newer, found %d", g.tc.Major)
	}
	if g.tc.StdSource == "" || g.tc.StdCompatSource == "" {
		return failure.Newf(failure.Generation, stageGenerate, project.StdModule,
			"%s did not report where its std module sources are", g.tc.Driver)
	}

	libs := []struct {
		kind UnitKind
		lib  project.ModularStdLib
	}{
		{KindStd, project.ModularStdLib{File: project.NewFile(g.tc.StdSource), Name: project.StdModule}},
		{KindStdCompat, project.ModularStdLib{File: project.NewFile(g.tc.StdCompatSource), Name: project.StdCompatModule}},
	}
	units := make([]*SourceCommandLine, len(libs))
	for i, l := range libs {
		if err := l.lib.Validate(); err != nil {
			return failure.New(failure.Generation, stageGenerate, l.lib.Path(), err)
		}
		args, byproduct, err := g.args.std(l.lib)
		if err != nil {
			return failure.New(failure.Generation, stageGenerate, l.lib.Name, err)
		}
		u := unit(l.kind, l.lib)
		u.Module = l.lib.Name
		u.Args, u.Byproduct = args, byproduct
		u.BMI = g.args.importedFile(l.kind, l.lib.Name)
		units[i] = u
	}
	units[1].Dependencies = []string{project.StdModule}

	g.cmds.Modules.Std, g.cmds.Modules.StdCompat = units[0], units[1]
	return nil
}

func (g *generator) systemModules() error {
	for _, h := range g.model.Modules.SystemModules {
		u := unit(KindSystem, h)
		u.Module = h.Header
		u.Args, u.Byproduct = g.args.system(h.Header)
		g.cmds.Modules.System = append(g.cmds.Modules.System, u)
	}
	return nil
}

// resolve expands `:part` shorthands against primary and checks that every
// dependency names something this run builds.
func (g *generator) resolve(subject, primary string, deps []string) ([]string, error) {
	resolved := make([]string, 0, len(deps))
	for _, dep := range deps {
		if strings.HasPrefix(dep, ":") {
			if primary == "" {
				return nil, failure.Newf(failure.Generation, stageGenerate, subject,
					"partition %q can only be imported from inside a module", dep)
			}
			dep = primary + dep
		}
		switch {
		case project.IsStdModule(dep):
			if !g.model.Compiler.ImportStd {
				return nil, failure.New(failure.Generation, stageGenerate, subject, errStdDisabled)
			}
		case g.headers[dep]:
		case g.ifcs[dep] != nil:
		default:
			return nil, failure.Newf(failure.Generation, stageGenerate, subject, "unknown module dependency %q", dep)
		}
		if !slices.Contains(resolved, dep) {
			resolved = append(resolved, dep)
		}
	}
	return resolved, nil
}

// references returns the per-unit arguments for the declared interface
// dependencies. std and header units are referenced through the flyweight.
func (g *generator) references(deps []string) []string {
	var refs []string
	for _, dep := range deps {
		if g.ifcs[dep] != nil {
			refs = append(refs, g.args.reference(dep)...)
		}
	}
	return refs
}

func primaryModule(name string) string {
	module, _, _ := strings.Cut(name, ":")
	return module
}

func (g *generator) interfaces() error {
	ifcs := g.model.Modules.Interfaces
	deps := make(map[string][]string, len(ifcs))
	for i := range ifcs {
		name := ifcs[i].Name()
		resolved, err := g.resolve(ifcs[i].Path(), primaryModule(name), ifcs[i].Dependencies)
		if err != nil {
			return err
		}
		deps[name] = resolved
	}

	order, err := sortInterfaces(ifcs, deps)
	if err != nil {
		return err
	}
	for _, ifc := range order {
		name := ifc.Name()
		u := unit(KindInterface, ifc)
		u.Module = name
		u.Dependencies = deps[name]
		u.Args, u.Byproduct = g.args.iface(ifc, g.references(u.Dependencies), g.model.Modules.ExtraArgs)
		u.BMI = g.args.importedFile(KindInterface, name)
		g.cmds.Modules.Interfaces = append(g.cmds.Modules.Interfaces, u)
	}
	return nil
}

// sortInterfaces orders interfaces so every module comes after the ones it
// imports, keeping the declared order among independent ones.
func sortInterfaces(ifcs []project.ModuleInterface, deps map[string][]string) ([]*project.ModuleInterface, error) {
	inDegree := make(map[string]int, len(ifcs))
	dependents := make(map[string][]string, len(ifcs)) // module -> modules importing it
	for i := range ifcs {
		name := ifcs[i].Name()
		for _, dep := range deps[name] {
			if _, isIfc := deps[dep]; !isIfc {
				continue
			}
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	sorted := make([]*project.ModuleInterface, 0, len(ifcs))
	done := make([]bool, len(ifcs))
	for len(sorted) < len(ifcs) {
		next := -1
		for i := range ifcs {
			if !done[i] && inDegree[ifcs[i].Name()] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var cycle []string
			for i := range ifcs {
				if !done[i] {
					cycle = append(cycle, ifcs[i].Name())
				}
			}
			return nil, failure.Newf(failure.Generation, stageGenerate, cycle[0],
				"module dependency cycle involving %v", cycle)
		}
		done[next] = true
		sorted = append(sorted, &ifcs[next])
		for _, v := range dependents[ifcs[next].Name()] {
			inDegree[v]--
		}
	}
	return sorted, nil
}

func (g *generator) implementations() error {
	for i := range g.model.Modules.Implementations {
		impl := &g.model.Modules.Implementations[i]
		implemented := impl.Implements()
		deps, err := g.resolve(impl.Path(), primaryModule(implemented), impl.Dependencies)
		if err != nil {
			return err
		}
		if len(deps) == 0 || g.ifcs[deps[0]] == nil {
			return failure.Newf(failure.Generation, stageGenerate, impl.Path(),
				"implements %q, which no interface exports", implemented)
		}
		u := unit(KindImplementation, impl)
		u.Dependencies = deps
		u.Args, u.Byproduct = g.args.implementation(impl, g.references(deps), g.model.Modules.ExtraArgs)
		g.cmds.Modules.Implementations = append(g.cmds.Modules.Implementations, u)
	}
	return nil
}

func (g *generator) targets() error {
	layout := g.model.Layout()
	for i := range g.model.Targets {
		t := &g.model.Targets[i]
		imports, err := g.resolve(t.Name, "", t.Imports)
		if err != nil {
			return err
		}

		target := &Target{Name: t.Name, Kind: t.Kind}
		for j := range t.Sources {
			src := &t.Sources[j]
			u := unit(KindSource, src)
			u.Dependencies = imports
			u.ImportsAll = len(t.Imports) == 0
			u.Args, u.Byproduct = g.args.source(t.Name, src, g.references(imports), t.ExtraArgs)
			target.Sources = append(target.Sources, u)
		}

		output := layout.Binary(t.Name)
		target.Linker = LinkerCommandLine{
			Output:     output,
			OutputArgs: g.args.linkOutput(output),
			Shared:     g.args.linkShared(),
			Extra:      slices.Clone(t.LinkArgs),
			Inputs:     g.linkInputs(target),
			Status:     Pending,
		}
		g.cmds.Targets[t.Name] = target
	}
	return nil
}

// linkInputs lists the byproducts a target links: the std modules, every
// interface and implementation, then the target's own sources. Header
// units are never linked.
func (g *generator) linkInputs(t *Target) []string {
	var inputs []string
	mods := &g.cmds.Modules
	if g.args.linksStd() {
		for _, u := range []*SourceCommandLine{mods.Std, mods.StdCompat} {
			if u != nil {
				inputs = append(inputs, u.Byproduct)
			}
		}
	}
	for _, u := range mods.Interfaces {
		inputs = append(inputs, u.Byproduct)
	}
	for _, u := range mods.Implementations {
		inputs = append(inputs, u.Byproduct)
	}
	for _, u := range t.Sources {
		inputs = append(inputs, u.Byproduct)
	}
	return inputs
}
