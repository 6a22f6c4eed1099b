package project

import (
	"path/filepath"
	"strings"
)

// Layout places every artifact of one compiler under <out>/<compiler>/ so
// dialects never share byproducts:
//
//	out/
//	  cache/<config-stem>.<compiler>.json
//	  clang/
//	    modules/std/            std.pcm, std.compat.pcm
//	    modules/system/         header units
//	    modules/interfaces/     <module>.pcm (+ objects on msvc/gcc)
//	    modules/implementations/
//	    targets/<target>/objs/  source objects
//	    targets/<target>/<binary>
type Layout struct {
	Out  string
	Kind CompilerKind
}

func (m *Model) Layout() Layout {
	return Layout{Out: m.OutputDir, Kind: m.Compiler.Kind}
}

func (l Layout) base() string { return filepath.Join(l.Out, string(l.Kind)) }

func (l Layout) StdDir() string        { return filepath.Join(l.base(), "modules", "std") }
func (l Layout) SystemDir() string     { return filepath.Join(l.base(), "modules", "system") }
func (l Layout) InterfacesDir() string { return filepath.Join(l.base(), "modules", "interfaces") }
func (l Layout) ImplementationsDir() string {
	return filepath.Join(l.base(), "modules", "implementations")
}
func (l Layout) TargetDir(target string) string {
	return filepath.Join(l.base(), "targets", target)
}

// ModuleFileName maps a module name to a file name; partitions use `-`
// instead of `:` the way clang's prebuilt module lookup expects.
func ModuleFileName(module string) string {
	return strings.ReplaceAll(module, ":", "-")
}

// BMI is the compiled interface of a named module.
func (l Layout) BMI(module string) string {
	return filepath.Join(l.InterfacesDir(), ModuleFileName(module)+"."+l.Kind.BMIExt())
}

// InterfaceObject is the object file produced next to an interface's BMI.
func (l Layout) InterfaceObject(module string) string {
	return filepath.Join(l.InterfacesDir(), ModuleFileName(module)+"."+l.Kind.ObjectExt())
}

func (l Layout) StdBMI(name string) string {
	return filepath.Join(l.StdDir(), name+"."+l.Kind.BMIExt())
}

func (l Layout) StdObject(name string) string {
	return filepath.Join(l.StdDir(), name+"."+l.Kind.ObjectExt())
}

func (l Layout) SystemBMI(header string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ".", "_").Replace(header)
	return filepath.Join(l.SystemDir(), name+"."+l.Kind.BMIExt())
}

// objectPath keeps the unit's relative directory so equal stems in
// different directories don't collide.
func (l Layout) objectPath(dir string, f File) string {
	rel := f.Dir
	if filepath.IsAbs(rel) || rel == "." || strings.HasPrefix(rel, "..") {
		rel = ""
	}
	return filepath.Join(dir, rel, f.Stem+"."+l.Kind.ObjectExt())
}

func (l Layout) ImplementationObject(f File) string {
	return l.objectPath(l.ImplementationsDir(), f)
}

func (l Layout) SourceObject(target string, f File) string {
	return l.objectPath(filepath.Join(l.TargetDir(target), "objs"), f)
}

func (l Layout) Binary(target string) string {
	return filepath.Join(l.TargetDir(target), BinaryName(target))
}

// CacheFile is where the cache of one config file and compiler lives.
func (l Layout) CacheFile(configStem string) string {
	return filepath.Join(l.Out, "cache", configStem+"."+string(l.Kind)+".json")
}
