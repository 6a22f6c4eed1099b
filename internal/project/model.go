package project

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
)

// CompilerKind selects the command-line dialect.
type CompilerKind string

const (
	Clang CompilerKind = "clang"
	MSVC  CompilerKind = "msvc"
	GCC   CompilerKind = "gcc"
)

func ParseCompilerKind(s string) (CompilerKind, error) {
	switch k := CompilerKind(s); k {
	case Clang, MSVC, GCC:
		return k, nil
	}
	return "", fmt.Errorf("unknown compiler %q, expected one of clang, msvc, gcc", s)
}

// DefaultDriver is the executable looked up when no driver path is given.
func (k CompilerKind) DefaultDriver() string {
	switch k {
	case MSVC:
		return "cl"
	case GCC:
		return "g++"
	default:
		return "clang++"
	}
}

// ObjectExt is the object file extension.
func (k CompilerKind) ObjectExt() string {
	if k == MSVC {
		return "obj"
	}
	return "o"
}

// BMIExt is the binary module interface extension.
func (k CompilerKind) BMIExt() string {
	switch k {
	case MSVC:
		return "ifc"
	case GCC:
		return "gcm"
	default:
		return "pcm"
	}
}

// Standard is the C++ language level, e.g. "20" or "latest".
type Standard string

var knownStandards = []Standard{"20", "2a", "23", "2b", "26", "2c", "latest"}

func ParseStandard(s string) (Standard, error) {
	if s == "" {
		return "20", nil
	}
	if slices.Contains(knownStandards, Standard(s)) {
		return Standard(s), nil
	}
	return "", fmt.Errorf("unsupported C++ standard %q", s)
}

// StdLib selects the standard library implementation (Clang only).
type StdLib string

const (
	StdLibDefault   StdLib = ""
	StdLibLibCxx    StdLib = "libc++"
	StdLibLibStdCxx StdLib = "libstdc++"
)

type Compiler struct {
	Kind       CompilerKind
	DriverPath string
	Standard   Standard
	StdLib     StdLib
	// ImportStd builds and references the `std` and `std.compat` modules.
	ImportStd bool
	ExtraArgs []string
}

type Modules struct {
	Interfaces      []ModuleInterface
	Implementations []ModuleImplementation
	SystemModules   []HeaderFile
	ExtraArgs       []string
}

// TargetKind tells which action launches a target's binary.
type TargetKind string

const (
	Executable TargetKind = "executable"
	Test       TargetKind = "test"
)

type Target struct {
	Name      string
	Kind      TargetKind
	Sources   []SourceFile
	Imports   []string
	ExtraArgs []string
	LinkArgs  []string
}

// Model is the resolved description of what to build. It is produced once
// per config file and not modified afterwards.
type Model struct {
	Name string
	// Root is the absolute project root; every process runs there.
	Root string
	// ConfigFile is the absolute path of the config this model came from.
	ConfigFile    string
	Compiler      Compiler
	OutputDir     string
	CompilationDB bool
	Modules       Modules
	// Targets are sorted by name.
	Targets []Target
}

// Abs resolves a model path against the project root.
func (m *Model) Abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.Root, path)
}

// ConfigStem is the config file name without extension, e.g. `qmod_clang`.
func (m *Model) ConfigStem() string {
	return NewFile(m.ConfigFile).Stem
}

// Target returns the named target, if any.
func (m *Model) Target(name string) (*Target, bool) {
	for i := range m.Targets {
		if m.Targets[i].Name == name {
			return &m.Targets[i], true
		}
	}
	return nil, false
}

// Interface returns the interface exporting the given module name.
func (m *Model) Interface(name string) (*ModuleInterface, bool) {
	for i := range m.Modules.Interfaces {
		if m.Modules.Interfaces[i].Name() == name {
			return &m.Modules.Interfaces[i], true
		}
	}
	return nil, false
}

// BinaryName is the file name of a linked target on the host platform.
func BinaryName(target string) string {
	if runtime.GOOS == "windows" {
		return target + ".exe"
	}
	return target
}
