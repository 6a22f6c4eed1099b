package project

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	errEmptyStem = errors.New("translation unit has an empty file stem")
	errEmptyExt  = errors.New("translation unit has an empty extension")
)

// TranslationUnit is a single compilable input.
type TranslationUnit interface {
	// Path is the unit's path, relative to the project root unless absolute.
	Path() string
	Filename() string
	Validate() error
}

// File identifies a translation unit on disk by directory, stem and extension.
type File struct {
	Dir  string `json:"dir"`
	Stem string `json:"stem"`
	Ext  string `json:"ext"`
}

// NewFile splits path into directory, stem and extension (without the dot).
func NewFile(path string) File {
	path = filepath.Clean(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return File{
		Dir:  filepath.Dir(path),
		Stem: strings.TrimSuffix(base, ext),
		Ext:  strings.TrimPrefix(ext, "."),
	}
}

func (f File) Filename() string {
	if f.Ext == "" {
		return f.Stem
	}
	return f.Stem + "." + f.Ext
}

func (f File) Path() string { return filepath.Join(f.Dir, f.Filename()) }

func (f File) Validate() error {
	if f.Stem == "" {
		return errEmptyStem
	}
	if f.Ext == "" {
		return errEmptyExt
	}
	return nil
}

// Partition describes a module partition, `Module:Name`.
type Partition struct {
	Module   string
	Name     string
	Internal bool
}

// ModuleInterface exports a named module or one of its partitions.
type ModuleInterface struct {
	File
	// ModuleName overrides the file stem as the exported module name.
	ModuleName   string
	Partition    *Partition
	Dependencies []string
}

// Name is the full module name importers refer to, e.g. `math` or `math:numbers`.
func (m ModuleInterface) Name() string {
	if m.Partition != nil {
		module := m.Partition.Module
		if module == "" {
			module = m.ModuleName
		}
		part := m.Partition.Name
		if part == "" {
			part = m.Stem
		}
		return module + ":" + part
	}
	if m.ModuleName != "" {
		return m.ModuleName
	}
	return m.Stem
}

// ModuleImplementation provides the non-exported part of a module. The
// first dependency is the module it implements.
type ModuleImplementation struct {
	File
	Dependencies []string
}

func (m ModuleImplementation) Implements() string {
	if len(m.Dependencies) == 0 {
		return m.Stem
	}
	return m.Dependencies[0]
}

// SourceFile is a plain translation unit of a target. Dependencies holds the
// modules the owning target declares it imports; nil means unknown.
type SourceFile struct {
	File
	Target       string
	Dependencies []string
}

// HeaderFile is a system header compiled as a header unit, e.g. `iostream`.
type HeaderFile struct {
	Header string
}

func (h HeaderFile) Path() string     { return h.Header }
func (h HeaderFile) Filename() string { return h.Header }

func (h HeaderFile) Validate() error {
	if h.Header == "" {
		return errEmptyStem
	}
	return nil
}

// ModularStdLib is the `std` or `std.compat` module shipped by the toolchain.
type ModularStdLib struct {
	File
	Name string
}

const (
	StdModule       = "std"
	StdCompatModule = "std.compat"
)

// IsStdModule reports whether name refers to the standard library modules,
// which every dialect resolves without a declared interface.
func IsStdModule(name string) bool {
	return name == StdModule || name == StdCompatModule
}
