package command

import (
	"fmt"
	"slices"

	"github.com/qobs-build/qmod/internal/project"
)

// Toolchain is what was discovered about the compiler driver.
type Toolchain struct {
	Driver string
	Major  int
	// StdSource and StdCompatSource are the std module sources shipped with
	// the toolchain, empty when unknown.
	StdSource       string
	StdCompatSource string
}

// Flyweight holds the arguments shared by every unit of a run so they are
// computed once instead of once per unit.
type Flyweight struct {
	// General is the language standard flag plus user extra args.
	General []string `json:"general"`
	Dialect Dialect  `json:"dialect"`
}

// Dialect is a closed union over the supported compilers; exactly one of
// the pointers matching Kind is set.
type Dialect struct {
	Kind  project.CompilerKind `json:"kind"`
	Clang *ClangDialect        `json:"clang,omitempty"`
	MSVC  *MSVCDialect         `json:"msvc,omitempty"`
	GCC   *GCCDialect          `json:"gcc,omitempty"`
}

type ClangDialect struct {
	Major     int    `json:"major"`
	IfcDir    string `json:"ifc_dir"`
	StdBMI    string `json:"std_bmi,omitempty"`
	CompatBMI string `json:"compat_bmi,omitempty"`
	// SystemBMIs are header unit files, referenced by path only.
	SystemBMIs []string `json:"system_bmis,omitempty"`
}

type MSVCDialect struct {
	IfcDir    string      `json:"ifc_dir"`
	StdIFC    string      `json:"std_ifc,omitempty"`
	CompatIFC string      `json:"compat_ifc,omitempty"`
	Headers   []HeaderRef `json:"headers,omitempty"`
}

type HeaderRef struct {
	Header string `json:"header"`
	IFC    string `json:"ifc"`
}

type GCCDialect struct {
	Major int `json:"major"`
}

// NewFlyweight computes the shared argument bundles. It is a pure function
// of the model and toolchain.
func NewFlyweight(m *project.Model, tc Toolchain) Flyweight {
	layout := m.Layout()
	fw := Flyweight{Dialect: Dialect{Kind: m.Compiler.Kind}}

	switch m.Compiler.Kind {
	case project.Clang:
		fw.General = append(fw.General, "-std=c++"+string(m.Compiler.Standard))
		if m.Compiler.StdLib != project.StdLibDefault {
			fw.General = append(fw.General, "-stdlib="+string(m.Compiler.StdLib))
		}
		d := &ClangDialect{Major: tc.Major, IfcDir: layout.InterfacesDir()}
		if m.Compiler.ImportStd {
			d.StdBMI = layout.StdBMI(project.StdModule)
			d.CompatBMI = layout.StdBMI(project.StdCompatModule)
		}
		for _, h := range m.Modules.SystemModules {
			d.SystemBMIs = append(d.SystemBMIs, layout.SystemBMI(h.Header))
		}
		fw.Dialect.Clang = d
	case project.MSVC:
		fw.General = append(fw.General, msvcStdFlag(m.Compiler.Standard))
		d := &MSVCDialect{IfcDir: layout.InterfacesDir()}
		if m.Compiler.ImportStd {
			d.StdIFC = layout.StdBMI(project.StdModule)
			d.CompatIFC = layout.StdBMI(project.StdCompatModule)
		}
		for _, h := range m.Modules.SystemModules {
			d.Headers = append(d.Headers, HeaderRef{Header: h.Header, IFC: layout.SystemBMI(h.Header)})
		}
		fw.Dialect.MSVC = d
	case project.GCC:
		fw.General = append(fw.General, "-std=c++"+string(m.Compiler.Standard))
		fw.Dialect.GCC = &GCCDialect{Major: tc.Major}
	default:
		panic(fmt.Sprintf("NewFlyweight: unknown compiler %q", m.Compiler.Kind))
	}

	fw.General = append(fw.General, m.Compiler.ExtraArgs...)
	return fw
}

func msvcStdFlag(std project.Standard) string {
	switch std {
	case "20", "2a":
		return "/std:c++20"
	case "latest":
		return "/std:c++latest"
	default:
		// cl has no dedicated switch for 23 yet
		return "/std:c++latest"
	}
}

// Common returns the compiler specific module handling flags.
func (f *Flyweight) Common() []string {
	d := f.Dialect
	switch d.Kind {
	case project.Clang:
		args := []string{"-fprebuilt-module-path=" + d.Clang.IfcDir}
		if d.Clang.Major < 18 {
			args = append(args, "-fimplicit-modules", "-fimplicit-module-maps")
		}
		return args
	case project.MSVC:
		return []string{"/EHsc", "/nologo", "/ifcSearchDir", d.MSVC.IfcDir}
	case project.GCC:
		return []string{"-fmodules-ts"}
	default:
		panic(fmt.Sprintf("Flyweight.Common: unknown compiler %q", d.Kind))
	}
}

// References tells the compiler where the prebuilt std and system modules
// live. Only units that import modules get them.
func (f *Flyweight) References() []string {
	d := f.Dialect
	var args []string
	switch d.Kind {
	case project.Clang:
		if d.Clang.StdBMI != "" {
			args = append(args,
				clangModuleRef(d.Clang.Major, project.StdModule, d.Clang.StdBMI),
				clangModuleRef(d.Clang.Major, project.StdCompatModule, d.Clang.CompatBMI))
		}
		for _, bmi := range d.Clang.SystemBMIs {
			args = append(args, "-fmodule-file="+bmi)
		}
	case project.MSVC:
		if d.MSVC.StdIFC != "" {
			args = append(args,
				"/reference", project.StdModule+"="+d.MSVC.StdIFC,
				"/reference", project.StdCompatModule+"="+d.MSVC.CompatIFC)
		}
		for _, h := range d.MSVC.Headers {
			args = append(args, "/headerUnit:angle", h.Header+"="+h.IFC)
		}
	case project.GCC:
		// the driver resolves everything through its module cache
	default:
		panic(fmt.Sprintf("Flyweight.References: unknown compiler %q", d.Kind))
	}
	return args
}

// CompileOnly is the dialect's "compile, don't link" switch.
func (f *Flyweight) CompileOnly() string {
	if f.Dialect.Kind == project.MSVC {
		return "/c"
	}
	return "-c"
}

// Equal reports whether two flyweights produce the same arguments.
func (f *Flyweight) Equal(o *Flyweight) bool {
	return f.Dialect.Kind == o.Dialect.Kind &&
		slices.Equal(f.General, o.General) &&
		slices.Equal(f.Common(), o.Common()) &&
		slices.Equal(f.References(), o.References())
}

// clangModuleRef formats a module file reference. Drivers newer than 15
// take the module name; older ones derive it from the file.
func clangModuleRef(major int, module, path string) string {
	if major > 15 {
		return "-fmodule-file=" + module + "=" + path
	}
	return "-fmodule-file=" + path
}
