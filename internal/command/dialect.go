package command

import (
	"errors"
	"fmt"

	"github.com/qobs-build/qmod/internal/project"
)

var errNoStdModules = errors.New("import_std is not supported with gcc")

// argsBuilder produces the unit specific arguments of one compiler dialect.
// Every method returns the arguments and the byproduct the unit leaves for
// the link step (or for the cache to check when nothing links it).
type argsBuilder interface {
	std(lib project.ModularStdLib) ([]string, string, error)
	system(header string) ([]string, string)
	iface(ifc *project.ModuleInterface, refs, extra []string) ([]string, string)
	implementation(impl *project.ModuleImplementation, refs, extra []string) ([]string, string)
	source(target string, src *project.SourceFile, refs, extra []string) ([]string, string)
	// reference makes the interface of module visible to a unit.
	reference(module string) []string
	// importedFile is the compiled interface importers of module read, when
	// it is not the byproduct itself.
	importedFile(kind UnitKind, module string) string
	linkOutput(path string) []string
	linkShared() []string
	// linksStd reports whether the std byproducts are link inputs.
	linksStd() bool
}

func newArgsBuilder(m *project.Model, tc Toolchain) argsBuilder {
	layout := m.Layout()
	switch m.Compiler.Kind {
	case project.Clang:
		return &clangArgs{layout: layout, major: tc.Major}
	case project.MSVC:
		return &msvcArgs{layout: layout}
	case project.GCC:
		return &gccArgs{layout: layout}
	default:
		panic(fmt.Sprintf("newArgsBuilder: unknown compiler %q", m.Compiler.Kind))
	}
}
