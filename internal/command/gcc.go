package command

import (
	"path/filepath"

	"github.com/qobs-build/qmod/internal/project"
)

// gcmCache is where the module mapper puts BMIs, relative to the working
// directory.
const gcmCache = "gcm.cache"

// gccArgs relies on the driver's module mapper: BMIs land in gcm.cache
// under the working directory and are found by name, so units carry no
// references.
type gccArgs struct {
	layout project.Layout
}

// std fails: g++ has no std module sources to build from.
func (c *gccArgs) std(project.ModularStdLib) ([]string, string, error) {
	return nil, "", errNoStdModules
}

// system leaves no byproduct: the header unit only exists in gcm.cache.
func (c *gccArgs) system(header string) ([]string, string) {
	return []string{"-x", "c++-system-header", header}, ""
}

func (c *gccArgs) iface(ifc *project.ModuleInterface, _, extra []string) ([]string, string) {
	obj := c.layout.InterfaceObject(ifc.Name())
	args := append([]string{}, extra...)
	return append(args, "-x", "c++", ifc.Path(), "-o", obj), obj
}

func (c *gccArgs) implementation(impl *project.ModuleImplementation, _, extra []string) ([]string, string) {
	obj := c.layout.ImplementationObject(impl.File)
	args := append([]string{}, extra...)
	return append(args, impl.Path(), "-o", obj), obj
}

func (c *gccArgs) source(target string, src *project.SourceFile, _, extra []string) ([]string, string) {
	obj := c.layout.SourceObject(target, src.File)
	args := append([]string{}, extra...)
	return append(args, src.Path(), "-o", obj), obj
}

func (c *gccArgs) importedFile(kind UnitKind, module string) string {
	if kind != KindInterface {
		return ""
	}
	return filepath.Join(gcmCache, project.ModuleFileName(module)+".gcm")
}

func (c *gccArgs) reference(string) []string       { return nil }
func (c *gccArgs) linkOutput(path string) []string { return []string{"-o", path} }
func (c *gccArgs) linkShared() []string            { return nil }
func (c *gccArgs) linksStd() bool                  { return false }
