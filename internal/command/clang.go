package command

import "github.com/qobs-build/qmod/internal/project"

type clangArgs struct {
	layout project.Layout
	major  int
}

func (c *clangArgs) std(lib project.ModularStdLib) ([]string, string, error) {
	bmi := c.layout.StdBMI(lib.Name)
	args := []string{"-Wno-reserved-module-identifier", "-x", "c++-module", "--precompile", "-o", bmi}
	if lib.Name == project.StdCompatModule {
		args = append(args, clangModuleRef(c.major, project.StdModule, c.layout.StdBMI(project.StdModule)))
	}
	return append(args, lib.Path()), bmi, nil
}

func (c *clangArgs) system(header string) ([]string, string) {
	bmi := c.layout.SystemBMI(header)
	return []string{"-fmodule-header=system", "-xc++-system-header", "--precompile", header, "-o", bmi}, bmi
}

func (c *clangArgs) iface(ifc *project.ModuleInterface, refs, extra []string) ([]string, string) {
	bmi := c.layout.BMI(ifc.Name())
	args := []string{"-x", "c++-module", "--precompile", "-o", bmi}
	args = append(args, refs...)
	args = append(args, extra...)
	return append(args, ifc.Path()), bmi
}

func (c *clangArgs) implementation(impl *project.ModuleImplementation, refs, extra []string) ([]string, string) {
	obj := c.layout.ImplementationObject(impl.File)
	args := append([]string{"-o", obj}, refs...)
	args = append(args, extra...)
	return append(args, impl.Path()), obj
}

func (c *clangArgs) source(target string, src *project.SourceFile, refs, extra []string) ([]string, string) {
	obj := c.layout.SourceObject(target, src.File)
	args := append([]string{"-o", obj}, refs...)
	args = append(args, extra...)
	return append(args, src.Path()), obj
}

func (c *clangArgs) reference(module string) []string {
	return []string{clangModuleRef(c.major, module, c.layout.BMI(module))}
}

// importedFile is always the byproduct: the pcm is both.
func (c *clangArgs) importedFile(UnitKind, string) string { return "" }

func (c *clangArgs) linkOutput(path string) []string { return []string{"-o", path} }
func (c *clangArgs) linkShared() []string            { return nil }
func (c *clangArgs) linksStd() bool                  { return true }
