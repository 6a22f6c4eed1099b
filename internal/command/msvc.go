package command

import "github.com/qobs-build/qmod/internal/project"

type msvcArgs struct {
	layout project.Layout
}

func (c *msvcArgs) std(lib project.ModularStdLib) ([]string, string, error) {
	obj := c.layout.StdObject(lib.Name)
	args := []string{"/TP", "/interface", "/ifcOutput", c.layout.StdBMI(lib.Name), "/Fo" + obj}
	if lib.Name == project.StdCompatModule {
		args = append(args, "/reference", project.StdModule+"="+c.layout.StdBMI(project.StdModule))
	}
	return append(args, lib.Path()), obj, nil
}

func (c *msvcArgs) system(header string) ([]string, string) {
	ifc := c.layout.SystemBMI(header)
	return []string{"/exportHeader", "/headerName:angle", header, "/ifcOutput", ifc}, ifc
}

func (c *msvcArgs) iface(ifc *project.ModuleInterface, refs, extra []string) ([]string, string) {
	obj := c.layout.InterfaceObject(ifc.Name())
	kind := "/interface"
	if ifc.Partition != nil && ifc.Partition.Internal {
		kind = "/internalPartition"
	}
	args := []string{kind, "/TP", "/ifcOutput", c.layout.BMI(ifc.Name()), "/Fo" + obj}
	args = append(args, refs...)
	args = append(args, extra...)
	return append(args, ifc.Path()), obj
}

func (c *msvcArgs) implementation(impl *project.ModuleImplementation, refs, extra []string) ([]string, string) {
	obj := c.layout.ImplementationObject(impl.File)
	args := append([]string{"/Fo" + obj}, refs...)
	args = append(args, extra...)
	return append(args, impl.Path()), obj
}

func (c *msvcArgs) source(target string, src *project.SourceFile, refs, extra []string) ([]string, string) {
	obj := c.layout.SourceObject(target, src.File)
	args := append([]string{"/Fo" + obj}, refs...)
	args = append(args, extra...)
	return append(args, src.Path()), obj
}

func (c *msvcArgs) reference(module string) []string {
	return []string{"/reference", module + "=" + c.layout.BMI(module)}
}

func (c *msvcArgs) importedFile(kind UnitKind, module string) string {
	switch kind {
	case KindStd, KindStdCompat:
		return c.layout.StdBMI(module)
	case KindInterface:
		return c.layout.BMI(module)
	}
	return ""
}

// linkOutput is a single bare argument; cl does not accept `/Fe <path>`.
func (c *msvcArgs) linkOutput(path string) []string { return []string{"/Fe" + path} }
func (c *msvcArgs) linkShared() []string            { return []string{"/nologo", "/EHsc"} }
func (c *msvcArgs) linksStd() bool                  { return true }
