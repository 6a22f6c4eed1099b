package command

import (
	"path/filepath"
	"testing"

	"github.com/qobs-build/qmod/internal/failure"
	"github.com/qobs-build/qmod/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// calculator is a small project: `math` imports `math.numbers`, an
// implementation of `math` and an app importing `math`. Interfaces are
// declared out of dependency order on purpose.
func calculator(kind project.CompilerKind) *project.Model {
	return &project.Model{
		Name:      "calculator",
		Root:      "/proj",
		OutputDir: "out",
		Compiler:  project.Compiler{Kind: kind, Standard: "20"},
		Modules: project.Modules{
			Interfaces: []project.ModuleInterface{
				{File: project.NewFile("ifc/math.cppm"), Dependencies: []string{"math.numbers"}},
				{File: project.NewFile("ifc/numbers.cppm"), ModuleName: "math.numbers"},
			},
			Implementations: []project.ModuleImplementation{
				{File: project.NewFile("src/math.cpp"), Dependencies: []string{"math"}},
			},
		},
		Targets: []project.Target{{
			Name:    "app",
			Kind:    project.Executable,
			Imports: []string{"math"},
			Sources: []project.SourceFile{
				{File: project.NewFile("main.cpp"), Target: "app", Dependencies: []string{"math"}},
			},
		}},
	}
}

func TestClangModuleReferenceShape(t *testing.T) {
	layout := project.Layout{Out: "out", Kind: project.Clang}
	bmi := filepath.Join("out", "clang", "modules", "interfaces", "math.numbers.pcm")

	modern := &clangArgs{layout: layout, major: 19}
	assert.Equal(t, []string{"-fmodule-file=math.numbers=" + bmi}, modern.reference("math.numbers"))

	legacy := &clangArgs{layout: layout, major: 15}
	assert.Equal(t, []string{"-fmodule-file=" + bmi}, legacy.reference("math.numbers"))
}

func TestGenerateClang(t *testing.T) {
	cmds, err := Generate(calculator(project.Clang), Toolchain{Driver: "clang++", Major: 19})
	require.NoError(t, err)

	ifcs := cmds.Modules.Interfaces
	require.Len(t, ifcs, 2)
	assert.Equal(t, "math.numbers", ifcs[0].Module, "imported interface must come first")
	assert.Equal(t, "math", ifcs[1].Module)

	numbersBMI := filepath.Join("out", "clang", "modules", "interfaces", "math.numbers.pcm")
	mathBMI := filepath.Join("out", "clang", "modules", "interfaces", "math.pcm")
	assert.Equal(t, []string{"-x", "c++-module", "--precompile", "-o", numbersBMI, filepath.Join("ifc", "numbers.cppm")}, ifcs[0].Args)
	assert.Contains(t, ifcs[1].Args, "-fmodule-file=math.numbers="+numbersBMI)
	assert.Equal(t, mathBMI, ifcs[1].Byproduct)

	require.Len(t, cmds.Modules.Implementations, 1)
	impl := cmds.Modules.Implementations[0]
	implObj := filepath.Join("out", "clang", "modules", "implementations", "src", "math.o")
	assert.Equal(t, implObj, impl.Byproduct)
	assert.Contains(t, impl.Args, "-fmodule-file=math="+mathBMI)

	app := cmds.Targets["app"]
	require.NotNil(t, app)
	srcObj := filepath.Join("out", "clang", "targets", "app", "objs", "main.o")
	assert.Equal(t, []string{numbersBMI, mathBMI, implObj, srcObj}, app.Linker.Inputs)

	bin := filepath.Join("out", "clang", "targets", "app", project.BinaryName("app"))
	assert.Equal(t, []string{"-std=c++20", "-o", bin, numbersBMI, mathBMI, implObj, srcObj}, cmds.LinkArgs(app))

	for _, u := range cmds.Units() {
		assert.Equal(t, Pending, u.Status, u.String())
	}
}

func TestUnitsOrderInterfacesBeforeImplementations(t *testing.T) {
	cmds, err := Generate(calculator(project.Clang), Toolchain{Driver: "clang++", Major: 19})
	require.NoError(t, err)

	var kinds []UnitKind
	for _, u := range cmds.Units() {
		kinds = append(kinds, u.Kind)
	}
	assert.Equal(t, []UnitKind{KindInterface, KindInterface, KindImplementation, KindSource}, kinds)

	stages := cmds.Stages()
	require.Len(t, stages, 4)
	assert.Equal(t, "interfaces", stages[0].Name)
	assert.Equal(t, "interfaces (level 1)", stages[1].Name)
}

func TestFullArgsConcatenation(t *testing.T) {
	m := calculator(project.Clang)
	m.Compiler.StdLib = project.StdLibLibCxx
	m.Compiler.ImportStd = true
	m.Compiler.ExtraArgs = []string{"-Wall"}
	cmds, err := Generate(m, Toolchain{Driver: "clang++", Major: 19, StdSource: "/usr/share/libc++/v1/std.cppm", StdCompatSource: "/usr/share/libc++/v1/std.compat.cppm"})
	require.NoError(t, err)

	stdBMI := filepath.Join("out", "clang", "modules", "std", "std.pcm")
	compatBMI := filepath.Join("out", "clang", "modules", "std", "std.compat.pcm")
	src := cmds.Targets["app"].Sources[0]

	want := []string{
		"-std=c++20", "-stdlib=libc++", "-Wall",
		"-fprebuilt-module-path=" + filepath.Join("out", "clang", "modules", "interfaces"),
		"-fmodule-file=std=" + stdBMI, "-fmodule-file=std.compat=" + compatBMI,
		"-c",
	}
	want = append(want, src.Args...)
	assert.Equal(t, want, cmds.FullArgs(src))

	// std itself never sees the std references
	std := cmds.Modules.Std
	require.NotNil(t, std)
	assert.NotContains(t, cmds.FullArgs(std), "-fmodule-file=std="+stdBMI)
	assert.Contains(t, cmds.Modules.StdCompat.Args, "-fmodule-file=std="+stdBMI)
	assert.Equal(t, []string{stdBMI, compatBMI}, cmds.Targets["app"].Linker.Inputs[:2])
}

func TestGenerateMSVC(t *testing.T) {
	m := calculator(project.MSVC)
	m.Modules.Interfaces = append(m.Modules.Interfaces, project.ModuleInterface{
		File:       project.NewFile("ifc/detail.cppm"),
		ModuleName: "math",
		Partition:  &project.Partition{Name: "detail", Internal: true},
	})
	m.Modules.Interfaces[0].Dependencies = append(m.Modules.Interfaces[0].Dependencies, ":detail")

	cmds, err := Generate(m, Toolchain{Driver: "cl"})
	require.NoError(t, err)

	detail := cmds.Modules.Interfaces[1]
	assert.Equal(t, "math:detail", detail.Module)
	assert.Equal(t, "/internalPartition", detail.Args[0])
	assert.Contains(t, detail.Args, filepath.Join("out", "msvc", "modules", "interfaces", "math-detail.ifc"))

	math := cmds.Modules.Interfaces[2]
	assert.Equal(t, "/interface", math.Args[0])
	assert.Equal(t, []string{"math.numbers", "math:detail"}, math.Dependencies)
	assert.Contains(t, math.Args, "math:detail="+filepath.Join("out", "msvc", "modules", "interfaces", "math-detail.ifc"))
	assert.Equal(t, filepath.Join("out", "msvc", "modules", "interfaces", "math.obj"), math.Byproduct)

	linker := cmds.Targets["app"].Linker
	bin := filepath.Join("out", "msvc", "targets", "app", project.BinaryName("app"))
	assert.Equal(t, []string{"/Fe" + bin}, linker.OutputArgs, "output must be a single bare argument")
	assert.Equal(t, "/std:c++20", cmds.Flyweight.General[0])
	assert.Equal(t, "/c", cmds.Flyweight.CompileOnly())
}

func TestGenerateGCCSystemModules(t *testing.T) {
	m := calculator(project.GCC)
	m.Modules.SystemModules = []project.HeaderFile{{Header: "iostream"}}
	m.Targets[0].Imports = nil
	m.Targets[0].Sources[0].Dependencies = nil

	cmds, err := Generate(m, Toolchain{Driver: "g++", Major: 14})
	require.NoError(t, err)

	require.Len(t, cmds.Modules.System, 1)
	sys := cmds.Modules.System[0]
	assert.Equal(t, []string{"-x", "c++-system-header", "iostream"}, sys.Args)
	assert.Empty(t, sys.Byproduct)
	assert.Equal(t, []string{"-std=c++20", "-fmodules-ts", "-c", "-x", "c++-system-header", "iostream"}, cmds.FullArgs(sys))

	src := cmds.Targets["app"].Sources[0]
	assert.True(t, src.ImportsAll)
	assert.True(t, src.DependsOn("math"))
	assert.NotContains(t, cmds.Targets["app"].Linker.Inputs, "", "header units are not linked")
}

func TestGenerateUnknownDependency(t *testing.T) {
	m := calculator(project.Clang)
	m.Modules.Interfaces[0].Dependencies = []string{"geometry"}

	_, err := Generate(m, Toolchain{Driver: "clang++", Major: 19})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Generation))
	assert.ErrorContains(t, err, filepath.Join("ifc", "math.cppm"))
	assert.ErrorContains(t, err, `"geometry"`)
}

func TestGenerateStdNeedsImportStd(t *testing.T) {
	m := calculator(project.Clang)
	m.Targets[0].Imports = []string{"std"}

	_, err := Generate(m, Toolchain{Driver: "clang++", Major: 19})
	assert.True(t, failure.Is(err, failure.Generation))

	m.Compiler.ImportStd = true
	_, err = Generate(m, Toolchain{Driver: "clang++", Major: 17, StdSource: "std.cppm", StdCompatSource: "std.compat.cppm"})
	assert.True(t, failure.Is(err, failure.Generation), "clang 17 cannot build std")
}

func TestGenerateCycle(t *testing.T) {
	m := calculator(project.Clang)
	m.Modules.Interfaces[1].Dependencies = []string{"math"}

	_, err := Generate(m, Toolchain{Driver: "clang++", Major: 19})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Generation))
	assert.ErrorContains(t, err, "cycle")
}

func TestFlyweight(t *testing.T) {
	m := calculator(project.Clang)
	old := NewFlyweight(m, Toolchain{Major: 17})
	assert.Equal(t, []string{
		"-fprebuilt-module-path=" + filepath.Join("out", "clang", "modules", "interfaces"),
		"-fimplicit-modules", "-fimplicit-module-maps",
	}, old.Common())

	cur := NewFlyweight(m, Toolchain{Major: 19})
	assert.Len(t, cur.Common(), 1)
	assert.False(t, old.Equal(&cur))

	again := NewFlyweight(m, Toolchain{Major: 19})
	assert.True(t, cur.Equal(&again))

	m.Compiler.Standard = "latest"
	m.Compiler.Kind = project.MSVC
	msvc := NewFlyweight(m, Toolchain{})
	assert.Equal(t, []string{"/std:c++latest"}, msvc.General)
	assert.Equal(t, []string{"/EHsc", "/nologo", "/ifcSearchDir", filepath.Join("out", "msvc", "modules", "interfaces")}, msvc.Common())
}

func TestStdUnitsComeFromStdSources(t *testing.T) {
	m := calculator(project.Clang)
	m.Compiler.ImportStd = true
	cmds, err := Generate(m, Toolchain{Driver: "clang++", Major: 19, StdSource: "/usr/share/libc++/v1/std.cppm", StdCompatSource: "/usr/share/libc++/v1/std.compat.cppm"})
	require.NoError(t, err)

	std, compat := cmds.Modules.Std, cmds.Modules.StdCompat
	assert.Equal(t, project.StdModule, std.Module)
	assert.Equal(t, KindStd, std.Kind)
	assert.Equal(t, "/usr/share/libc++/v1", std.Directory)
	assert.Equal(t, "std.cppm", std.Filename)
	assert.Equal(t, "std.compat.cppm", compat.Filename)
	assert.Equal(t, []string{project.StdModule}, compat.Dependencies)
	assert.Empty(t, std.BMI, "the pcm is the byproduct")
}

func TestGenerateGCCRejectsImportStd(t *testing.T) {
	m := calculator(project.GCC)
	m.Compiler.ImportStd = true

	_, err := Generate(m, Toolchain{Driver: "g++", Major: 14, StdSource: "std.cc", StdCompatSource: "std.compat.cc"})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Generation))
	assert.ErrorContains(t, err, "not supported with gcc")
}

func TestCompiledInterfaceFiles(t *testing.T) {
	clang, err := Generate(calculator(project.Clang), Toolchain{Driver: "clang++", Major: 19})
	require.NoError(t, err)
	for _, u := range clang.Units() {
		assert.Empty(t, u.BMI, u.String())
	}

	m := calculator(project.MSVC)
	m.Compiler.ImportStd = true
	msvc, err := Generate(m, Toolchain{Driver: "cl", StdSource: "/opt/msvc/modules/std.ixx", StdCompatSource: "/opt/msvc/modules/std.compat.ixx"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "msvc", "modules", "interfaces", "math.ifc"), msvc.Modules.Interfaces[1].BMI)
	assert.Equal(t, filepath.Join("out", "msvc", "modules", "interfaces", "math.obj"), msvc.Modules.Interfaces[1].Byproduct)
	assert.Equal(t, project.Layout{Out: "out", Kind: project.MSVC}.StdBMI(project.StdModule), msvc.Modules.Std.BMI)
	assert.Empty(t, msvc.Modules.Implementations[0].BMI)

	gcc, err := Generate(calculator(project.GCC), Toolchain{Driver: "g++", Major: 14})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("gcm.cache", "math.gcm"), gcc.Modules.Interfaces[1].BMI)
}
