package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayout(t *testing.T) {
	clang := Layout{Out: "out", Kind: Clang}
	assert.Equal(t, filepath.Join("out", "clang", "modules", "interfaces", "math-numbers.pcm"), clang.BMI("math:numbers"))
	assert.Equal(t, filepath.Join("out", "clang", "modules", "std", "std.compat.pcm"), clang.StdBMI(StdCompatModule))
	assert.Equal(t, filepath.Join("out", "clang", "modules", "system", "bits_stdc++_h.pcm"), clang.SystemBMI("bits/stdc++.h"))
	assert.Equal(t, filepath.Join("out", "cache", "qmod_ci.clang.json"), clang.CacheFile("qmod_ci"))

	msvc := Layout{Out: "out", Kind: MSVC}
	assert.Equal(t, filepath.Join("out", "msvc", "modules", "interfaces", "math.obj"), msvc.InterfaceObject("math"))
	assert.Equal(t, filepath.Join("out", "msvc", "modules", "implementations", "src", "math.obj"),
		msvc.ImplementationObject(NewFile(filepath.Join("src", "math.cpp"))))

	gcc := Layout{Out: "build", Kind: GCC}
	assert.Equal(t, filepath.Join("build", "gcc", "targets", "app", "objs", "main.o"), gcc.SourceObject("app", NewFile("main.cpp")))
	assert.Equal(t, filepath.Join("build", "gcc", "targets", "app", "objs", "main.o"),
		gcc.SourceObject("app", NewFile("../shared/main.cpp")), "paths outside the root are flattened")
	assert.Equal(t, filepath.Join("build", "gcc", "targets", "app", BinaryName("app")), gcc.Binary("app"))
}

func TestModuleNames(t *testing.T) {
	tests := []struct {
		ifc  ModuleInterface
		want string
	}{
		{ModuleInterface{File: NewFile("ifc/math.cppm")}, "math"},
		{ModuleInterface{File: NewFile("ifc/m.cppm"), ModuleName: "calc.math"}, "calc.math"},
		{ModuleInterface{File: NewFile("ifc/numbers.cppm"), Partition: &Partition{Module: "math"}}, "math:numbers"},
		{ModuleInterface{File: NewFile("ifc/n.cppm"), ModuleName: "math", Partition: &Partition{Name: "detail", Internal: true}}, "math:detail"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ifc.Name())
	}
}

func TestFileValidate(t *testing.T) {
	f := NewFile(filepath.Join("src", "math.cpp"))
	assert.Equal(t, File{Dir: "src", Stem: "math", Ext: "cpp"}, f)
	assert.Equal(t, "math.cpp", f.Filename())
	assert.NoError(t, f.Validate())

	assert.ErrorIs(t, NewFile("Makefile").Validate(), errEmptyExt)
	assert.ErrorIs(t, HeaderFile{}.Validate(), errEmptyStem)
}
