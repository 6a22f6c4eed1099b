package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qobs-build/qmod/internal/failure"
	"github.com/qobs-build/qmod/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		banner  string
		version string
		major   int
	}{
		{"clang version 19.1.7\nTarget: x86_64-pc-linux-gnu", "19.1.7", 19},
		{"Ubuntu clang version 18.1.3 (1ubuntu1)\n", "18.1.3", 18},
		{"Apple clang version 15.0.0 (clang-1500.3.9.4)", "15.0.0", 15},
		{"g++ (GCC) 14.2.1 20240910\nCopyright (C) 2024", "14.2.1", 14},
		{"14.40.33807", "14.40.33807", 14},
	}
	for _, tt := range tests {
		version, major, err := parseVersion([]byte(tt.banner))
		require.NoError(t, err, tt.banner)
		assert.Equal(t, tt.version, version)
		assert.Equal(t, tt.major, major)
	}

	_, _, err := parseVersion([]byte("not a compiler"))
	assert.Error(t, err)
}

// fakeProbe answers probes by their joined command line.
type fakeProbe struct {
	answers map[string]string
	calls   []string
}

func (p *fakeProbe) run(_ context.Context, _ []string, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	p.calls = append(p.calls, line)
	out, ok := p.answers[line]
	if !ok {
		return nil, fmt.Errorf("unexpected probe %q", line)
	}
	return []byte(out), nil
}

func TestDiscoverClangStdModules(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "lib", "libc++.modules.json")
	writeFile(t, manifest, `{
  "version": 1,
  "revision": 1,
  "modules": [
    {"logical-name": "std", "source-path": "../share/libc++/v1/std.cppm", "is-std-library": true},
    {"logical-name": "std.compat", "source-path": "../share/libc++/v1/std.compat.cppm", "is-std-library": true}
  ]
}`)

	probe := &fakeProbe{answers: map[string]string{}}
	probe.answers["clang++ --version"] = "clang version 19.1.7\n"
	probe.answers["clang++ -stdlib=libc++ -print-file-name=libc++.modules.json"] = manifest + "\n"
	c := project.Compiler{Kind: project.Clang, DriverPath: "clang++", StdLib: project.StdLibLibCxx, ImportStd: true}
	d := &discoverer{probe: probe.run}

	md, err := d.discover(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 19, md.Major)
	assert.Equal(t, filepath.Join(dir, "share", "libc++", "v1", "std.cppm"), md.StdSource)
	assert.Equal(t, filepath.Join(dir, "share", "libc++", "v1", "std.compat.cppm"), md.StdCompatSource)
	assert.True(t, md.reusable(c))

	c.StdLib = project.StdLibDefault
	assert.False(t, md.reusable(c), "a different std_lib needs new metadata")
}

func TestDiscoverClangWithoutManifest(t *testing.T) {
	probe := &fakeProbe{answers: map[string]string{}}
	probe.answers["clang++ --version"] = "clang version 18.1.3\n"
	probe.answers["clang++ -print-file-name=libc++.modules.json"] = "libc++.modules.json\n"
	c := project.Compiler{Kind: project.Clang, DriverPath: "clang++", ImportStd: true}
	md, err := (&discoverer{probe: probe.run}).discover(context.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, md.StdSource)
	assert.False(t, md.reusable(c))
}

func TestDiscoverFailureIsConfigError(t *testing.T) {
	probe := func(context.Context, []string, string, ...string) ([]byte, error) {
		return nil, errors.New("exec: \"g++\": executable file not found in $PATH")
	}
	c := project.Compiler{Kind: project.GCC, DriverPath: "g++"}
	_, err := (&discoverer{probe: probe}).discover(context.Background(), c)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Config))
}

func TestDiscoverMSVC(t *testing.T) {
	root := t.TempDir()
	older := filepath.Join(root, "2019", "BuildTools", "VC", "Auxiliary", "Build", "vcvars64.bat")
	newer := filepath.Join(root, "2022", "Community", "VC", "Auxiliary", "Build", "vcvars64.bat")
	writeFile(t, older, "@echo off")
	writeFile(t, newer, "@echo off")

	tools := filepath.Join(root, "2022", "Community", "VC", "Tools", "MSVC", "14.40.33807")
	writeFile(t, filepath.Join(tools, "modules", "std.ixx"), "export module std;")

	probe := &fakeProbe{answers: map[string]string{
		"cmd /c " + newer + " && set": strings.Join([]string{
			"INCLUDE=" + filepath.Join(tools, "include"),
			"VCToolsInstallDir=" + tools,
			"VCToolsVersion=14.40.33807",
			"Path=C:\\Windows",
		}, "\r\n"),
	}}
	d := &discoverer{probe: probe.run, vsRoots: []string{root}}

	md, err := d.discover(context.Background(), project.Compiler{Kind: project.MSVC})
	require.NoError(t, err)
	assert.Equal(t, newer, md.Vcvars)
	assert.Equal(t, filepath.Join(tools, "bin", "Hostx64", "x64", "cl.exe"), md.Driver)
	assert.Equal(t, filepath.Join(tools, "modules", "std.ixx"), md.StdSource)
	assert.Equal(t, "14.40.33807", md.Version)
	assert.Contains(t, md.Env, "Path=C:\\Windows")
	assert.Equal(t, tools, lookupEnv(md.Env, "vctoolsinstalldir"))
}

func TestDiscoverMSVCWithoutVisualStudio(t *testing.T) {
	d := &discoverer{probe: (&fakeProbe{}).run, vsRoots: []string{t.TempDir()}}
	_, err := d.discover(context.Background(), project.Compiler{Kind: project.MSVC})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Config))
	assert.ErrorIs(t, err, errNoVcvars)
}

func TestDriverMatches(t *testing.T) {
	assert.True(t, driverMatches(project.Clang, "/usr/bin/clang++-19"))
	assert.False(t, driverMatches(project.Clang, "/usr/bin/g++"))
	assert.True(t, driverMatches(project.GCC, "g++-14"))
	assert.True(t, driverMatches(project.MSVC, "cl.exe"))
	assert.False(t, driverMatches(project.MSVC, "clang++"))
}

func TestDriverCandidates(t *testing.T) {
	assert.Equal(t, []string{"cl"}, driverCandidates(project.MSVC))
	assert.Equal(t, "g++", driverCandidates(project.GCC)[0])
	assert.Equal(t, []string{"clang++", "clang++-20", "clang++-19", "clang++-18", "clang"}, driverCandidates(project.Clang))
}

func TestFindDriverPrefersRequestedThenCXX(t *testing.T) {
	t.Setenv("CXX", "/opt/gcc/bin/g++-14")

	d, err := findDriver(project.Clang, "/opt/llvm/bin/clang++")
	require.NoError(t, err)
	assert.Equal(t, "/opt/llvm/bin/clang++", d)

	d, err = findDriver(project.GCC, "")
	require.NoError(t, err)
	assert.Equal(t, "/opt/gcc/bin/g++-14", d)

	t.Setenv("PATH", t.TempDir())
	_, err = findDriver(project.Clang, "")
	assert.ErrorContains(t, err, "tried clang++, clang++-20")
}
