package cache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/qmod/internal/command"
	"github.com/qobs-build/qmod/internal/failure"
	"github.com/qobs-build/qmod/internal/msg"
	"github.com/qobs-build/qmod/internal/project"
)

const stageDiscover = "discover"

// Metadata is what was learned about the compiler driver of one dialect.
// It is persisted so the probes only run when the driver changes.
type Metadata struct {
	// Requested is the driver path the user asked for, empty when it was
	// looked up.
	Requested       string         `json:"requested"`
	Driver          string         `json:"driver"`
	Version         string         `json:"version"`
	Major           int            `json:"major"`
	StdLib          project.StdLib `json:"std_lib,omitempty"`
	StdSource       string         `json:"std_source,omitempty"`
	StdCompatSource string         `json:"std_compat_source,omitempty"`
	// Vcvars and Env are the developer prompt script and the environment
	// it produces (msvc only).
	Vcvars string   `json:"vcvars,omitempty"`
	Env    []string `json:"env,omitempty"`
}

func (md *Metadata) Toolchain() command.Toolchain {
	return command.Toolchain{
		Driver:          md.Driver,
		Major:           md.Major,
		StdSource:       md.StdSource,
		StdCompatSource: md.StdCompatSource,
	}
}

// reusable reports whether md still describes the driver the model selects.
func (md *Metadata) reusable(c project.Compiler) bool {
	if md == nil || md.Driver == "" || md.Requested != c.DriverPath || md.StdLib != c.StdLib {
		return false
	}
	return !c.ImportStd || md.StdSource != ""
}

// Probe runs a helper process and returns its standard output. env nil
// means the current environment.
type Probe func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

// ExecProbe is the Probe backed by os/exec.
func ExecProbe(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return out, fmt.Errorf("%w: %s", err, s)
		}
		return out, err
	}
	return out, nil
}

var versionedDrivers = map[project.CompilerKind][]string{
	project.Clang: {"clang++-20", "clang++-19", "clang++-18", "clang"},
	project.GCC:   {"g++-15", "g++-14", "g++-13"},
}

// driverCandidates lists the executable names tried on PATH, the unversioned
// default first.
func driverCandidates(kind project.CompilerKind) []string {
	return append([]string{kind.DefaultDriver()}, versionedDrivers[kind]...)
}

// driverMatches reports whether a compiler named by $CXX speaks kind's dialect.
func driverMatches(kind project.CompilerKind, path string) bool {
	base := strings.TrimSuffix(strings.ToLower(filepath.Base(path)), ".exe")
	switch kind {
	case project.Clang:
		return strings.Contains(base, "clang") && !strings.Contains(base, "clang-cl")
	case project.GCC:
		return strings.Contains(base, "g++") || strings.Contains(base, "gcc")
	case project.MSVC:
		return base == "cl" || base == "clang-cl"
	}
	return false
}

// findDriver locates the compiler executable: the requested path, $CXX if
// it is of the right kind, then the usual names on PATH.
func findDriver(kind project.CompilerKind, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	if cxx := os.Getenv("CXX"); cxx != "" && driverMatches(kind, cxx) {
		return cxx, nil
	}
	for _, name := range driverCandidates(kind) {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s driver found on PATH, tried %s", kind, strings.Join(driverCandidates(kind), ", "))
}

// discoverer runs the probes of one Load.
type discoverer struct {
	probe   Probe
	vsRoots []string
}

func (d *discoverer) discover(ctx context.Context, c project.Compiler) (*Metadata, error) {
	md := &Metadata{Requested: c.DriverPath, StdLib: c.StdLib}
	var err error
	switch c.Kind {
	case project.Clang:
		err = d.clang(ctx, c, md)
	case project.GCC:
		err = d.gcc(ctx, c, md)
	case project.MSVC:
		err = d.msvc(ctx, c, md)
	default:
		err = fmt.Errorf("unknown compiler %q", c.Kind)
	}
	if err != nil {
		return nil, failure.New(failure.Config, stageDiscover, string(c.Kind), err)
	}
	msg.Debug("discovered %s %s at %s", c.Kind, md.Version, md.Driver)
	return md, nil
}

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// parseVersion extracts the first dotted version of a `--version` banner.
func parseVersion(banner []byte) (string, int, error) {
	first, _, _ := bytes.Cut(banner, []byte("\n"))
	if i := bytes.Index(first, []byte("version ")); i >= 0 {
		first = first[i:]
	}
	m := versionRe.FindSubmatch(first)
	if m == nil {
		return "", 0, fmt.Errorf("no version in %q", strings.TrimSpace(string(first)))
	}
	major, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return "", 0, err
	}
	return string(m[0]), major, nil
}

func (d *discoverer) version(ctx context.Context, kind project.CompilerKind, requested string, md *Metadata) error {
	driver, err := findDriver(kind, requested)
	if err != nil {
		return err
	}
	out, err := d.probe(ctx, nil, driver, "--version")
	if err != nil {
		return fmt.Errorf("%s --version: %w", driver, err)
	}
	md.Driver = driver
	md.Version, md.Major, err = parseVersion(out)
	return err
}

func (d *discoverer) gcc(ctx context.Context, c project.Compiler, md *Metadata) error {
	return d.version(ctx, project.GCC, c.DriverPath, md)
}

// libcxxModules is the part of libc++.modules.json naming the std sources.
type libcxxModules struct {
	Modules []struct {
		LogicalName string `json:"logical-name"`
		SourcePath  string `json:"source-path"`
	} `json:"modules"`
}

func (d *discoverer) clang(ctx context.Context, c project.Compiler, md *Metadata) error {
	if err := d.version(ctx, project.Clang, c.DriverPath, md); err != nil {
		return err
	}
	if !c.ImportStd {
		return nil
	}

	args := []string{"-print-file-name=libc++.modules.json"}
	if c.StdLib != project.StdLibDefault {
		args = append([]string{"-stdlib=" + string(c.StdLib)}, args...)
	}
	out, err := d.probe(ctx, nil, md.Driver, args...)
	if err != nil {
		return fmt.Errorf("locating libc++.modules.json: %w", err)
	}
	manifest := strings.TrimSpace(string(out))
	if !filepath.IsAbs(manifest) {
		// the driver echoes the bare name back when it has no such file
		msg.Warn("%s does not ship libc++.modules.json, `import std` is unavailable", md.Driver)
		return nil
	}
	data, err := os.ReadFile(manifest)
	if err != nil {
		return err
	}
	var mods libcxxModules
	if err := json.Unmarshal(data, &mods); err != nil {
		return fmt.Errorf("%s: %w", manifest, err)
	}
	for _, mod := range mods.Modules {
		src := mod.SourcePath
		if !filepath.IsAbs(src) {
			src = filepath.Join(filepath.Dir(manifest), src)
		}
		switch mod.LogicalName {
		case project.StdModule:
			md.StdSource = filepath.Clean(src)
		case project.StdCompatModule:
			md.StdCompatSource = filepath.Clean(src)
		}
	}
	return nil
}

var errNoVcvars = errors.New("vcvars64.bat not found, is the Visual Studio C++ workload installed?")

// defaultVSRoots are the directories Visual Studio installs under.
func defaultVSRoots() []string {
	var roots []string
	for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)"} {
		if dir := os.Getenv(env); dir != "" {
			roots = append(roots, filepath.Join(dir, "Microsoft Visual Studio"))
		}
	}
	return roots
}

// findVcvars returns the newest vcvars64.bat under roots. Editions live at
// <root>/<year>/<edition>/VC/Auxiliary/Build.
func findVcvars(roots []string) (string, error) {
	var found []string
	for _, root := range roots {
		matches, err := doublestar.Glob(os.DirFS(root), "*/*/VC/Auxiliary/Build/vcvars64.bat", doublestar.WithFilesOnly())
		if err != nil {
			continue
		}
		for _, m := range matches {
			found = append(found, filepath.Join(root, filepath.FromSlash(m)))
		}
	}
	if len(found) == 0 {
		return "", errNoVcvars
	}
	slices.Sort(found)
	return found[len(found)-1], nil
}

// parseEnv reads the output of `set` into KEY=VALUE entries.
func parseEnv(out []byte) []string {
	var env []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if k, _, ok := strings.Cut(line, "="); ok && k != "" {
			env = append(env, line)
		}
	}
	return env
}

func lookupEnv(env []string, key string) string {
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (d *discoverer) msvc(ctx context.Context, c project.Compiler, md *Metadata) error {
	vcvars, err := findVcvars(d.vsRoots)
	if err != nil {
		return err
	}
	out, err := d.probe(ctx, nil, "cmd", "/c", vcvars, "&&", "set")
	if err != nil {
		return fmt.Errorf("running %s: %w", vcvars, err)
	}
	md.Vcvars = vcvars
	md.Env = parseEnv(out)

	tools := lookupEnv(md.Env, "VCToolsInstallDir")
	if tools == "" {
		return fmt.Errorf("%s did not set VCToolsInstallDir", vcvars)
	}
	md.Version = lookupEnv(md.Env, "VCToolsVersion")
	if md.Version != "" {
		_, md.Major, _ = parseVersion([]byte(md.Version))
	}

	md.Driver = c.DriverPath
	if md.Driver == "" {
		md.Driver = filepath.Join(tools, "bin", "Hostx64", "x64", "cl.exe")
	}
	std := filepath.Join(tools, "modules", "std.ixx")
	if _, err := os.Stat(std); err == nil {
		md.StdSource = std
		md.StdCompatSource = filepath.Join(tools, "modules", "std.compat.ixx")
	}
	return nil
}
