// qmod new [path], qmod init
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/go-git/go-git/v6"
	"github.com/qobs-build/qmod/internal/msg"
	"github.com/qobs-build/qmod/internal/project"
	"github.com/spf13/cobra"
)

func writefile(content string, elem ...string) error {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}
	msg.Status("Created", "%s", filepath.ToSlash(path))
	return nil
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "qmod"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// defaultCompiler picks the template's compiler for the host.
func defaultCompiler(flag string) project.CompilerKind {
	if flag != "" {
		return project.CompilerKind(flag)
	}
	if runtime.GOOS == "windows" {
		return project.MSVC
	}
	return project.Clang
}

func projectTemplate(name string, kind project.CompilerKind) string {
	return `[project]
name = "` + name + `"
authors = []

[compiler]
kind = "` + string(kind) + `"
cpp_standard = "20"

[build]
output_dir = "out"

[modules]
base_ifcs_dir = "ifc"
interfaces = [{ file = "greeter.cppm" }]
base_impls_dir = "src"
implementations = [{ file = "greeter.cpp", dependencies = ["greeter"] }]

[targets.` + name + `]
sources = ["main.cpp"]
imports = ["greeter"]
`
}

const (
	greeterInterface = `export module greeter;

export const char *greeting();
`
	greeterImplementation = `module greeter;

const char *greeting() { return "Hello, World!"; }
`
	mainSource = `#include <cstdio>

import greeter;

int main() {
    std::puts(greeting());
    return 0;
}
`
)

// initIn creates a modules project in an existing directory.
func initIn(dir, name string, kind project.CompilerKind, initGit bool) error {
	files := []struct {
		content string
		elem    []string
	}{
		{projectTemplate(name, kind), []string{dir, project.ConfigPrefix + ".toml"}},
		{greeterInterface, []string{dir, "ifc", "greeter.cppm"}},
		{greeterImplementation, []string{dir, "src", "greeter.cpp"}},
		{mainSource, []string{dir, "main.cpp"}},
		{"out/\n" + "compile_commands.json\n", []string{dir, ".gitignore"}},
	}
	for _, f := range files {
		if err := writefile(f.content, f.elem...); err != nil {
			return err
		}
	}

	if initGit {
		if _, err := git.PlainInit(dir, false); err != nil && !errors.Is(err, git.ErrTargetDirNotEmpty) {
			return fmt.Errorf("git init %s: %w", dir, err)
		}
		msg.Status("Initialized", "git repository in %s", filepath.ToSlash(dir))
	}

	programName := getProgramName()
	fmt.Printf("You can now do %s to build, or %s to build and run.\n",
		color.HiCyanString(programName+" --root "+dir), color.HiCyanString(programName+" run --root "+dir))
	return nil
}

var flagGit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a modules project in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		return initIn(".", filepath.Base(wd), defaultCompiler(readSettings().Compiler), flagGit)
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a modules project in a new directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(args[0], 0o755); err != nil {
			return err
		}
		return initIn(args[0], filepath.Base(args[0]), defaultCompiler(readSettings().Compiler), flagGit)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&flagGit, "git", false, "Also initialize a git repository")

	rootCmd.AddCommand(newCmd)
	newCmd.Flags().BoolVar(&flagGit, "git", false, "Also initialize a git repository")
}
