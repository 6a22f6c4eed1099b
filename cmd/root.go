// qmod [build], the default command
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/qobs-build/qmod/internal/builder"
	"github.com/qobs-build/qmod/internal/cache"
	"github.com/qobs-build/qmod/internal/failure"
	"github.com/qobs-build/qmod/internal/msg"
	"github.com/qobs-build/qmod/internal/project"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const compilerFromConfig = "config"

var flagCompiler = newEnumFlag(
	choice{compilerFromConfig, "Use the compiler named in the project file"},
	choice{string(project.Clang), "Build with clang++"},
	choice{string(project.MSVC), "Build with cl.exe from a Visual Studio install"},
	choice{string(project.GCC), "Build with g++"},
)

// settings are the run options after flags and QMOD_* variables are merged.
type settings struct {
	Root       string
	Match      string
	Compiler   string
	DriverPath string
	Jobs       int
	Verbosity  int
	ClearCache bool
}

func readSettings() settings {
	s := settings{
		Root:       viper.GetString("root"),
		Match:      viper.GetString("match"),
		Compiler:   viper.GetString("compiler"),
		DriverPath: viper.GetString("driver-path"),
		Jobs:       viper.GetInt("jobs"),
		Verbosity:  viper.GetInt("verbose"),
		ClearCache: viper.GetBool("clear-cache"),
	}
	if s.Compiler == compilerFromConfig {
		s.Compiler = ""
	}
	return s
}

// bindSettings makes every flag of cmd readable through viper, with a
// QMOD_<FLAG> environment fallback.
func bindSettings(cmd *cobra.Command, _ []string) error {
	viper.SetEnvPrefix("qmod")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	return viper.BindPFlags(cmd.Flags())
}

// runProjects builds every project file selected by the settings, in order,
// and then performs action on each.
func runProjects(ctx context.Context, action builder.Action, opts builder.Options) error {
	s := readSettings()
	msg.SetVerbosity(s.Verbosity)

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return err
	}
	configs, err := project.Discover(root, s.Match)
	if err != nil {
		return failure.New(failure.Config, "config", root, err)
	}
	if len(configs) == 0 {
		return failure.Newf(failure.Config, "config", root, "no %s*.toml project file found", project.ConfigPrefix)
	}

	opts.Jobs = s.Jobs
	for _, path := range configs {
		m, err := project.Load(path, project.Overrides{Compiler: s.Compiler, DriverPath: s.DriverPath})
		if err != nil {
			return err
		}
		c, err := cache.Load(ctx, m, cache.Options{Clear: s.ClearCache})
		if err != nil {
			return err
		}

		msg.Status("Building", "%s (%s, %s)", m.Name, filepath.Base(path), m.Compiler.Kind)
		b := builder.New(m, c, opts)
		if err := b.Run(ctx, action); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func doBuild(cmd *cobra.Command, _ []string) error {
	return runProjects(cmd.Context(), builder.ActionBuild, builder.Options{})
}

var rootCmd = &cobra.Command{
	Use:   "qmod",
	Short: "Incremental builds of C++20 modules projects",
	Long: `qmod compiles C++20 modules projects with clang, msvc or gcc, rebuilding
only the translation units whose sources, arguments or imported modules changed.`,
	Args:              cobra.NoArgs,
	PersistentPreRunE: bindSettings,
	RunE:              doBuild,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build every project file in the root",
	Args:  cobra.NoArgs,
	RunE:  doBuild,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.CountP("verbose", "v", "Log more, repeat for command lines (-vv)")
	flags.Bool("clear-cache", false, "Ignore the persisted cache and rebuild everything")
	flags.String("root", ".", "Project root holding the qmod*.toml files")
	flags.String("driver-path", "", "Compiler driver to use instead of the detected one")
	flags.String("match", "", "Only use project files whose name contains this")
	flags.IntP("jobs", "j", 1, "Compile up to this many units of a stage at once")
	flags.Var(flagCompiler, "compiler", "Compiler to build with, one of "+flagCompiler.usage())
	rootCmd.RegisterFlagCompletionFunc("compiler", flagCompiler.complete)

	rootCmd.AddCommand(buildCmd)
}

// Execute runs the CLI and exits with the code of the failure kind.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		msg.Fatal(130, "interrupted")
	}
	msg.Fatal(failure.KindOf(err).ExitCode(), "%v", err)
}
