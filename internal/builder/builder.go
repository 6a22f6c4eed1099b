// Package builder runs the generated commands of a project: it compiles the
// pending translation units in precedence order, links the targets and
// optionally launches them.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/qobs-build/qmod/internal/cache"
	"github.com/qobs-build/qmod/internal/command"
	"github.com/qobs-build/qmod/internal/msg"
	"github.com/qobs-build/qmod/internal/project"
)

// Action is what a run does once everything is compiled and linked.
type Action string

const (
	ActionBuild Action = "build"
	ActionRun   Action = "run"
	ActionTest  Action = "test"
)

// State is the lifecycle of a Builder.
type State int

const (
	NotStarted State = iota
	Executing
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Executing:
		return "executing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var errAlreadyRan = errors.New("builder already ran")

type Options struct {
	// Jobs above 1 compiles the units of a stage concurrently.
	Jobs int
	// Runner spawns the compiler, linker and programs; ExecRunner when nil.
	Runner Runner
	// Target restricts run and test to one target.
	Target string
	// Args are passed to launched programs.
	Args []string
	// Stdout receives launched programs' output; os.Stdout when nil.
	Stdout io.Writer
}

type Builder struct {
	model *project.Model
	cache *cache.Cache
	opts  Options
	state State
	cmds  *command.Commands
	// env is the environment of compiler processes, nil to inherit.
	env []string
}

func New(m *project.Model, c *cache.Cache, opts Options) *Builder {
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	return &Builder{model: m, cache: c, opts: opts}
}

func (b *Builder) State() State { return b.state }

// Commands returns the commands of the run, nil before generation.
func (b *Builder) Commands() *command.Commands { return b.cmds }

// Run generates the commands, compiles what the cache says is pending,
// links and then performs action. The cache is saved even when a unit
// fails so everything built before the failure is kept.
func (b *Builder) Run(ctx context.Context, action Action) (err error) {
	if b.state != NotStarted {
		return errAlreadyRan
	}
	b.state = Executing
	defer func() {
		if err != nil {
			b.state = Failed
		} else {
			b.state = Succeeded
		}
	}()

	md := b.cache.Metadata()
	cmds, err := command.Generate(b.model, md.Toolchain())
	if err != nil {
		return err
	}
	b.cache.Apply(cmds)
	b.cmds = cmds
	if b.model.Compiler.Kind == project.MSVC {
		b.env = md.Env
	}
	msg.Debug("run %s with %s %s", b.cache.RunID, b.model.Compiler.Kind, md.Version)
	if prev := b.cache.PreviousRunID; prev != "" {
		msg.Trace("previous run %s at %s", prev, b.cache.LastRun.Format(time.RFC3339))
	}

	if b.model.CompilationDB {
		path := filepath.Join(b.model.Root, CompilationDBFile)
		if err := WriteCompilationDB(path, b.model.Root, cmds); err != nil {
			msg.Warn("could not write %s: %v", CompilationDBFile, err)
		}
	}

	err = b.compile(ctx)
	if err == nil {
		err = b.link(ctx)
	}
	if saveErr := b.cache.Save(b.cache.Path()); saveErr != nil {
		if err != nil {
			msg.Warn("%v", saveErr)
		} else {
			err = saveErr
		}
	}
	if err != nil {
		return err
	}

	switch action {
	case ActionRun:
		return b.launch(ctx, project.Executable)
	case ActionTest:
		return b.launch(ctx, project.Test)
	}
	return nil
}
