package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qobs-build/qmod/internal/command"
	"github.com/qobs-build/qmod/internal/failure"
	"github.com/qobs-build/qmod/internal/msg"
	"github.com/qobs-build/qmod/internal/project"
	"golang.org/x/sync/errgroup"
)

const outputIndent = "    "

// unitResult is the outcome of one compile, applied to the commands and
// cache by a single writer.
type unitResult struct {
	ran     bool
	seen    time.Time
	hasSeen bool
	err     error
}

func (b *Builder) spawn(ctx context.Context, name string, args []string, dir string, env []string) error {
	w := &msg.IndentWriter{Indent: outputIndent}
	defer w.Flush()
	return b.opts.Runner.Run(ctx, Process{
		Name:   name,
		Args:   args,
		Dir:    dir,
		Env:    env,
		Stdout: w,
		Stderr: w,
	})
}

// interrupted reports whether err comes from a cancelled run rather than
// from the process itself.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// classify turns a Runner error into a failure of kind (or Spawn when
// the process never started). Interruptions keep their context error and
// get no kind.
func classify(err error, kind failure.Kind, stage, subject string, p Process) error {
	if interrupted(err) {
		return fmt.Errorf("%s %s: %w", stage, subject, err)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return failure.New(kind, stage, subject, err)
	}
	return failure.New(failure.Spawn, stage, p.String(), err)
}

func (b *Builder) prepareDirs() error {
	layout := b.model.Layout()
	for _, dir := range []string{layout.StdDir(), layout.SystemDir(), layout.InterfacesDir(), layout.ImplementationsDir()} {
		if err := os.MkdirAll(b.model.Abs(dir), 0o755); err != nil {
			return failure.New(failure.Spawn, "prepare", dir, err)
		}
	}
	return nil
}

func (b *Builder) compile(ctx context.Context) error {
	total := 0
	for _, u := range b.cmds.Units() {
		if u.Status == command.Pending {
			total++
		}
	}
	if total == 0 {
		msg.Debug("all translation units are up to date")
		return nil
	}
	if err := b.prepareDirs(); err != nil {
		return err
	}

	progress := msg.NewProgress(total)
	for _, stage := range b.cmds.Stages() {
		var pending []*command.SourceCommandLine
		for _, u := range stage.Units {
			if u.Status == command.Pending {
				pending = append(pending, u)
			}
		}
		if len(pending) == 0 {
			continue
		}
		msg.Trace("stage %s: %d to compile", stage.Name, len(pending))

		var err error
		if b.opts.Jobs > 1 && len(pending) > 1 {
			err = b.compileConcurrently(ctx, stage.Name, pending, progress)
		} else {
			err = b.compileSequentially(ctx, stage.Name, pending, progress)
		}
		if err != nil {
			return err
		}
	}
	progress.Finish("Compiled")
	return nil
}

func (b *Builder) compileSequentially(ctx context.Context, stage string, units []*command.SourceCommandLine, progress *msg.Progress) error {
	for _, u := range units {
		r := b.compileUnit(ctx, stage, u, progress)
		b.commit(u, r, r.err)
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

// compileConcurrently runs one stage through a bounded errgroup. The first
// failure cancels the stage: running siblings are killed and stay pending,
// queued ones never start.
func (b *Builder) compileConcurrently(ctx context.Context, stage string, units []*command.SourceCommandLine, progress *msg.Progress) error {
	results := make([]unitResult, len(units))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Jobs)
	for i, u := range units {
		eg.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			results[i] = b.compileUnit(gctx, stage, u, progress)
			return results[i].err
		})
	}
	err := eg.Wait()
	if err == nil {
		// queued units skip themselves once the run is cancelled
		err = ctx.Err()
	}
	for i, u := range units {
		b.commit(u, results[i], err)
	}
	return err
}

// compileUnit spawns the compiler for u. It doesn't touch shared state.
func (b *Builder) compileUnit(ctx context.Context, stage string, u *command.SourceCommandLine, progress *msg.Progress) unitResult {
	r := unitResult{ran: true}
	r.seen, r.hasSeen = b.cache.ModTime(u)
	if u.Byproduct != "" {
		if err := os.MkdirAll(filepath.Dir(b.model.Abs(u.Byproduct)), 0o755); err != nil {
			r.err = failure.New(failure.Spawn, stage, u.Path(), err)
			return r
		}
	}

	progress.Step("Compiling", u.Path())
	args := b.cmds.FullArgs(u)
	msg.Trace("%s %s", b.cmds.Driver, strings.Join(args, " "))
	if err := b.spawn(ctx, b.cmds.Driver, args, b.model.Root, b.env); err != nil {
		p := Process{Name: b.cmds.Driver, Args: args}
		r.err = classify(err, failure.Compile, stage, u.Path(), p)
	}
	return r
}

// commit applies a unit result. Only the unit that caused stageErr is
// marked failed; interrupted units and those killed because of it stay
// pending.
func (b *Builder) commit(u *command.SourceCommandLine, r unitResult, stageErr error) {
	switch {
	case !r.ran, interrupted(r.err):
	case r.err == nil:
		u.Status = command.Built
		if r.hasSeen {
			b.cache.Record(u, r.seen)
		}
	case r.err == stageErr:
		u.Status = command.Failed
	}
}

func (b *Builder) link(ctx context.Context) error {
	for _, name := range b.cmds.TargetNames() {
		t := b.cmds.Targets[name]
		if !t.NeedsLink {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(b.model.Abs(t.Linker.Output)), 0o755); err != nil {
			return failure.New(failure.Link, "link", name, err)
		}

		msg.Status("Linking", "%s", t.Linker.Output)
		args := b.cmds.LinkArgs(t)
		msg.Trace("%s %s", b.cmds.Driver, strings.Join(args, " "))
		if err := b.spawn(ctx, b.cmds.Driver, args, b.model.Root, b.env); err != nil {
			if !interrupted(err) {
				t.Linker.Status = command.Failed
			}
			return classify(err, failure.Link, "link", name, Process{Name: b.cmds.Driver, Args: args})
		}
		t.Linker.Status = command.Built
	}
	return nil
}

// launch runs the binaries of every target of kind (or the one selected
// target) in their own output directory. Tests all run; the failures are
// joined.
func (b *Builder) launch(ctx context.Context, kind project.TargetKind) error {
	var targets []project.Target
	for _, t := range b.model.Targets {
		if t.Kind != kind || (b.opts.Target != "" && t.Name != b.opts.Target) {
			continue
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		if b.opts.Target != "" {
			return failure.Newf(failure.Config, string(kind), b.opts.Target, "no %s target named %q", kind, b.opts.Target)
		}
		return failure.Newf(failure.Config, string(kind), b.model.Name, "project declares no %s targets", kind)
	}

	stdout := b.opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	var errs []error
	for _, t := range targets {
		bin := b.model.Abs(b.model.Layout().Binary(t.Name))
		msg.Status("Running", "%s", bin)
		p := Process{
			Name:   bin,
			Args:   b.opts.Args,
			Dir:    filepath.Dir(bin),
			Stdout: stdout,
			Stderr: os.Stderr,
		}
		if err := b.opts.Runner.Run(ctx, p); err != nil {
			err = classify(err, failure.Runtime, string(kind), t.Name, p)
			if kind != project.Test || interrupted(err) {
				return err
			}
			msg.Error("%v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
