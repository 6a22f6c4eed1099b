// Package cache persists the commands of the previous run and decides which
// translation units of the next one can be skipped.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qobs-build/qmod/internal/command"
	"github.com/qobs-build/qmod/internal/failure"
	"github.com/qobs-build/qmod/internal/msg"
	"github.com/qobs-build/qmod/internal/project"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// SchemaVersion changes whenever the persisted layout does.
const SchemaVersion = 1

const stageCache = "cache"

type Options struct {
	// Clear ignores whatever was persisted.
	Clear bool
	// Probe runs compiler probes; ExecProbe when nil.
	Probe Probe
	// VSRoots overrides where Visual Studio installs are searched.
	VSRoots []string
}

type Cache struct {
	SchemaVersion int `json:"schema_version"`
	// RunID names the run that wrote the cache; PreviousRunID is the one
	// that wrote the file this cache was loaded from.
	RunID         string    `json:"run_id"`
	PreviousRunID string    `json:"-"`
	LastRun       time.Time `json:"last_run"`
	// Compilers holds the metadata of each dialect used with this config.
	Compilers map[project.CompilerKind]*Metadata `json:"compilers"`
	// Generated is the previous run's commands until Apply replaces them.
	Generated *command.Commands `json:"generated,omitempty"`
	// Files maps a unit path to its modification time when last built.
	Files map[string]time.Time `json:"files"`

	root string
	path string
	kind project.CompilerKind
}

func fresh(m *project.Model) *Cache {
	return &Cache{
		SchemaVersion: SchemaVersion,
		RunID:         uuid.NewString(),
		Compilers:     make(map[project.CompilerKind]*Metadata),
		Files:         make(map[string]time.Time),
		root:          m.Root,
		path:          m.Abs(m.Layout().CacheFile(m.ConfigStem())),
		kind:          m.Compiler.Kind,
	}
}

// Load reads the cache of the model's config file and makes sure it holds
// metadata for the selected compiler, probing the driver when it doesn't.
func Load(ctx context.Context, m *project.Model, opts Options) (*Cache, error) {
	c := fresh(m)
	if !opts.Clear {
		data, err := os.ReadFile(c.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			msg.Debug("no cache at %s, starting fresh", c.path)
		case err != nil:
			return nil, failure.New(failure.CacheIO, stageCache, c.path, err)
		default:
			if err := c.decode(data); err != nil {
				return nil, err
			}
		}
	}

	if md := c.Compilers[c.kind]; !md.reusable(m.Compiler) {
		probe := opts.Probe
		if probe == nil {
			probe = ExecProbe
		}
		roots := opts.VSRoots
		if roots == nil {
			roots = defaultVSRoots()
		}
		d := &discoverer{probe: probe, vsRoots: roots}
		md, err := d.discover(ctx, m.Compiler)
		if err != nil {
			return nil, err
		}
		c.Compilers[c.kind] = md
	}
	return c, nil
}

func (c *Cache) decode(data []byte) error {
	var stored Cache
	if err := json.Unmarshal(data, &stored); err != nil {
		return failure.New(failure.CacheIO, stageCache, c.path, err)
	}
	if stored.SchemaVersion != SchemaVersion {
		msg.Warn("cache %s has schema %d, expected %d; rebuilding everything", c.path, stored.SchemaVersion, SchemaVersion)
		return nil
	}
	if stored.Compilers != nil {
		c.Compilers = stored.Compilers
	}
	if stored.Files != nil {
		c.Files = stored.Files
	}
	c.Generated = stored.Generated
	c.LastRun = stored.LastRun
	c.PreviousRunID = stored.RunID
	return nil
}

// Path is where Save writes by default.
func (c *Cache) Path() string { return c.path }

// Metadata returns the metadata of the selected compiler.
func (c *Cache) Metadata() *Metadata { return c.Compilers[c.kind] }

// Save writes the cache to path through a temporary file in the same
// directory, so a crash never leaves a truncated cache behind.
func (c *Cache) Save(path string) error {
	c.LastRun = time.Now()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return failure.New(failure.CacheIO, stageCache, path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failure.New(failure.CacheIO, stageCache, path, err)
	}
	tmp, err := os.CreateTemp(dir, ".qmod-cache-"+c.RunID+"-*")
	if err != nil {
		return failure.New(failure.CacheIO, stageCache, path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return failure.New(failure.CacheIO, stageCache, path, err)
	}
	if err := tmp.Close(); err != nil {
		return failure.New(failure.CacheIO, stageCache, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return failure.New(failure.CacheIO, stageCache, path, err)
	}
	return nil
}

func (c *Cache) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.root, path)
}

// ModTime stats the unit's source. Header units have no file of their own.
func (c *Cache) ModTime(u *command.SourceCommandLine) (time.Time, bool) {
	if u.Kind == command.KindSystem {
		return time.Time{}, false
	}
	fi, err := os.Stat(c.abs(u.Path()))
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}

// Record stores the source modification time observed before a
// successful compile of u.
func (c *Cache) Record(u *command.SourceCommandLine, seen time.Time) {
	if u.Kind == command.KindSystem {
		return
	}
	c.Files[u.Path()] = seen
}

// Apply decides for every generated command whether it is cached or
// pending, then marks the targets that need linking. cmds replaces the
// previous run's commands.
func (c *Cache) Apply(cmds *command.Commands) {
	prev := c.Generated
	var idx map[string]*command.SourceCommandLine
	sameFlyweight := false
	if prev != nil {
		idx = prev.Lookup()
		sameFlyweight = prev.Compiler == cmds.Compiler && prev.Flyweight.Equal(&cmds.Flyweight)
		if !sameFlyweight {
			msg.Debug("shared compiler arguments changed, rebuilding everything")
		}
	}

	for _, u := range cmds.Units() {
		old := idx[u.Key()]
		if !sameFlyweight {
			u.Status = command.Pending
			continue
		}
		if reason := c.miss(u, old); reason != "" {
			msg.Trace("%s: %s", u, reason)
			u.Status = command.Pending
			continue
		}
		u.Status = command.Cached
		u.Byproduct, u.BMI = old.Byproduct, old.BMI
	}

	propagate(cmds)
	c.decideLinks(cmds, prev)
	c.Generated = cmds
}

// miss returns why u cannot reuse old, or "" on a hit. Missing data is
// always a miss.
func (c *Cache) miss(u, old *command.SourceCommandLine) string {
	if old == nil {
		return "not built before"
	}
	if old.Filename != u.Filename || old.Kind != u.Kind {
		return "unit changed"
	}
	if !slices.Equal(old.Args, u.Args) {
		logArgsDiff(u, old.Args, u.Args)
		return "arguments changed"
	}
	if !old.Status.UpToDate() {
		return "previous status " + string(old.Status)
	}
	if u.Kind != command.KindSystem {
		recorded, ok := c.Files[u.Path()]
		if !ok {
			return "no recorded modification time"
		}
		current, ok := c.ModTime(u)
		if !ok {
			return "source not readable"
		}
		if current.After(recorded) {
			return "source modified"
		}
	}
	if old.Byproduct != "" {
		if _, err := os.Stat(c.abs(old.Byproduct)); err != nil {
			return "byproduct missing"
		}
	}
	if old.BMI != "" {
		if _, err := os.Stat(c.abs(old.BMI)); err != nil {
			return "compiled interface missing"
		}
	}
	return ""
}

func logArgsDiff(u *command.SourceCommandLine, before, after []string) {
	if msg.Verbosity() < 1 {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(strings.Join(before, " "), strings.Join(after, " "), false)
	msg.Debug("%s: arguments changed: %s", u, dmp.DiffPrettyText(diffs))
}

// propagate marks pending every unit downstream of a pending module. Units
// come in precedence order, so one pass covers transitive imports.
func propagate(cmds *command.Commands) {
	var stdDirty, systemDirty bool
	dirty := make(map[string]bool)

	for _, u := range cmds.Units() {
		switch u.Kind {
		case command.KindStd, command.KindStdCompat:
			if stdDirty {
				u.Status = command.Pending
			}
			stdDirty = stdDirty || u.Status == command.Pending
		case command.KindSystem:
			if stdDirty {
				u.Status = command.Pending
			}
			systemDirty = systemDirty || u.Status == command.Pending
		default:
			if stdDirty || systemDirty || importsDirty(u, dirty) {
				u.Status = command.Pending
			}
			if u.Kind == command.KindInterface && u.Status == command.Pending {
				dirty[u.Module] = true
			}
		}
	}
}

func importsDirty(u *command.SourceCommandLine, dirty map[string]bool) bool {
	if u.ImportsAll {
		return len(dirty) > 0
	}
	for _, dep := range u.Dependencies {
		if dirty[dep] {
			return true
		}
	}
	return false
}

func (c *Cache) decideLinks(cmds *command.Commands, prev *command.Commands) {
	modulesPending := slices.ContainsFunc(cmds.ModuleUnits(), isPending)

	for _, name := range cmds.TargetNames() {
		t := cmds.Targets[name]
		reason := ""
		var old *command.Target
		if prev != nil {
			old = prev.Targets[name]
		}
		switch {
		case old == nil:
			reason = "not linked before"
		case modulesPending || slices.ContainsFunc(t.Sources, isPending):
			reason = "inputs rebuilt"
		case !slices.Equal(old.Linker.Inputs, t.Linker.Inputs):
			reason = "inputs changed"
		case !slices.Equal(prev.LinkArgs(old), cmds.LinkArgs(t)):
			reason = "link arguments changed"
		case !old.Linker.Status.UpToDate():
			reason = "previous link " + string(old.Linker.Status)
		default:
			if _, err := os.Stat(c.abs(t.Linker.Output)); err != nil {
				reason = "output missing"
			}
		}

		t.NeedsLink = reason != ""
		if t.NeedsLink {
			msg.Trace("%s: relink, %s", name, reason)
			t.Linker.Status = command.Pending
		} else {
			t.Linker.Status = command.Cached
		}
	}
}

func isPending(u *command.SourceCommandLine) bool { return u.Status == command.Pending }
