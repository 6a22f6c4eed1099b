package command

import "fmt"

// Stage is a precedence group: every unit of a stage must be built before
// any unit of the next stage starts. Units within a stage don't depend on
// each other.
type Stage struct {
	Name  string
	Units []*SourceCommandLine
}

// Stages splits the commands into precedence stages: std, std.compat,
// system modules, one stage per interface dependency level,
// implementations and target sources.
func (c *Commands) Stages() []Stage {
	var stages []Stage
	add := func(name string, units ...*SourceCommandLine) {
		if len(units) > 0 {
			stages = append(stages, Stage{Name: name, Units: units})
		}
	}

	if c.Modules.Std != nil {
		add("std", c.Modules.Std)
	}
	if c.Modules.StdCompat != nil {
		add("std.compat", c.Modules.StdCompat)
	}
	add("system modules", c.Modules.System...)

	for i, level := range interfaceLevels(c.Modules.Interfaces) {
		name := "interfaces"
		if i > 0 {
			name = fmt.Sprintf("interfaces (level %d)", i)
		}
		add(name, level...)
	}

	add("implementations", c.Modules.Implementations...)

	var sources []*SourceCommandLine
	for _, name := range c.TargetNames() {
		sources = append(sources, c.Targets[name].Sources...)
	}
	add("sources", sources...)
	return stages
}

// interfaceLevels groups dependency-ordered interfaces by depth: level 0
// imports no other interface, level n imports at least one of level n-1.
func interfaceLevels(ifcs []*SourceCommandLine) [][]*SourceCommandLine {
	depth := make(map[string]int, len(ifcs))
	var levels [][]*SourceCommandLine
	for _, ifc := range ifcs {
		d := 0
		for _, dep := range ifc.Dependencies {
			if dd, ok := depth[dep]; ok && dd+1 > d {
				d = dd + 1
			}
		}
		depth[ifc.Module] = d
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], ifc)
	}
	return levels
}
