package builder

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/qobs-build/qmod/internal/command"
)

// CompilationDBFile is written to the project root for clangd and friends.
const CompilationDBFile = "compile_commands.json"

// CompileCommand is one entry of a JSON compilation database.
type CompileCommand struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments"`
	Output    string   `json:"output,omitempty"`
}

// CompilationDB projects the commands into compilation database entries,
// one per unit, with the exact arguments the unit is compiled with.
func CompilationDB(root string, cmds *command.Commands) []CompileCommand {
	units := cmds.Units()
	entries := make([]CompileCommand, 0, len(units))
	for _, u := range units {
		file := u.Path()
		if u.Kind != command.KindSystem && !filepath.IsAbs(file) {
			file = filepath.Join(root, file)
		}
		entries = append(entries, CompileCommand{
			Directory: root,
			File:      file,
			Arguments: append([]string{cmds.Driver}, cmds.FullArgs(u)...),
			Output:    u.Byproduct,
		})
	}
	return entries
}

// WriteCompilationDB writes the database of cmds to path.
func WriteCompilationDB(path, root string, cmds *command.Commands) error {
	data, err := json.MarshalIndent(CompilationDB(root, cmds), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
