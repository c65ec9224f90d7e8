package tools

// Definition describes one tool to the model: its name, what it does, and
// a JSON-schema fragment for its parameters.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func param(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func schema(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Definitions returns the closed set of tools, in the order they are
// presented to the model.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        "read_file",
			Description: "Read the content of a file in the workspace. The path is relative to the workspace root.",
			Parameters: schema(map[string]any{
				"path": param("string", "Relative path of the file to read, e.g. 'app/page.tsx'"),
			}, "path"),
		},
		{
			Name:        "write_file",
			Description: "Write content to a file in the workspace, creating it (and any parent directories) if needed. Overwrites existing content entirely.",
			Parameters: schema(map[string]any{
				"path":    param("string", "Relative path of the file to write"),
				"content": param("string", "Full content to write to the file"),
			}, "path", "content"),
		},
		{
			Name:        "list_files",
			Description: "List files and directories in the workspace. Useful for discovering the project layout before reading or editing files.",
			Parameters: schema(map[string]any{
				"path":    param("string", "Relative directory to list (default: workspace root)"),
				"pattern": param("string", "Glob pattern to filter entries, e.g. '*.tsx' (default: all)"),
			}),
		},
		{
			Name:        "run_command",
			Description: "Run a shell command in the workspace and return its stdout, stderr and exit code. A non-zero exit code is returned as data, not an error.",
			Parameters: schema(map[string]any{
				"command": param("string", "Shell command to execute"),
				"cwd":     param("string", "Working directory relative to the workspace root (default: workspace root)"),
			}, "command"),
		},
		{
			Name:        "install_deps",
			Description: "Install project dependencies with pnpm. Removes stale lockfiles and node_modules first. Call this before building or starting the server.",
			Parameters:  schema(map[string]any{}),
		},
		{
			Name:        "start_server",
			Description: "Start the development server in the background and wait until it accepts connections. Restarts the server if one is already running.",
			Parameters:  schema(map[string]any{}),
		},
		{
			Name:        "finish_task",
			Description: "Declare the task complete. Call this exactly once, when the requested changes are done and verified.",
			Parameters: schema(map[string]any{
				"summary": param("string", "Short summary of what was accomplished"),
			}, "summary"),
		},
	}
}

// Names returns the tool names in presentation order.
func Names() []string {
	defs := Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
