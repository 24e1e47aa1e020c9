package toolbox

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Default and ceiling timeouts for the shell tool, overridable per call.
const (
	DefaultShellTimeout = 2 * time.Minute
	MaxShellTimeout     = 10 * time.Minute
)

// RegisterCoreTools installs the built-in coding tools, all delegating to
// env. Registration fails only on a name collision with an already
// installed tool.
func RegisterCoreTools(reg *Registry, env Environment) error {
	tools := []Tool{
		readFileTool(env),
		writeFileTool(env),
		editFileTool(env),
		listDirTool(env),
		shellTool(env),
		grepTool(env),
		globTool(env),
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type readFileParams struct {
	FilePath string `json:"file_path" jsonschema:"description=Path to the file to read."`
	Offset   int    `json:"offset,omitempty" jsonschema:"description=1-based line number to start reading from."`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read. Default: 2000."`
}

func readFileTool(env Environment) Tool {
	return Tool{
		Name:        "read_file",
		Description: "Read a file from the filesystem. Returns line-numbered content.",
		Parameters:  SchemaFor[readFileParams](),
		Danger:      DangerNone(),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			p, err := decodeArgs[readFileParams](args)
			if err != nil {
				return "", err
			}
			if p.FilePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			if p.Limit == 0 {
				p.Limit = 2000
			}
			return env.ReadFile(p.FilePath, p.Offset, p.Limit)
		},
	}
}

type writeFileParams struct {
	FilePath string `json:"file_path" jsonschema:"description=Path to write to."`
	Content  string `json:"content" jsonschema:"description=The full file content to write."`
}

func writeFileTool(env Environment) Tool {
	return Tool{
		Name:        "write_file",
		Description: "Write content to a file. Creates the file and parent directories if needed.",
		Parameters:  SchemaFor[writeFileParams](),
		Danger:      DangerAlways(""),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			p, err := decodeArgs[writeFileParams](args)
			if err != nil {
				return "", err
			}
			if p.FilePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			if err := env.WriteFile(p.FilePath, p.Content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully wrote %d bytes to %s", len(p.Content), p.FilePath), nil
		},
	}
}

type editFileParams struct {
	FilePath   string `json:"file_path" jsonschema:"description=Path to the file to edit."`
	OldString  string `json:"old_string" jsonschema:"description=Exact text to find in the file."`
	NewString  string `json:"new_string" jsonschema:"description=Replacement text."`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace all occurrences. Default: false."`
}

func editFileTool(env Environment) Tool {
	return Tool{
		Name:        "edit_file",
		Description: "Replace an exact string occurrence in a file. The old_string must be unique in the file unless replace_all is true.",
		Parameters:  SchemaFor[editFileParams](),
		Danger:      DangerAlways(""),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			p, err := decodeArgs[editFileParams](args)
			if err != nil {
				return "", err
			}
			if p.FilePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			if p.OldString == "" {
				return "", fmt.Errorf("old_string is required")
			}

			raw, err := readRaw(env, p.FilePath)
			if err != nil {
				return "", fmt.Errorf("file not found: %s", p.FilePath)
			}

			count := strings.Count(raw, p.OldString)
			if count == 0 {
				return "", fmt.Errorf("old_string not found in %s", p.FilePath)
			}
			if count > 1 && !p.ReplaceAll {
				return "", fmt.Errorf("old_string found %d times in %s. Provide more context to make it unique, or set replace_all=true", count, p.FilePath)
			}

			var updated string
			replacements := 1
			if p.ReplaceAll {
				updated = strings.ReplaceAll(raw, p.OldString, p.NewString)
				replacements = count
			} else {
				updated = strings.Replace(raw, p.OldString, p.NewString, 1)
			}
			if err := env.WriteFile(p.FilePath, updated); err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully replaced %d occurrence(s) in %s", replacements, p.FilePath), nil
		},
	}
}

// readRaw reconstructs unnumbered content from the environment's
// line-numbered ReadFile. Each line is formatted as "N | content".
func readRaw(env Environment, path string) (string, error) {
	numbered, err := env.ReadFile(path, 0, 0)
	if err != nil {
		return "", err
	}
	lines := strings.Split(numbered, "\n")
	var raw []string
	for _, line := range lines {
		if line == "" {
			continue
		}
		if idx := strings.Index(line, " | "); idx >= 0 {
			raw = append(raw, line[idx+3:])
		} else {
			raw = append(raw, line)
		}
	}
	return strings.Join(raw, "\n"), nil
}

type listDirParams struct {
	Path string `json:"path" jsonschema:"description=Directory to list."`
}

func listDirTool(env Environment) Tool {
	return Tool{
		Name:        "list_dir",
		Description: "List a directory's entries with sizes.",
		Parameters:  SchemaFor[listDirParams](),
		Danger:      DangerNone(),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			p, err := decodeArgs[listDirParams](args)
			if err != nil {
				return "", err
			}
			if p.Path == "" {
				p.Path = "."
			}
			return env.ListDirectory(p.Path)
		},
	}
}

type shellParams struct {
	Command   string `json:"command" jsonschema:"description=The command to run."`
	TimeoutMs int    `json:"timeout_ms,omitempty" jsonschema:"description=Override the default command timeout in milliseconds."`
}

func shellTool(env Environment) Tool {
	return Tool{
		Name:        "shell",
		Description: "Execute a shell command. Returns stdout, stderr, and exit code.",
		Parameters:  SchemaFor[shellParams](),
		Danger: DangerWhen(func(args map[string]any) (string, bool) {
			if cmd, ok := args["command"].(string); ok && cmd != "" {
				return fmt.Sprintf("Run: %s", cmd), true
			}
			return "", true
		}),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			p, err := decodeArgs[shellParams](args)
			if err != nil {
				return "", err
			}
			if p.Command == "" {
				return "", fmt.Errorf("command is required")
			}
			timeout := DefaultShellTimeout
			if p.TimeoutMs > 0 {
				timeout = time.Duration(p.TimeoutMs) * time.Millisecond
			}
			if timeout > MaxShellTimeout {
				timeout = MaxShellTimeout
			}

			result, err := env.RunCommand(ctx, p.Command, timeout)
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			sb.WriteString(result.Output())
			if result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[ERROR: Command timed out after %s. Partial output is shown above.\n"+
					"You can retry with a longer timeout by setting the timeout_ms parameter.]", timeout)
			}
			if result.ExitCode != 0 && !result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}
			return sb.String(), nil
		},
	}
}

type grepParams struct {
	Pattern         string `json:"pattern" jsonschema:"description=Regex pattern to search for."`
	Path            string `json:"path,omitempty" jsonschema:"description=Directory or file to search. Default: working directory."`
	GlobFilter      string `json:"glob_filter,omitempty" jsonschema:"description=File pattern filter (e.g. *.go)."`
	CaseInsensitive bool   `json:"case_insensitive,omitempty" jsonschema:"description=Case insensitive search. Default: false."`
	MaxResults      int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results. Default: 100."`
}

func grepTool(env Environment) Tool {
	return Tool{
		Name:        "grep",
		Description: "Search file contents using regex patterns. Returns matching lines with file paths and line numbers.",
		Parameters:  SchemaFor[grepParams](),
		Danger:      DangerNone(),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			p, err := decodeArgs[grepParams](args)
			if err != nil {
				return "", err
			}
			if p.Pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			if p.MaxResults <= 0 {
				p.MaxResults = 100
			}
			return env.Search(ctx, p.Pattern, p.Path, SearchOptions{
				GlobFilter:      p.GlobFilter,
				CaseInsensitive: p.CaseInsensitive,
				MaxResults:      p.MaxResults,
			})
		},
	}
}

type globParams struct {
	Pattern string `json:"pattern" jsonschema:"description=Glob pattern (e.g. **/*.go)."`
	Path    string `json:"path,omitempty" jsonschema:"description=Base directory. Default: working directory."`
}

func globTool(env Environment) Tool {
	return Tool{
		Name:        "glob",
		Description: "Find files matching a glob pattern.",
		Parameters:  SchemaFor[globParams](),
		Danger:      DangerNone(),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			p, err := decodeArgs[globParams](args)
			if err != nil {
				return "", err
			}
			if p.Pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			matches, err := env.Glob(p.Pattern, p.Path)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No files matched the pattern.", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	}
}
