package toolbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// CommandResult holds one shell invocation's outcome.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Output returns combined stdout and stderr.
func (r CommandResult) Output() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// SearchOptions configures content search.
type SearchOptions struct {
	GlobFilter      string
	CaseInsensitive bool
	MaxResults      int
}

// Environment abstracts where the built-in tools operate, so runs can be
// pointed at a sandbox or remote worktree without changing the tools.
type Environment interface {
	ReadFile(path string, offset, limit int) (string, error)
	WriteFile(path string, content string) error
	ListDirectory(path string) (string, error)
	RunCommand(ctx context.Context, command string, timeout time.Duration) (*CommandResult, error)
	Search(ctx context.Context, pattern, path string, opts SearchOptions) (string, error)
	Glob(pattern, path string) ([]string, error)
	WorkingDirectory() string
}

// Local runs tools against the local filesystem and shell, rooted at a
// working directory that relative paths resolve against.
type Local struct {
	workingDir string
}

// NewLocal creates a local environment. An empty workingDir uses the
// process's current directory.
func NewLocal(workingDir string) *Local {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	return &Local{workingDir: workingDir}
}

func (e *Local) WorkingDirectory() string { return e.workingDir }

func (e *Local) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workingDir, path)
}

// ReadFile returns line-numbered content. offset is a 1-based starting
// line; limit bounds the number of lines, 0 meaning all.
func (e *Local) ReadFile(path string, offset, limit int) (string, error) {
	data, err := os.ReadFile(e.resolve(path))
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

// WriteFile writes content, creating parent directories as needed.
func (e *Local) WriteFile(path string, content string) error {
	resolved := e.resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("write_file: %w", err)
	}
	return os.WriteFile(resolved, []byte(content), 0o644)
}

// ListDirectory returns one entry per line, directories suffixed with a
// slash and files annotated with their size.
func (e *Local) ListDirectory(path string) (string, error) {
	entries, err := os.ReadDir(e.resolve(path))
	if err != nil {
		return "", fmt.Errorf("list_directory: %w", err)
	}

	var sb strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&sb, "%s/\n", entry.Name())
			continue
		}
		size := int64(0)
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&sb, "%s (%d bytes)\n", entry.Name(), size)
	}
	return sb.String(), nil
}

// RunCommand executes a shell command in the working directory under a
// filtered environment. The command runs in its own process group so a
// timeout can kill the whole tree.
func (e *Local) RunCommand(ctx context.Context, command string, timeout time.Duration) (*CommandResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, shellArg := "/bin/bash", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = e.workingDir
	cmd.Env = filterEnvironment()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("run command: %w", err)
		}
	}
	return result, nil
}

// Search runs content search over path, preferring ripgrep and falling
// back to grep when it is unavailable.
func (e *Local) Search(ctx context.Context, pattern, path string, opts SearchOptions) (string, error) {
	if path == "" {
		path = e.workingDir
	} else {
		path = e.resolve(path)
	}

	rgPath, err := exec.LookPath("rg")
	if err != nil {
		return e.grepFallback(ctx, pattern, path, opts)
	}

	args := []string{pattern, path, "--line-number", "--no-heading"}
	if opts.CaseInsensitive {
		args = append(args, "-i")
	}
	if opts.GlobFilter != "" {
		args = append(args, "--glob", opts.GlobFilter)
	}
	if opts.MaxResults > 0 {
		args = append(args, "--max-count", fmt.Sprintf("%d", opts.MaxResults))
	}

	cmd := exec.CommandContext(ctx, rgPath, args...)
	cmd.Dir = e.workingDir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	// rg exits 1 on no matches; empty output is the answer.
	_ = cmd.Run()
	return stdout.String(), nil
}

func (e *Local) grepFallback(ctx context.Context, pattern, path string, opts SearchOptions) (string, error) {
	args := []string{"-rn", pattern, path}
	if opts.CaseInsensitive {
		args = append([]string{"-i"}, args...)
	}
	cmd := exec.CommandContext(ctx, "grep", args...)
	cmd.Dir = e.workingDir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()
	return stdout.String(), nil
}

// Glob matches files under path, returning paths relative to the working
// directory when possible.
func (e *Local) Glob(pattern, path string) ([]string, error) {
	if path == "" {
		path = e.workingDir
	} else {
		path = e.resolve(path)
	}

	matches, err := filepath.Glob(filepath.Join(path, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}

	result := make([]string, len(matches))
	for i, m := range matches {
		if rel, err := filepath.Rel(e.workingDir, m); err == nil {
			result[i] = rel
		} else {
			result[i] = m
		}
	}
	return result, nil
}

// sensitiveEnvSuffixes are case-insensitive name suffixes excluded from
// tool subprocess environments.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always passed through regardless of suffix matching.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}
