// Command conductor runs one agent task from the terminal: it loads
// configuration, wires a model provider and the built-in tools, then
// streams the run while checkpointing task state to disk.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/martinemde/conductor/agentloop"
	"github.com/martinemde/conductor/config"
	"github.com/martinemde/conductor/llmclient"
	"github.com/martinemde/conductor/statestore"
	"github.com/martinemde/conductor/toolbox"
)

const agentName = "conductor"
const agentVersion = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.conductor/config.yaml)")
	flag.Parse()

	task := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if task == "" {
		fmt.Fprintln(os.Stderr, "usage: conductor [-config path] <task description>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "conductor: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	if err := run(cfg, log, task); err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, task string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	var confirmer toolbox.Confirmer
	if !cfg.AutoApprove {
		confirmer = &terminalConfirmer{in: bufio.NewReader(os.Stdin), out: os.Stderr}
	}

	registry := toolbox.NewRegistry(confirmer)
	env := toolbox.NewLocal(cfg.WorkingDir)
	if err := toolbox.RegisterCoreTools(registry, env); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	runner := agentloop.NewRunner(provider, registry, agentloop.Config{
		Model:            cfg.Model,
		SystemPrompt:     systemPrompt(cfg),
		MaxIterations:    cfg.MaxIterations,
		MaxContextTokens: cfg.MaxContextTokens,
		DetectRepeats:    true,
	})
	runner.SetLogger(log)
	defer runner.Close()
	go drainEvents(runner.Events(), log)

	store := statestore.New(log)
	state := newState(task)
	checkpoint(store, cfg.StatePath, state, log)

	state.Status = statestore.StatusInProgress
	checkpoint(store, cfg.StatePath, state, log)

	var runErr error
	for update := range runner.RunStreaming(ctx, task) {
		if update.Content != "" {
			fmt.Print(update.Content)
		}
		if update.Done {
			fmt.Println()
			runErr = update.Err
		}
	}

	if runErr != nil {
		state.Status = statestore.StatusFailed
		state.Errors = append(state.Errors, statestore.StateError{
			Timestamp: time.Now().UTC(),
			Message:   runErr.Error(),
			Fatal:     true,
		})
		checkpoint(store, cfg.StatePath, state, log)
		return runErr
	}

	state.Status = statestore.StatusCompleted
	state.Results.Build = lastAssistantText(runner)
	checkpoint(store, cfg.StatePath, state, log)
	return nil
}

func buildProvider(cfg *config.Config) (llmclient.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return llmclient.NewOpenAIProvider(llmclient.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		}), nil
	case "gollm":
		return llmclient.NewGollmProvider("openai", cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func systemPrompt(cfg *config.Config) string {
	if cfg.SystemPrompt != "" {
		return cfg.SystemPrompt
	}
	return "You are a coding assistant working in " + cfg.WorkingDir + ". " +
		"Use the available tools to inspect and modify the project, then give a concise final answer."
}

func newState(task string) *statestore.StateFile {
	return &statestore.StateFile{
		Metadata: statestore.Metadata{
			AgentName:           agentName,
			AgentVersion:        agentVersion,
			InvocationTimestamp: time.Now().UTC(),
		},
		Phase:           statestore.PhaseBuild,
		TaskDescription: task,
		Status:          statestore.StatusPending,
	}
}

// checkpoint persists task state best-effort; a checkpoint failure must not
// kill the run it describes.
func checkpoint(store *statestore.Store, path string, state *statestore.StateFile, log *slog.Logger) {
	if err := store.Write(path, state); err != nil {
		log.Warn("state checkpoint failed", "path", path, "error", err)
	}
}

func drainEvents(events <-chan agentloop.Event, log *slog.Logger) {
	for event := range events {
		switch event.Kind {
		case agentloop.EventToolCallStart:
			log.Info("tool call", "tool", event.Data["tool_name"], "call_id", event.Data["call_id"])
		case agentloop.EventWarning, agentloop.EventRepeatWarning:
			log.Warn("loop warning", "data", event.Data)
		case agentloop.EventError:
			log.Error("loop error", "data", event.Data)
		default:
			log.Debug("event", "kind", string(event.Kind), "data", event.Data)
		}
	}
}

func lastAssistantText(runner *agentloop.Runner) string {
	history := runner.History()
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == llmclient.RoleAssistant && history[i].Content != "" {
			return history[i].Content
		}
	}
	return ""
}

// terminalConfirmer implements the confirmation protocol on the terminal:
// it lists every dangerous call and accepts "y" (approve all), "n" (deny
// all), or the number of a single call to allow.
type terminalConfirmer struct {
	in  *bufio.Reader
	out *os.File
}

func (c *terminalConfirmer) Confirm(ctx context.Context, req toolbox.ConfirmationRequest) (toolbox.ConfirmationResult, error) {
	fmt.Fprintln(c.out, "\nThe following actions need approval:")
	for i, item := range req.Items {
		fmt.Fprintf(c.out, "  [%d] %s\n", i, item.Description)
	}
	fmt.Fprint(c.out, "Approve? [y = all / n = none / number = just that one]: ")

	answerCh := make(chan string, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		if err != nil {
			answerCh <- ""
			return
		}
		answerCh <- strings.TrimSpace(line)
	}()

	select {
	case <-ctx.Done():
		return toolbox.DenyAll(), ctx.Err()
	case answer := <-answerCh:
		switch strings.ToLower(answer) {
		case "y", "yes":
			return toolbox.ApproveAll(), nil
		case "n", "no", "":
			return toolbox.DenyAll(), nil
		default:
			idx, err := strconv.Atoi(answer)
			if err != nil || idx < 0 || idx >= len(req.Items) {
				return toolbox.DenyAll(), nil
			}
			return toolbox.ApproveOne(idx), nil
		}
	}
}
