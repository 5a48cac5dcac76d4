package ai

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// ModelLister enumerates installed models. Listers are evaluated in
// priority order; the first one returning a non-empty list wins.
type ModelLister interface {
	Name() string
	ListModels(ctx context.Context) ([]string, error)
}

// APIModelLister queries the backend's structured tags endpoint.
type APIModelLister struct {
	client *OllamaClient
}

// NewAPIModelLister builds the primary discovery strategy.
func NewAPIModelLister(client *OllamaClient) *APIModelLister {
	return &APIModelLister{client: client}
}

func (l *APIModelLister) Name() string { return "api" }

func (l *APIModelLister) ListModels(ctx context.Context) ([]string, error) {
	return l.client.Tags(ctx)
}

// CLIModelLister shells out to `ollama list` and parses its table output.
// It is the fallback when the HTTP API is unreachable or returns nothing.
type CLIModelLister struct {
	command string
	run     func(ctx context.Context, command string) ([]byte, error)
}

// NewCLIModelLister builds the fallback discovery strategy.
func NewCLIModelLister(command string) *CLIModelLister {
	command = strings.TrimSpace(command)
	if command == "" {
		command = "ollama"
	}
	return &CLIModelLister{
		command: command,
		run: func(ctx context.Context, command string) ([]byte, error) {
			return exec.CommandContext(ctx, command, "list").Output()
		},
	}
}

func (l *CLIModelLister) Name() string { return "cli" }

func (l *CLIModelLister) ListModels(ctx context.Context) ([]string, error) {
	out, err := l.run(ctx, l.command)
	if err != nil {
		return nil, fmt.Errorf("run %s list: %w", l.command, err)
	}
	return parseCLIModelList(string(out)), nil
}

var cliColumnSplit = regexp.MustCompile(`\s{2,}`)

// parseCLIModelList extracts the NAME column from `ollama list` output,
// skipping the header row.
func parseCLIModelList(out string) []string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return nil
	}
	names := make([]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		parts := cliColumnSplit.Split(strings.TrimSpace(line), -1)
		if len(parts) == 0 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
