package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"ccsentinel/internal/claudecli"
	"ccsentinel/internal/logger"
	"ccsentinel/internal/models"
)

// commandRunner abstracts subprocess execution so tests can fake the CLI.
type commandRunner interface {
	Run(ctx context.Context, inv claudecli.Invocation, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, inv claudecli.Invocation, args ...string) ([]byte, error) {
	cmdArgs := append(append([]string{}, inv.Args...), args...)
	cmd := exec.CommandContext(ctx, inv.Command, cmdArgs...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = nil

	err := cmd.Run()
	return stdout.Bytes(), err
}

// fetchFromCLI runs the claude usage subcommand under the fixed timeout.
// Every failure mode (spawn error, timeout, non-zero exit, empty or
// malformed stdout) resolves to a nil snapshot, logged but never returned
// as an error. On timeout the context kills the process.
func (s *Service) fetchFromCLI(ctx context.Context, account *models.Account) *models.UsageSnapshot {
	runCtx, cancel := context.WithTimeout(ctx, s.cliTimeout)
	defer cancel()

	out, err := s.runner.Run(runCtx, s.invocation, "usage", "--output-format", "json")
	if err != nil {
		logger.Warn("claude usage command failed", "account", account.DisplayName(), "error", err)
		return nil
	}

	payload, err := parseCLIOutput(out)
	if err != nil {
		logger.Warn("failed to parse claude usage output", "account", account.DisplayName(), "error", err)
		return nil
	}

	return payload.toSnapshot(account, models.SourceCLI)
}

// parseCLIOutput extracts the usage JSON object from CLI stdout, tolerating
// banner lines or warnings around it.
func parseCLIOutput(out []byte) (*usagePayload, error) {
	start := bytes.IndexByte(out, '{')
	end := bytes.LastIndexByte(out, '}')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in CLI output (%d bytes)", len(out))
	}

	var payload usagePayload
	if err := json.Unmarshal(out[start:end+1], &payload); err != nil {
		return nil, fmt.Errorf("invalid usage JSON: %w", err)
	}
	if payload.FiveHour == nil && payload.SevenDay == nil {
		return nil, fmt.Errorf("usage JSON carried no quota windows")
	}

	return &payload, nil
}
