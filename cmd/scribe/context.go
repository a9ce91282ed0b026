package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"scribe/internal/checkpoint"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/runs"
	"scribe/internal/services"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "config", "load", "", err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// newCommandLogger builds the command logger, writing console output to the command's
// stderr so tests can capture it.
func newCommandLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	opts := logging.ConfigOptions(cfg)
	opts.Writer = cmd.ErrOrStderr()
	return logging.New(opts)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// exitCode maps a command error onto the process exit status: 2 for
// configuration and validation problems, 130 for interruption, 1 otherwise.
func exitCode(err error) int {
	var stageErr *pipeline.StageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInterrupted):
		return 130
	case errors.As(err, &stageErr):
		return 1
	case errors.Is(err, services.ErrConfiguration), errors.Is(err, services.ErrValidation):
		return 2
	default:
		return 1
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// openRegistry opens the run registry and flags RUNNING runs whose lock is
// no longer held as interrupted.
func openRegistry(cmd *cobra.Command, cfg *config.Config) (*runs.Registry, error) {
	registry, err := runs.Open(cfg.RegistryPath())
	if err != nil {
		return nil, fmt.Errorf("open run registry: %w", err)
	}
	if _, err := registry.MarkInterrupted(cmd.Context(), func(runID string) bool {
		return checkpoint.Held(cfg.Paths.StateDir, runID)
	}); err != nil {
		_ = registry.Close()
		return nil, err
	}
	return registry, nil
}
