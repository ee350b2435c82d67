package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/app"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/config"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/spf13/cobra"
)

type commandContext struct {
	envFlag *string

	once     sync.Once
	infra    *app.Infra
	services *app.Services
	err      error
}

// configure loads the env file once. Commands that only need the database
// stop here.
func (c *commandContext) configure() (*config.Config, error) {
	if err := config.Load(strings.TrimSpace(*c.envFlag)); err != nil {
		return nil, err
	}
	cfg := config.Get()
	if err := logger.Setup(cfg.AppEnv, cfg.LogLevel, cfg.AppName+"-cli"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *commandContext) ensureServices() (*app.Services, error) {
	c.once.Do(func() {
		var cfg *config.Config
		if cfg, c.err = c.configure(); c.err != nil {
			return
		}
		if c.infra, c.err = app.Connect(cfg); c.err != nil {
			return
		}
		c.services, c.err = app.Build(cfg, c.infra)
	})
	return c.services, c.err
}

func (c *commandContext) close() {
	if c.services != nil {
		c.services.Close()
	}
}

func newRootCommand() *cobra.Command {
	var envFlag string
	ctx := &commandContext{envFlag: &envFlag}

	rootCmd := &cobra.Command{
		Use:           "arcanum",
		Short:         "Arcanum operations CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFlag, "env", "", "Path to an env file")

	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newReconcileCommand(ctx))
	rootCmd.AddCommand(newBalanceCommand(ctx))
	rootCmd.AddCommand(newGrantCommand(ctx))
	rootCmd.AddCommand(newUnlimitedCommand(ctx))
	rootCmd.AddCommand(newQueueStatsCommand(ctx))
	return rootCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
