// Package cli implements tripctl, a command line front end to the planning
// core for scripting and local debugging.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tripplanner/internal/config"
	"tripplanner/internal/integrations"
	"tripplanner/internal/llm"
	"tripplanner/internal/opt"
	"tripplanner/internal/suggest"
)

// App holds what the commands share.
type App struct {
	Config    config.Config
	Optimizer *opt.Optimizer
	Suggest   *suggest.Service
	// Places receives import-places rows when no database is configured.
	Places    integrations.Sink
	In        io.Reader
	Out       io.Writer
}

// NewApp wires an App from cfg. The suggestion cache is Redis when a Redis
// URL is configured, in-memory otherwise.
func NewApp(cfg config.Config) (*App, error) {
	var cache suggest.Cache = suggest.NewMemoryCache()
	if cfg.RedisURL != "" {
		rc, err := suggest.NewRedisCache(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		cache = rc
	}
	var client llm.Client
	if cfg.LLM.Endpoint != "" {
		lc := llm.DefaultConfig()
		lc.Endpoint, lc.Model = cfg.LLM.Endpoint, cfg.LLM.Model
		lc.TimeoutMs, lc.MaxRetries = cfg.LLM.TimeoutMs, cfg.LLM.MaxRetries
		client = llm.NewOllamaClient(lc, nil)
	}
	return &App{
		Config:    cfg,
		Optimizer: opt.New(cfg.Optimizer.MaxPasses, cfg.OptimizerBudget()),
		Suggest:   suggest.NewService(cache, client, cfg.SuggestTTL, cfg.ProviderRPS),
		In:        os.Stdin,
		Out:       os.Stdout,
	}, nil
}

// NewRootCmd creates the top-level "tripctl" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "tripctl",
		Short:         "Trip planning from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newOptimizeCmd(app),
		newScheduleCmd(app),
		newSuggestCmd(app),
		newTokenCmd(app),
		newMigrateCmd(app),
		newImportPlacesCmd(app),
		newVersionCmd(app),
	)

	return root
}

// readInput decodes JSON from path, or from app.In when path is "" or "-".
func readInput(app *App, path string, v any) error {
	var r io.Reader = app.In
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}

func printJSON(app *App, v any) error {
	enc := json.NewEncoder(app.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
