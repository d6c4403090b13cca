// Package cli implements the carbon command line: the HTTP service, one-shot
// scoring runs, result inspection and synthetic input generation.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/carbon-emission-etl/internal/app"
	"github.com/couchcryptid/carbon-emission-etl/internal/config"
	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/observability"
)

// newMetrics is replaced in tests, where the default registry would reject
// a second registration.
var newMetrics = observability.NewMetrics

type rootOptions struct {
	configFile string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "carbon",
		Short: "Scores vehicle and industry CO2 emissions",
		Long: `carbon predicts CO2 emissions for vehicle fleets and industrial facilities,
flags records above a domain threshold and serves the results over HTTP.

Every setting is read from the environment (e.g. VEHICLE_THRESHOLD=130) or
from the file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML or JSON config file")

	cmd.AddCommand(
		newServeCommand(opts),
		newRunCommand(opts),
		newResultsCommand(opts),
		newGenerateCommand(opts),
		newEncodingsCommand(opts),
	)
	return cmd
}

// Execute runs the command line against args.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildApp loads configuration and wires the service with logs on w.
func (o *rootOptions) buildApp(ctx context.Context, w io.Writer) (*app.App, *slog.Logger, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(w, cfg.LogLevel, cfg.LogFormat)
	a, err := app.New(ctx, cfg, logger, newMetrics())
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

// parseDomains maps arguments to domains; no arguments selects every domain.
func parseDomains(args []string) ([]domain.Domain, error) {
	if len(args) == 0 {
		return domain.All(), nil
	}
	out := make([]domain.Domain, 0, len(args))
	for _, a := range args {
		d, err := domain.ParseDomain(a)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
