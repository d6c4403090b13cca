package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/carbon-emission-etl/internal/adapter/geotable"
	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/synth"
	"github.com/couchcryptid/carbon-emission-etl/internal/tabular"
)

type generateOptions struct {
	count      int
	seed       int64
	withTarget bool
	out        string
	cities     []string
	progress   bool
}

func newGenerateCommand(opts *rootOptions) *cobra.Command {
	g := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate vehicle|industry",
		Short: "Write a synthetic raw input table",
		Long: `generate writes random records in the raw layout of a domain. The output
defaults to the configured input path of the domain, so "generate vehicle"
followed by "run vehicle" scores fresh data. City names come from --cities
or, when unset, from the configured city table.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domain.ParseDomain(args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			out := g.out
			if out == "" {
				out = cfg.VehicleInputPath
				if d == domain.Industry {
					out = cfg.IndustryInputPath
				}
			}
			cities := trimAll(g.cities)
			if len(cities) == 0 {
				table, err := geotable.Load(cfg.GeocoderTablePath)
				if err != nil {
					return fmt.Errorf("load city names: %w", err)
				}
				cities = table.Cities()
			}

			so := synth.Options{Count: g.count, Seed: g.seed, WithTarget: g.withTarget, Cities: cities}
			if g.progress {
				so.Progress = cmd.ErrOrStderr()
			}
			table, err := synth.Generate(d, so)
			if err != nil {
				return err
			}
			if err := writeTable(out, table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d %s to %s\n", len(table.Rows), d.Plural(), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&g.count, "count", synth.DefaultCount, "number of records")
	cmd.Flags().Int64Var(&g.seed, "seed", 42, "random seed; equal seeds produce equal tables")
	cmd.Flags().BoolVar(&g.withTarget, "with-target", false, "append the ground-truth CO2 column")
	cmd.Flags().StringVar(&g.out, "out", "", "output CSV path (default: the configured input path)")
	cmd.Flags().StringSliceVar(&g.cities, "cities", nil, "comma separated city names")
	cmd.Flags().BoolVar(&g.progress, "progress", false, "show a progress bar on stderr")
	return cmd
}

func writeTable(path string, table domain.Table) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := tabular.Write(f, table); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
