package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run [vehicle|industry]...",
		Short: "Score the raw input of each domain once and exit",
		Long: `run scores the given domains, or every domain when none is named, and
commits their result tables. It exits non-zero when any run fails; the
other domains are still scored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			domains, err := parseDomains(args)
			if err != nil {
				return err
			}
			a, _, err := opts.buildApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			var errs []error
			for _, d := range domains {
				ctx, cancel := context.WithTimeout(cmd.Context(), a.Config.RunTimeout)
				res, err := a.Pipeline.Run(ctx, d)
				cancel()
				if err != nil {
					fmt.Fprintf(out, "%s: failed: %v\n", d, err)
					errs = append(errs, fmt.Errorf("%s: %w", d, err))
					continue
				}
				path, _ := a.Store.ResultsPath(d)
				fmt.Fprintf(out, "%s: %d records, %d high, %d safe, %d skipped, %d cities unresolved -> %s (run %s)\n",
					d, res.Records, res.High, res.Safe, res.Skipped, len(res.GeocodeFailures), path, res.RunID)
			}
			return errors.Join(errs...)
		},
	}
}
