package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/carbon-emission-etl/internal/adapter/filestore"
	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

func newResultsCommand(opts *rootOptions) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "results vehicle|industry",
		Short: "Print the committed results of a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domain.ParseDomain(args[0])
			if err != nil {
				return err
			}
			if top < 0 {
				return fmt.Errorf("--top must not be negative, got %d", top)
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store := filestore.New(map[domain.Domain]filestore.Paths{
				domain.Vehicle:  {Input: cfg.VehicleInputPath, Results: cfg.VehicleResultsPath},
				domain.Industry: {Input: cfg.IndustryInputPath, Results: cfg.IndustryResultsPath},
			})
			table, err := store.ReadResults(d)
			if err != nil {
				return err
			}
			return printResults(cmd.OutOrStdout(), d, table, top)
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "show the N highest emitters; 0 lists every record in file order")
	return cmd
}

// printResults writes id, city, prediction and status of the selected rows as
// an aligned table.
func printResults(w io.Writer, d domain.Domain, table domain.Table, top int) error {
	schema, err := domain.SchemaFor(d)
	if err != nil {
		return err
	}
	cols := []string{schema.IDColumn(), schema.CityColumn(), domain.ColumnPredicted, domain.ColumnStatus}
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, ok := table.ColumnIndex(c)
		if !ok {
			return fmt.Errorf("results of %s lack column %q: %w", d, c, domain.ErrInputMalformed)
		}
		idx[i] = j
	}

	rows := table.Rows
	if top > 0 {
		predIdx := idx[2]
		rows = append([][]string(nil), rows...)
		sort.SliceStable(rows, func(a, b int) bool {
			return parseCO2(rows[a], predIdx) > parseCO2(rows[b], predIdx)
		})
		if len(rows) > top {
			rows = rows[:top]
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cols[0], cols[1], cols[2], cols[3])
	for _, row := range rows {
		cells := make([]any, len(idx))
		for i, j := range idx {
			if j < len(row) {
				cells[i] = row[j]
			} else {
				cells[i] = ""
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cells...)
	}
	return tw.Flush()
}

func parseCO2(row []string, i int) float64 {
	if i >= len(row) {
		return 0
	}
	v, err := strconv.ParseFloat(row[i], 64)
	if err != nil {
		return 0
	}
	return v
}
