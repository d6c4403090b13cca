package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/encoding"
	"github.com/couchcryptid/carbon-emission-etl/internal/tabular"
)

type encodingsOptions struct {
	in      string
	columns []string
	format  string
}

func newEncodingsCommand(opts *rootOptions) *cobra.Command {
	e := &encodingsOptions{}
	cmd := &cobra.Command{
		Use:   "encodings vehicle|industry",
		Short: "Fit category encodings from a labelled table",
		Long: `encodings fits one label encoder per categorical column of a labelled
table, with classes in lexical order as the training side assigns them, and
prints the result as the "encodings" block of a model artifact. The input
defaults to the configured raw input path of the domain.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domain.ParseDomain(args[0])
			if err != nil {
				return err
			}
			if e.format != "json" && e.format != "table" {
				return fmt.Errorf("unsupported format %q (want json or table)", e.format)
			}
			in := e.in
			if in == "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				in = cfg.VehicleInputPath
				if d == domain.Industry {
					in = cfg.IndustryInputPath
				}
			}
			table, err := tabular.ReadFile(in)
			if err != nil {
				return err
			}
			enc, err := fitEncodings(d, table, trimAll(e.columns))
			if err != nil {
				return err
			}
			if e.format == "table" {
				return printEncodings(cmd.OutOrStdout(), enc)
			}
			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			return out.Encode(map[string]map[string][]string{"encodings": enc.Classes()})
		},
	}
	cmd.Flags().StringVar(&e.in, "in", "", "labelled CSV (default: the configured input path)")
	cmd.Flags().StringSliceVar(&e.columns, "columns", nil, "categorical columns to fit (default: every categorical column)")
	cmd.Flags().StringVar(&e.format, "format", "json", "output format: json or table")
	return cmd
}

// fitEncodings validates table against the schema of d and fits the selected
// categorical columns.
func fitEncodings(d domain.Domain, table domain.Table, columns []string) (encoding.Table, error) {
	schema, err := domain.SchemaFor(d)
	if err != nil {
		return nil, err
	}
	var categorical []string
	for _, c := range schema.Columns {
		if c.Kind == domain.KindCategorical {
			categorical = append(categorical, c.Name)
		}
	}
	if len(columns) == 0 {
		columns = categorical
	}
	for _, c := range columns {
		if !slices.Contains(categorical, c) {
			return nil, fmt.Errorf("column %q is not a categorical %s column", c, d)
		}
	}

	records, err := domain.ParseRecords(schema, table)
	if err != nil {
		return nil, err
	}
	values := make(map[string][]string, len(columns))
	for _, rec := range records {
		for _, c := range columns {
			v, _ := rec.Value(c)
			values[c] = append(values[c], v)
		}
	}
	return encoding.FitTable(values)
}

func printEncodings(w io.Writer, t encoding.Table) error {
	columns := make([]string, 0, len(t))
	for c := range t {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "column\tcode\tclass")
	for _, c := range columns {
		enc := t[c]
		for code := range len(enc.Classes()) {
			class, err := enc.Decode(code)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\n", c, code, class)
		}
	}
	return tw.Flush()
}
