// ABOUTME: list command
// ABOUTME: Prints every registered codec
package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type listOptions struct {
	OutputFormat string
}

type codecEntry struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Kind string `json:"kind"`
}

// NewListCommand lists the codec registry
func NewListCommand(a *app) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered codecs",
		Example: `  codecbridge list
  codecbridge list --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (json or text)")
	return cmd
}

func runList(cmd *cobra.Command, opts *listOptions) error {
	infos := codec.List()
	entries := make([]codecEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, codecEntry{Name: info.Name, Mime: info.Mime, Kind: info.Kind.String()})
	}

	out := cmd.OutOrStdout()
	switch opts.OutputFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text":
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMIME\tKIND")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.Mime, e.Kind)
		}
		return w.Flush()
	default:
		return errors.Errorf("unknown output format %q", opts.OutputFormat)
	}
}
