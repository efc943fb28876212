package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pbosetti/mads-plugin/plugin"
)

func newDriversCommand(opts *options) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "drivers",
		Short: "List the registered drivers and the refused ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if server != "" {
				s, err := serverName(server)
				if err != nil {
					return err
				}
				server = s
			}
			h, err := newHost(cmd, opts, nil)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVER\tNAME\tVERSION\tSTATUS\tINPUT\tOUTPUT\tMODULE\tDESCRIPTION")
			for _, res := range h.loader.Modules() {
				for _, d := range res.Accepted {
					if server == "" || d.Server == server {
						printDriver(w, d, res.Module)
					}
				}
				for _, r := range res.Rejected {
					if server == "" || r.Driver.Server == server {
						printDriver(w, r.Driver, res.Module)
					}
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "", "Only list drivers of this role: source, filter or sink")
	return cmd
}

func printDriver(w *tabwriter.Writer, d plugin.Driver, module string) {
	fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
		d.Server, d.Name, d.Version, d.Compatibility(), dash(d.Input), dash(d.Output), module, d.Description)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
