package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

func newDescribeCommand(opts *options) *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "describe SERVER NAME",
		Short: "Instantiate a driver and print its info and effective parameters",
		Long: `Describe creates one instance of a driver, applies the given parameters over
its defaults and prints what the instance reports: its info, its last error and
the effective parameters.

Example:
  madsplug describe filter runavg
  madsplug describe sink file --params '{"format": "json"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := serverName(args[0])
			if err != nil {
				return err
			}
			p, err := params.FromJSON([]byte(raw))
			if err != nil {
				return fmt.Errorf("invalid --params: %w", err)
			}
			h, err := newHost(cmd, opts, nil)
			if err != nil {
				return err
			}
			d, ok := h.registry.Lookup(server, args[1])
			if !ok {
				return fmt.Errorf("driver %s/%s not found", server, args[1])
			}
			instance, err := h.registry.Create(server, args[1])
			if err != nil {
				return err
			}
			if c, ok := instance.(plugin.Closer); ok {
				defer func() { _ = c.Close() }()
			}
			instance.SetParams(p)

			info := instance.Info()
			doc := map[string]any{
				"server":      d.Server,
				"name":        d.Name,
				"version":     d.Version,
				"description": d.Description,
				"kind":        instance.Kind(),
				"last_error":  instance.LastError(),
				"info":        info,
			}
			if c, ok := instance.(plugin.Configurable); ok {
				eff := c.Params()
				doc["params"] = map[string]any(eff)
				if err := eff.Validate(d.Schema); err != nil {
					doc["schema_error"] = err.Error()
				}
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			h.logger.Debug("Described driver", "server", server, "name", args[1],
				"info_keys", slices.Sorted(maps.Keys(info)))
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&raw, "params", "", "JSON object merged over the driver defaults")
	return cmd
}
