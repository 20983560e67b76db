package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newEndpointsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List the endpoints declared in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer s.close()

			endpoints := s.client.Registry().Endpoints()
			if len(endpoints) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no endpoints declared")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERB\tMETHOD\tROUTE")
			for _, ep := range endpoints {
				fmt.Fprintf(w, "%s\t%s\t%s\n", ep.Verb, ep.Verb.Method(), ep.Route)
			}
			return w.Flush()
		},
	}
}
