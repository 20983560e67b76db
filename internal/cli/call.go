package cli

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/birbparty/birb-call/sdk"
	"github.com/spf13/cobra"
)

func newCallCommand(a *app) *cobra.Command {
	var (
		vars    []string
		headers []string
		data    string
	)

	cmd := &cobra.Command{
		Use:   "call <verb> <route>",
		Short: "Call an endpoint and print the response",
		Long: `Call sends one request. Route placeholders such as {id} are filled from
--var. PUT and POST_JSON send --data as the JSON body.

If the server answers 401 and a refresh token is configured, the token is
refreshed and the call is replayed before the response is printed.`,
		Example: `  birbcall call GET /items/{id} --var id=42
  birbcall call POST_JSON /items --data '{"name":"feeder"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			verb, err := sdk.ParseVerb(args[0])
			if err != nil {
				return err
			}
			if verb == sdk.PostForm {
				return fmt.Errorf("use 'birbcall upload' for POST_FORM")
			}
			route := args[1]

			pathVars, err := parseKeyValues(vars, "var")
			if err != nil {
				return err
			}
			hdrs, err := parseKeyValues(headers, "header")
			if err != nil {
				return err
			}

			opts := []sdk.CallOption{sdk.WithPathVariables(pathVars), sdk.WithHeaders(hdrs)}
			if data != "" {
				var payload interface{}
				if err := json.Unmarshal([]byte(data), &payload); err != nil {
					return fmt.Errorf("invalid --data: %w", err)
				}
				opts = append(opts, sdk.WithPayload(payload))
			}

			ctx := cmd.Context()
			s, err := newSession(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer s.close()

			var (
				mu        sync.Mutex
				responses []*sdk.Response
			)
			s.client.Define(route, func(resp *sdk.Response) {
				mu.Lock()
				defer mu.Unlock()
				responses = append(responses, resp)
			}, verb)

			if _, err := s.client.Call(ctx, route, verb, opts...); err != nil {
				return err
			}
			if err := s.finish(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			mu.Lock()
			defer mu.Unlock()
			for _, resp := range responses {
				fmt.Fprintf(out, "%s %s -> %d\n", verb.Method(), resp.URL, resp.StatusCode)
				if len(resp.Body) > 0 {
					fmt.Fprintln(out, prettyJSON(resp.Body))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "Path variable as name=value (repeatable)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Request header as name=value (repeatable)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")

	return cmd
}
