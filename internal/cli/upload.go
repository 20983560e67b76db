package cli

import (
	"fmt"
	"sort"
	"sync"

	"github.com/birbparty/birb-call/sdk"
	"github.com/spf13/cobra"
)

func newUploadCommand(a *app) *cobra.Command {
	var (
		files  []string
		fields []string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "upload <route>",
		Short: "Upload files as a multipart form with a progress line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return fmt.Errorf("at least one --file is required")
			}
			route := args[0]

			values, err := parseKeyValues(fields, "field")
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			var parts []sdk.FormPart
			for _, k := range keys {
				parts = append(parts, sdk.TextField(k, values[k]))
			}
			attached := make([]sdk.File, 0, len(files))
			for _, path := range files {
				f, err := sdk.FileFromPath(path)
				if err != nil {
					return err
				}
				attached = append(attached, f)
			}
			parts = append(parts, sdk.FileField(name, attached...))
			form := sdk.NewForm(parts...)

			ctx := cmd.Context()
			s, err := newSession(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer s.close()

			var (
				mu       sync.Mutex
				response *sdk.Response
			)
			s.client.Define(route, func(resp *sdk.Response) {
				mu.Lock()
				defer mu.Unlock()
				response = resp
			}, sdk.PostForm)

			progress := cmd.ErrOrStderr()
			_, err = s.client.Call(ctx, route, sdk.PostForm,
				sdk.WithPayload(form),
				sdk.WithProgress(func(p sdk.Progress) {
					fmt.Fprintf(progress, "\ruploading %5.1f%% (%d/%d bytes)", p.Percent, p.Loaded, p.Total)
				}))
			if err != nil {
				return err
			}
			err = s.finish()
			fmt.Fprintln(progress)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if response != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "POST %s -> %d\n", response.URL, response.StatusCode)
				if len(response.Body) > 0 {
					fmt.Fprintln(out, prettyJSON(response.Body))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "File to attach (repeatable)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Form field as name=value (repeatable)")
	cmd.Flags().StringVar(&name, "name", "attachment", "Form field name for the files")

	return cmd
}
