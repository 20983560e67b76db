package cli

import (
	"fmt"

	"github.com/birbparty/birb-call/sdk"
	"github.com/spf13/cobra"
)

func newDownloadCommand(a *app) *cobra.Command {
	var (
		dir      string
		filename string
	)

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download a file using the configured bearer token",
		Long: `Download fetches url, absolute or relative to the base URL, and saves it
under the name given by Content-Disposition, --name, or "download".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := newSession(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer s.close()

			// Download returns the error as well; onError keeps it out of
			// the log since the command reports it.
			result, err := s.client.Download(ctx, sdk.DownloadRequest{
				URL:      args[0],
				Dir:      dir,
				Filename: filename,
			}, func(error) {})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes, %s)\n", result.Path, result.Size, result.MIMEType)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to save into (overrides download.dir)")
	cmd.Flags().StringVar(&filename, "name", "", "Filename when the server does not send one")

	return cmd
}
