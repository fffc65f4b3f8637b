package cli

import (
	"github.com/spf13/cobra"

	"github.com/rpattn/tabimport/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the import API over HTTP",
	Long: `Serve the import API until interrupted.

Examples:
  tabimport serve --addr :8080
  tabimport serve --memory`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sc := cfg.Server
		if serveAddr != "" {
			sc.Addr = serveAddr
		}
		return server.Run(cmd.Context(), server.New(service, sc, logger), logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}
