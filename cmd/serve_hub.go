package cmd

import (
	"github.com/spf13/cobra"

	"github.com/posturelab/posturehub/pkg/cmd/server"
)

// serveHubCmd represents the serve hub command
var serveHubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Serve the device hub instance (REST API and device connections)",
	Run:   server.RunServeHub(c),
}

func init() {
	serveCmd.AddCommand(serveHubCmd)
}
