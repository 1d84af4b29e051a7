package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/jina-ai/hubble-go/pkg/dockerauth"
)

var dockerauthCmd = &cobra.Command{
	Use:    "dockerauth ACTION [REGISTRY]",
	Short:  "Docker credential helper entry point",
	Long:   `Implements the docker credential helper protocol. The get action prints credentials for a registry; deploy registers the helper in the docker config.`,
	Hidden: true,
	Args:   cobra.RangeArgs(1, 2),
	RunE:   runDockerauth,
}

func init() {
	rootCmd.AddCommand(dockerauthCmd)
}

func runDockerauth(cmd *cobra.Command, args []string) error {
	registry := ""
	if len(args) > 1 {
		registry = args[1]
	}

	switch args[0] {
	case "get":
		store, err := openStore()
		if err != nil {
			return err
		}
		creds := dockerauth.GetCredentials(store, registry)
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(creds)
	case "deploy":
		if registry == "" {
			return dockerauth.Deploy(dockerauth.DefaultRegistries()...)
		}
		return dockerauth.Deploy(registry)
	default:
		// store and erase are accepted no-ops per the helper protocol.
		return nil
	}
}
