// Package cmd implements the hubble command line interface.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jina-ai/hubble-go/pkg/api"
	"github.com/jina-ai/hubble-go/pkg/auth"
	"github.com/jina-ai/hubble-go/pkg/client"
	"github.com/jina-ai/hubble-go/pkg/config"
	"github.com/jina-ai/hubble-go/pkg/dockerauth"
	"github.com/jina-ai/hubble-go/pkg/keystore"
)

var (
	cfgFile string
	v       *viper.Viper
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "hubble",
	Short: "Hubble platform CLI",
	Long: `Hubble is the command line interface for the Jina AI platform: log in and
out, manage personal access tokens, and work with artifacts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(v, &cfg); err != nil {
			return err
		}
		// The SDK resolves the platform URL from the environment, so a
		// registry picked via flag or file is published there.
		if cfg.Registry != "" {
			os.Setenv(api.RegistryEnv, cfg.Registry)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./hubble.yaml)")

	v = config.InitViper()
	config.BindFlags(rootCmd, v)
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
}

// openStore opens the credential store at the configured root.
func openStore() (*keystore.Store, error) {
	return keystore.New(cfg.ConfigRoot)
}

// httpClient returns the shared HTTP client with the configured timeout.
func httpClient() *http.Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &http.Client{Timeout: timeout}
}

// newAuthenticator builds the login/logout orchestrator with the docker
// credential helper deployment as post-login hook.
func newAuthenticator(store *keystore.Store) *auth.Authenticator {
	return auth.NewAuthenticator(store,
		auth.WithCallbackPort(cfg.CallbackPort),
		auth.WithPostLoginHook(func(ctx context.Context, token string) {
			_ = dockerauth.Deploy(dockerauth.DefaultRegistries()...)
		}))
}

// newClient resolves the effective credential and builds a validated client.
func newClient(ctx context.Context) (*client.Client, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	credential, ok := auth.NewResolver(store).Current()
	if !ok {
		return nil, fmt.Errorf("not logged in, run 'hubble login' first")
	}
	return client.New(ctx, credential, client.WithHTTPClient(httpClient()))
}
