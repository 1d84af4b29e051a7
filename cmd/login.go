package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/jina-ai/hubble-go/pkg/auth"
)

var (
	loginForce    bool
	loginProvider string
	loginCallback bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the platform",
	Long: `Log in via the browser. With an existing valid session this is a no-op;
use --force to start a fresh login regardless.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVarP(&loginForce, "force", "f", false, "Log in even if a valid session exists")
	loginCmd.Flags().StringVar(&loginProvider, "provider", "", "Identity provider to log in with")
	loginCmd.Flags().BoolVar(&loginCallback, "local-callback", false, "Use a local callback server instead of the event stream")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	authenticator := newAuthenticator(store)

	opts := auth.LoginOptions{
		Force:    loginForce,
		Provider: loginProvider,
	}

	spin := spinner.New(spinner.CharSets[11], 100*time.Millisecond,
		spinner.WithSuffix(" Waiting for browser login..."))
	spin.Start()
	defer spin.Stop()

	var result *auth.LoginResult
	if loginCallback {
		result, err = authenticator.LoginWithLocalCallback(cmd.Context(), opts)
	} else {
		result, err = authenticator.Login(cmd.Context(), opts)
	}
	spin.Stop()
	if err != nil {
		return err
	}

	if !result.Performed && result.Token == "" {
		return fmt.Errorf("login did not complete, try again")
	}
	return nil
}
