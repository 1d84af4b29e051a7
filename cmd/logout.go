package cmd

import (
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and clear the cached credential",
	Long: `Dismiss the server-side session and remove the locally cached credential.
A credential supplied via the environment is never touched.`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	return newAuthenticator(store).Logout(cmd.Context())
}
