package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the account behind the active credential",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}

	profile, err := c.UserInfo(cmd.Context())
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendRow(table.Row{"ID", profile.ID})
	t.AppendRow(table.Row{"Nickname", profile.Nickname})
	t.AppendRow(table.Row{"Name", profile.Name})
	t.AppendRow(table.Row{"Email", profile.Email})
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}
