package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/jina-ai/hubble-go/pkg/auth"
)

var tokenExpireDays int

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage personal access tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a personal access token",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenCreate,
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List personal access tokens",
	Args:  cobra.NoArgs,
	RunE:  runTokenList,
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a personal access token",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenDelete,
}

func init() {
	tokenCreateCmd.Flags().IntVarP(&tokenExpireDays, "expire", "e", 30, "Days until the token expires")
	tokenCmd.AddCommand(tokenCreateCmd, tokenListCmd, tokenDeleteCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}

	pat, err := c.CreatePAT(cmd.Context(), args[0], tokenExpireDays)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("New token created")
	t.AppendRow(table.Row{text.Bold.Sprint(pat.Value)})
	t.AppendRow(table.Row{"You can set it as the env var " + auth.TokenEnv})
	t.AppendFooter(table.Row{"This token is only shown once!"})
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func runTokenList(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}

	pats, err := c.ListPATs(cmd.Context())
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Your Personal Access Tokens")
	t.AppendHeader(table.Row{"Name", "Type", "Created at", "Expire at", "Last use at"})
	for _, pat := range pats {
		t.AppendRow(table.Row{pat.Name, pat.Type, pat.CreatedAt, pat.ExpireAt, pat.UpdatedAt})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func runTokenDelete(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	if err := c.DeletePAT(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Println("Successfully deleted", args[0])
	return nil
}
