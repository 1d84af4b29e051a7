package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jina-ai/hubble-go/pkg/client"
)

var (
	artifactID      string
	artifactMeta    string
	artifactPublic  bool
	artifactDestDir string
)

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Manage artifacts",
}

var artifactUploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload a file as an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactUpload,
}

var artifactDownloadCmd = &cobra.Command{
	Use:   "download ID",
	Short: "Download an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactDownload,
}

var artifactInfoCmd = &cobra.Command{
	Use:   "info ID",
	Short: "Show artifact details",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactInfo,
}

var artifactDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactDelete,
}

var artifactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifacts",
	Args:  cobra.NoArgs,
	RunE:  runArtifactList,
}

func init() {
	artifactUploadCmd.Flags().StringVar(&artifactID, "id", "", "Replace the artifact with this id")
	artifactUploadCmd.Flags().StringVar(&artifactMeta, "metadata", "", "Artifact metadata as a JSON object")
	artifactUploadCmd.Flags().BoolVar(&artifactPublic, "public", false, "Make the artifact world-readable")
	artifactDownloadCmd.Flags().StringVarP(&artifactDestDir, "output", "o", ".", "Directory to download into")
	artifactCmd.AddCommand(artifactUploadCmd, artifactDownloadCmd, artifactInfoCmd,
		artifactDeleteCmd, artifactListCmd)
	rootCmd.AddCommand(artifactCmd)
}

func runArtifactUpload(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}

	opts := client.UploadOptions{ID: artifactID, Public: artifactPublic}
	if artifactMeta != "" {
		if err := json.Unmarshal([]byte(artifactMeta), &opts.MetaData); err != nil {
			return fmt.Errorf("invalid --metadata: %w", err)
		}
	}

	artifact, err := c.UploadArtifact(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}
	fmt.Println("Uploaded artifact", artifact.ID)
	return nil
}

func runArtifactDownload(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}

	local, err := c.DownloadArtifact(cmd.Context(), args[0], artifactDestDir)
	if err != nil {
		return err
	}
	fmt.Println("Downloaded to", local)
	return nil
}

func runArtifactInfo(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}

	artifact, err := c.ArtifactInfo(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runArtifactDelete(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	if err := c.DeleteArtifact(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Println("Deleted artifact", args[0])
	return nil
}

func runArtifactList(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}

	artifacts, err := c.ListArtifacts(cmd.Context(), nil)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Public", "Created at"})
	for _, artifact := range artifacts {
		t.AppendRow(table.Row{artifact.ID, artifact.Name, artifact.Public, artifact.CreatedAt})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}
