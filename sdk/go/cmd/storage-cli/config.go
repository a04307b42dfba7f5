package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func configCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show server upload limits",
		Long: `Display the storage server's public upload limits.

Example:
  storage-cli config`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.newClient()
			if err != nil {
				return err
			}

			config, err := client.GetConfig(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Storage Server Configuration\n")
			fmt.Fprintf(out, "URL: %s\n", client.BaseURL())
			fmt.Fprintln(out, strings.Repeat("─", 40))
			fmt.Fprintf(out, "%-20s %s\n", "Chunk Size:", formatBytes(config.MaxChunkSize))
			fmt.Fprintf(out, "%-20s %d\n", "Max Chunks:", config.MaxTotalChunks)
			fmt.Fprintf(out, "%-20s %s\n", "Max File Size:", formatBytes(config.MaxChunkSize*int64(config.MaxTotalChunks)))
			fmt.Fprintln(out, strings.Repeat("─", 40))

			return nil
		},
	}
}
