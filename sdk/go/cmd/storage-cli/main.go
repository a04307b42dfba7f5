// storage-cli is a command-line interface for the storage server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	storageclient "github.com/Mikkel102454/storage-selfhosted/sdk/go"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	baseURL     string
	owner       string
	ownerHeader string
	retries     int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "storage-cli",
		Short: "Storage CLI - chunked uploads and resumable downloads",
		Long: `Storage CLI uploads files to a storage server in parallel chunks and downloads
them with resumable range requests.

Configuration:
  Set STORAGE_URL and STORAGE_OWNER environment variables, or use --url and --owner flags.

Examples:
  storage-cli upload backup.tar --folder root
  storage-cli upload backup.tar --folder root --upload-id <id> --resume
  storage-cli status <upload-id>
  storage-cli download root <file-id> ./backup.tar --resume`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.baseURL, "url", os.Getenv("STORAGE_URL"), "Storage server URL (or STORAGE_URL env)")
	rootCmd.PersistentFlags().StringVar(&g.owner, "owner", os.Getenv("STORAGE_OWNER"), "Owner id (or STORAGE_OWNER env)")
	rootCmd.PersistentFlags().StringVar(&g.ownerHeader, "owner-header", "", "Header carrying the owner id (default X-Owner-ID)")
	rootCmd.PersistentFlags().IntVar(&g.retries, "retries", 0, "Retries per chunk for temporary failures (default 3)")

	rootCmd.AddCommand(uploadCmd(g))
	rootCmd.AddCommand(statusCmd(g))
	rootCmd.AddCommand(downloadCmd(g))
	rootCmd.AddCommand(configCmd(g))

	return rootCmd
}

// newClient validates the global flags and builds a client from them.
func (g *globalFlags) newClient() (*storageclient.Client, error) {
	if g.baseURL == "" {
		return nil, fmt.Errorf("server URL is required (use --url or STORAGE_URL environment variable)")
	}
	if g.owner == "" {
		return nil, fmt.Errorf("owner id is required (use --owner or STORAGE_OWNER environment variable)")
	}
	return storageclient.NewClient(storageclient.ClientConfig{
		BaseURL:     g.baseURL,
		Owner:       g.owner,
		OwnerHeader: g.ownerHeader,
		MaxRetries:  g.retries,
	})
}
