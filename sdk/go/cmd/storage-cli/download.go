package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	storageclient "github.com/Mikkel102454/storage-selfhosted/sdk/go"
)

func downloadCmd(g *globalFlags) *cobra.Command {
	var (
		resume     bool
		overwrite  bool
		byteRange  string
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "download <folder-id> <file-id> <destination>",
		Short: "Download a file",
		Long: `Download a file from a folder.

With --resume, an existing partial destination is continued from its current
size instead of starting over. With --range, only the given byte range is
written; use "-" as destination to write it to standard output.

Examples:
  storage-cli download root <file-id> ./report.pdf
  storage-cli download root <file-id> ./disk.img --resume
  storage-cli download root <file-id> - --range 0-1023`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID, fileID, destination := args[0], args[1], args[2]

			client, err := g.newClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if byteRange != "" {
				start, end, err := parseByteRange(byteRange)
				if err != nil {
					return err
				}
				return downloadRange(cmd, client, folderID, fileID, start, end, destination)
			}

			opts := &storageclient.DownloadOptions{
				Resume:    resume,
				Overwrite: overwrite,
			}
			if !noProgress {
				opts.OnProgress = func(p storageclient.DownloadProgress) {
					if p.Percentage >= 0 {
						fmt.Fprintf(out, "\r%s %3d%% (%s/%s)",
							progressBar(p.Percentage),
							p.Percentage,
							formatBytes(p.BytesDownloaded),
							formatBytes(p.TotalBytes),
						)
					} else {
						fmt.Fprintf(out, "\rDownloading... %s", formatBytes(p.BytesDownloaded))
					}
				}
			}

			fmt.Fprintf(out, "Downloading to: %s\n", destination)
			if err := client.Download(cmd.Context(), folderID, fileID, destination, opts); err != nil {
				fmt.Fprintln(out) // Clear progress line
				return err
			}

			fmt.Fprintln(out) // Clear progress line
			fmt.Fprintln(out, "\nDownload complete!")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&resume, "resume", "r", false, "Continue a partial download")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing destination file")
	cmd.Flags().StringVar(&byteRange, "range", "", "Inclusive byte range to fetch, as start-end or start-")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bar")
	cmd.MarkFlagsMutuallyExclusive("range", "resume")

	return cmd
}

func downloadRange(cmd *cobra.Command, client *storageclient.Client, folderID, fileID string, start, end int64, destination string) error {
	if destination == "-" {
		_, err := client.DownloadRange(cmd.Context(), folderID, fileID, start, end, cmd.OutOrStdout())
		return err
	}

	f, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}
	n, err := client.DownloadRange(cmd.Context(), folderID, fileID, start, end, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destination)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s to %s\n", formatBytes(n), destination)
	return nil
}

// parseByteRange parses "start-end" or "start-" into an inclusive range; end is -1 when open.
func parseByteRange(s string) (start, end int64, err error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range %q: expected start-end", s)
	}
	start, err = strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("invalid range start %q", startStr)
	}
	if endStr == "" {
		return start, -1, nil
	}
	end, err = strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("invalid range end %q", endStr)
	}
	return start, end, nil
}
