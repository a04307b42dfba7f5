package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	storageclient "github.com/Mikkel102454/storage-selfhosted/sdk/go"
)

func uploadCmd(g *globalFlags) *cobra.Command {
	var (
		folderID    string
		uploadID    string
		resume      bool
		concurrency int
		noProgress  bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file in parallel chunks",
		Long: `Upload a file into a folder. The file is split into chunks of the server's
chunk size and the chunks are sent in parallel.

If an upload fails, the upload id is printed. Run the command again with
--upload-id and --resume to send only the chunks the server is missing.

Examples:
  storage-cli upload report.pdf --folder root
  storage-cli upload disk.img --folder root --concurrency 8
  storage-cli upload disk.img --folder root --upload-id <id> --resume`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]
			if resume && uploadID == "" {
				return fmt.Errorf("--resume requires --upload-id")
			}

			info, err := os.Stat(filePath)
			if err != nil {
				return fmt.Errorf("file not found: %s", filePath)
			}

			client, err := g.newClient()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			opts := &storageclient.UploadOptions{
				UploadID:    uploadID,
				Resume:      resume,
				Concurrency: concurrency,
			}
			if !noProgress {
				opts.OnProgress = func(p storageclient.UploadProgress) {
					fmt.Fprintf(out, "\r%s %3d%% (%s/%s) [chunk %d/%d]",
						progressBar(p.Percentage),
						p.Percentage,
						formatBytes(p.BytesUploaded),
						formatBytes(p.TotalBytes),
						p.ChunksDone,
						p.TotalChunks,
					)
				}
			}

			fmt.Fprintf(out, "Uploading: %s (%s)\n", filePath, formatBytes(info.Size()))

			file, err := client.UploadFile(cmd.Context(), filePath, folderID, opts)
			fmt.Fprintln(out) // Clear progress line
			if err != nil {
				var chunkErr *storageclient.ChunkedUploadError
				if errors.As(err, &chunkErr) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Resume with: --upload-id %s --resume\n", chunkErr.UploadID)
				}
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, strings.Repeat("─", 50))
			fmt.Fprintf(out, "Upload successful!\n")
			fmt.Fprintln(out, strings.Repeat("─", 50))
			fmt.Fprintf(out, "File ID:     %s\n", file.ID)
			fmt.Fprintf(out, "Folder:      %s\n", file.FolderID)
			fmt.Fprintf(out, "Name:        %s\n", file.Name)
			fmt.Fprintf(out, "Size:        %s\n", formatBytes(file.Size))
			fmt.Fprintf(out, "MIME Type:   %s\n", file.MimeType)
			fmt.Fprintln(out, strings.Repeat("─", 50))

			return nil
		},
	}

	cmd.Flags().StringVarP(&folderID, "folder", "f", "", "Destination folder id (required)")
	cmd.Flags().StringVar(&uploadID, "upload-id", "", "Upload id to use or resume (default: new UUID)")
	cmd.Flags().BoolVar(&resume, "resume", false, "Send only the chunks the server is missing")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Parallel chunk uploads (default 4)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bar")
	cmd.MarkFlagRequired("folder")

	return cmd
}

func statusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <upload-id>",
		Short: "Show the chunks received for an unfinished upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.newClient()
			if err != nil {
				return err
			}

			status, err := client.GetUploadStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Upload ID:   %s\n", status.UploadID)
			fmt.Fprintf(out, "Name:        %s\n", status.FileName)
			fmt.Fprintf(out, "Folder:      %s\n", status.FolderID)
			fmt.Fprintf(out, "Chunks:      %d/%d\n", status.ChunksReceived, status.TotalChunks)
			if len(status.MissingChunks) > 0 {
				fmt.Fprintf(out, "Missing:     %s\n", formatIndexes(status.MissingChunks, 20))
			}
			return nil
		},
	}
}

func progressBar(percentage int) string {
	width := 30
	percentage = max(0, min(percentage, 100))
	filled := percentage * width / 100
	empty := width - filled
	return fmt.Sprintf("[%s%s]", strings.Repeat("█", filled), strings.Repeat("░", empty))
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// formatIndexes lists up to limit indexes, summarizing the rest.
func formatIndexes(indexes []int, limit int) string {
	parts := make([]string, 0, min(len(indexes), limit))
	for i, idx := range indexes {
		if i == limit {
			parts = append(parts, fmt.Sprintf("... (%d more)", len(indexes)-limit))
			break
		}
		parts = append(parts, fmt.Sprint(idx))
	}
	return strings.Join(parts, ", ")
}
