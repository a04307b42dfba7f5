package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Mikkel102454/storage-selfhosted/internal/config"
	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository/connect"
	"github.com/Mikkel102454/storage-selfhosted/internal/storage/filesystem"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
)

// Version information
const (
	ToolVersion = "1.0.0"
	ToolName    = "storage-admin"
)

const usage = `Usage: storage-admin <command> [flags]

Commands:
  create-owner   -id ID -limit BYTES          provision an owner with a storage quota
  set-limit      -id ID -limit BYTES          change an owner's quota
  show-owner     -id ID                       print an owner's quota usage
  create-folder  -owner ID -id ID -name NAME [-parent ID]
  delete-file    -owner ID -id FILE_ID        delete a file and release its quota
  move-file      -owner ID -id FILE_ID -folder FOLDER_ID
  sweep                                       delete stale staging files now
  version

The metadata store and storage root are taken from the server configuration
(CONFIG_PATH, DB_DRIVER, DB_PATH, STORAGE_ROOT, ...).
`

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env holds what the commands operate on. Repositories are opened lazily so commands that
// need nothing do not touch the database.
type env struct {
	cfg   *config.Config
	repos *repository.Repositories
	out   io.Writer
}

func (e *env) open(ctx context.Context) error {
	if e.repos != nil {
		return nil
	}
	repos, err := connect.Open(ctx, e.cfg.Database)
	if err != nil {
		return err
	}
	e.repos = repos
	return nil
}

func (e *env) service() (*uploads.Service, *filesystem.Store, error) {
	store, err := filesystem.New(e.cfg.StorageRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage root: %w", err)
	}
	svc := uploads.NewService(store, e.repos, uploads.Config{
		MaxChunkSize:   e.cfg.Upload.MaxChunkSize,
		MaxTotalChunks: e.cfg.Upload.MaxTotalChunks,
	})
	return svc, store, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("no command given")
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "version", "-version", "--version":
		fmt.Fprintf(out, "%s v%s\n", ToolName, ToolVersion)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	e := &env{cfg: cfg, out: out}
	defer func() {
		if e.repos != nil {
			e.repos.Close()
		}
	}()

	switch cmd {
	case "create-owner":
		return e.createOwner(ctx, args)
	case "set-limit":
		return e.setLimit(ctx, args)
	case "show-owner":
		return e.showOwner(ctx, args)
	case "create-folder":
		return e.createFolder(ctx, args)
	case "delete-file":
		return e.deleteFile(ctx, args)
	case "move-file":
		return e.moveFile(ctx, args)
	case "sweep":
		return e.sweep(ctx, args)
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// parseFlags parses args into fs and checks that every name in required was given.
func parseFlags(fs *flag.FlagSet, args []string, required ...string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var missing []string
	for _, name := range required {
		if f := fs.Lookup(name); f == nil || f.Value.String() == "" {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing required flags: %s", fs.Name(), strings.Join(missing, ", "))
	}
	return nil
}

func (e *env) createOwner(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-owner", flag.ContinueOnError)
	id := fs.String("id", "", "owner id")
	limit := fs.Int64("limit", 0, "quota in bytes")
	if err := parseFlags(fs, args, "id"); err != nil {
		return err
	}
	if *limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	if err := e.open(ctx); err != nil {
		return err
	}

	owner := &models.Owner{ID: *id, LimitBytes: *limit, CreatedAt: time.Now().UTC()}
	if err := e.repos.Owners.Create(ctx, owner); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return fmt.Errorf("owner %q already exists", *id)
		}
		return fmt.Errorf("failed to create owner: %w", err)
	}

	fmt.Fprintf(e.out, "created owner %s with limit %d bytes\n", *id, *limit)
	return nil
}

func (e *env) setLimit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-limit", flag.ContinueOnError)
	id := fs.String("id", "", "owner id")
	limit := fs.Int64("limit", -1, "quota in bytes")
	if err := parseFlags(fs, args, "id"); err != nil {
		return err
	}
	if *limit < 0 {
		return fmt.Errorf("set-limit: -limit is required and must not be negative")
	}
	if err := e.open(ctx); err != nil {
		return err
	}

	if err := e.repos.Owners.SetLimit(ctx, *id, *limit); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("owner %q not found", *id)
		}
		return fmt.Errorf("failed to set limit: %w", err)
	}

	fmt.Fprintf(e.out, "owner %s limit set to %d bytes\n", *id, *limit)
	return nil
}

// ownerReport is the JSON printed by show-owner.
type ownerReport struct {
	ID             string    `json:"id"`
	UsedBytes      int64     `json:"used_bytes"`
	LimitBytes     int64     `json:"limit_bytes"`
	AvailableBytes int64     `json:"available_bytes"`
	CreatedAt      time.Time `json:"created_at"`
}

func (e *env) showOwner(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show-owner", flag.ContinueOnError)
	id := fs.String("id", "", "owner id")
	if err := parseFlags(fs, args, "id"); err != nil {
		return err
	}
	if err := e.open(ctx); err != nil {
		return err
	}

	owner, err := e.repos.Owners.GetByID(ctx, *id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("owner %q not found", *id)
		}
		return fmt.Errorf("failed to get owner: %w", err)
	}

	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(ownerReport{
		ID:             owner.ID,
		UsedBytes:      owner.UsedBytes,
		LimitBytes:     owner.LimitBytes,
		AvailableBytes: owner.AvailableBytes(),
		CreatedAt:      owner.CreatedAt,
	})
}

func (e *env) createFolder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-folder", flag.ContinueOnError)
	owner := fs.String("owner", "", "owner id")
	id := fs.String("id", "", "folder id")
	name := fs.String("name", "", "display name")
	parent := fs.String("parent", "", "parent folder id (empty for a root folder)")
	if err := parseFlags(fs, args, "owner", "id", "name"); err != nil {
		return err
	}
	if err := e.open(ctx); err != nil {
		return err
	}

	folder := &models.Folder{ID: *id, OwnerID: *owner, Name: *name, CreatedAt: time.Now().UTC()}
	if *parent != "" {
		folder.ParentID = parent
	}
	if err := e.repos.Folders.Create(ctx, folder); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateKey):
			return fmt.Errorf("folder %q already exists", *id)
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("owner %q or parent folder not found", *owner)
		default:
			return fmt.Errorf("failed to create folder: %w", err)
		}
	}

	fmt.Fprintf(e.out, "created folder %s (%s) for owner %s\n", *id, *name, *owner)
	return nil
}

func (e *env) deleteFile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete-file", flag.ContinueOnError)
	owner := fs.String("owner", "", "owner id")
	id := fs.String("id", "", "file id")
	if err := parseFlags(fs, args, "owner", "id"); err != nil {
		return err
	}
	if err := e.open(ctx); err != nil {
		return err
	}
	svc, _, err := e.service()
	if err != nil {
		return err
	}

	artifact, err := svc.DeleteArtifact(ctx, *owner, *id)
	if err != nil {
		if errors.Is(err, uploads.ErrFileNotFound) {
			return fmt.Errorf("file %q not found for owner %q", *id, *owner)
		}
		return err
	}

	fmt.Fprintf(e.out, "deleted %s (%s, %d bytes)\n", artifact.ID, artifact.Name, artifact.Size)
	return nil
}

func (e *env) moveFile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("move-file", flag.ContinueOnError)
	owner := fs.String("owner", "", "owner id")
	id := fs.String("id", "", "file id")
	folder := fs.String("folder", "", "destination folder id")
	if err := parseFlags(fs, args, "owner", "id", "folder"); err != nil {
		return err
	}
	if err := e.open(ctx); err != nil {
		return err
	}
	svc, _, err := e.service()
	if err != nil {
		return err
	}

	if err := svc.MoveArtifact(ctx, *owner, *id, *folder); err != nil {
		switch {
		case errors.Is(err, uploads.ErrFileNotFound):
			return fmt.Errorf("file %q not found for owner %q", *id, *owner)
		case errors.Is(err, uploads.ErrFolderNotFound):
			return fmt.Errorf("folder %q not found for owner %q", *folder, *owner)
		case errors.Is(err, uploads.ErrNameConflict):
			return fmt.Errorf("folder %q already has a file with that name", *folder)
		default:
			return err
		}
	}

	fmt.Fprintf(e.out, "moved %s to folder %s\n", *id, *folder)
	return nil
}

func (e *env) sweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	timeout := fs.Duration("timeout", e.cfg.Upload.StagingTimeout, "delete staging files idle for longer than this")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := e.open(ctx); err != nil {
		return err
	}
	svc, _, err := e.service()
	if err != nil {
		return err
	}

	result, err := uploads.NewSweeper(svc, e.cfg.Upload.SweepInterval, *timeout).Sweep(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "scanned %d staging files, deleted %d, failed %d\n", result.Scanned, result.Deleted, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d staging files could not be deleted", result.Failed)
	}
	return nil
}
