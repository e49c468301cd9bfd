// Command attach publishes local files as chunked attachments and
// reconstructs them from a manifest handle.
//
//	attach put FILE...
//	attach get [-d DIR] HANDLE...
//	attach info HANDLE...
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/maneesh/mailattach/internal/config"
	"github.com/maneesh/mailattach/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage: attach {put FILE... | get [-d DIR] HANDLE... | info HANDLE...}")

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.ApplyLogging()
	logrus.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.AttachmentOptions()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err = run(ctx, os.Args[1:], store, opts, os.Stdout)
	closeStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, store attachment.Store[string], opts attachment.Options, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, args := args[0], args[1:]
	flags := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	dir := flags.StringP("dir", "d", ".", "destination directory for get")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if flags.NArg() == 0 {
		return errUsage
	}

	switch cmd {
	case "put":
		publisher := attachment.NewPublisher[string](store, opts)
		for _, path := range flags.Args() {
			handle, manifest, err := publisher.PublishFile(ctx, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%s\t%d bytes\t%d chunks\n", handle, manifest.Filename, manifest.OrigFileSize, len(manifest.Chunks))
		}
	case "get":
		reconstructor := attachment.NewReconstructor[string](store, opts)
		for _, handle := range flags.Args() {
			path, err := reconstructor.Reconstruct(ctx, handle, *dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, path)
		}
	case "info":
		reconstructor := attachment.NewReconstructor[string](store, opts)
		for _, handle := range flags.Args() {
			manifest, err := reconstructor.Manifest(ctx, handle)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Filename: %s\n    type: %s\n    size: %d KiB\n  chunks: %d\n    hash: %s\n",
				manifest.Filename, manifest.FileType, manifest.OrigFileSize/1024, len(manifest.Chunks), manifest.DataHash)
		}
	default:
		return errUsage
	}
	return nil
}
