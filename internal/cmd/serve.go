package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/grab-engine/internal/grab/config"
	"github.com/tomasbasham/grab-engine/internal/operation"
	"github.com/tomasbasham/grab-engine/internal/server"
	"github.com/tomasbasham/grab-engine/internal/storage"
)

var (
	serveLong = templates.LongDesc(`
		grab-server exposes grab-single's engine as an async HTTP
		operation queue: POST /grabs enqueues a grab and returns
		immediately, GET /grabs/{id} polls its status and artefact
		locations. It is the attachment point for the out-of-scope
		recursive multi-URL driver (SPEC_FULL.md §1).`)

	serveExample = templates.Examples(`
		# Start on the default port, writing artefacts under ./artefacts
		grab-server

		# Start on a custom port, uploading artefacts to a GCS bucket
		grab-server --port 9090 --bucket my-archive-bucket`)
)

// ServeOptions holds the parsed flags for one grab-server invocation.
type ServeOptions struct {
	Port        int
	GCSBucket   string
	Timeout     time.Duration
	IdleTimeout time.Duration
}

// NewServeOptions returns ServeOptions with the spec's default
// timeouts pre-populated.
func NewServeOptions() *ServeOptions {
	defaults := config.DefaultGrabOptions()
	return &ServeOptions{
		Timeout:     defaults.Timeout,
		IdleTimeout: defaults.IdleTimeout,
	}
}

// NewServeCommand builds the grab-server command.
func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "grab-server",
		DisableFlagsInUseLine: true,
		Short:                 "Start the async grab operation HTTP server",
		Long:                  serveLong,
		Example:               serveExample,
		SilenceErrors:         true,
		SilenceUsage:          true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&o.Port, "port", "p", 8080, "port to listen on")
	cmd.Flags().StringVarP(&o.GCSBucket, "bucket", "b", "", "GCS bucket for artefact storage (empty uses ./artefacts on the local filesystem)")
	cmd.Flags().DurationVarP(&o.Timeout, "timeout", "t", o.Timeout, "default absolute timeout for enqueued grabs")
	cmd.Flags().DurationVarP(&o.IdleTimeout, "idle-timeout", "n", o.IdleTimeout, "default idle timeout for enqueued grabs")

	return cmd
}

func (o *ServeOptions) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	uploader, err := o.newUploader(ctx)
	if err != nil {
		return fmt.Errorf("initialise uploader: %w", err)
	}

	store := operation.NewMemoryStore()
	defaults := config.GrabOptions{
		Timeout:     o.Timeout,
		IdleTimeout: o.IdleTimeout,
	}

	srv := server.New(store, uploader, defaults)

	addr := fmt.Sprintf(":%d", o.Port)
	fmt.Printf("grab-server listening on %s\n", addr)
	return srv.ListenAndServe(addr)
}

func (o *ServeOptions) newUploader(ctx context.Context) (storage.Uploader, error) {
	if o.GCSBucket != "" {
		return storage.NewGCSUploader(ctx, o.GCSBucket)
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return storage.NewLocalUploader(filepath.Join(dir, "artefacts"))
}
