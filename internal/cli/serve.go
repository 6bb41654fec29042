package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fmueller/voxserve/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the transcription HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := app.buildService(ctx)
			if err != nil {
				return err
			}

			srv := server.New(app.cfg.Server, svc, app.log())
			if err := srv.Start(); err != nil {
				return err
			}
			if app.onListen != nil {
				app.onListen(srv.Addr())
			}

			var serveErr error
			select {
			case <-ctx.Done():
				app.log().Info("shutdown signal received")
			case err, ok := <-srv.Errors():
				if ok {
					serveErr = err
				}
			}

			if err := srv.Stop(context.WithoutCancel(ctx)); err != nil {
				app.log().Warn("graceful shutdown incomplete", zap.Error(err))
				if serveErr == nil {
					serveErr = err
				}
			}
			return serveErr
		},
	}

	flags := cmd.Flags()
	flags.String("host", "127.0.0.1", "Interface to bind")
	flags.Int("port", 5000, "Port to listen on")
	flags.Int64("max-body-bytes", 32<<20, "Maximum request body size in bytes")
	flags.Bool("expose-error-detail", false, "Append internal error detail to error responses")
	mustBind(app.v, flags, "server.host", "host")
	mustBind(app.v, flags, "server.port", "port")
	mustBind(app.v, flags, "server.max_body_bytes", "max-body-bytes")
	mustBind(app.v, flags, "server.expose_error_detail", "expose-error-detail")

	return cmd
}
