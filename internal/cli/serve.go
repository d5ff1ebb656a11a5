package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pos_ledger/api"
)

const shutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the register HTTP API.

Example:
  pos_ledger serve
  POS_STORAGE_DRIVER=memory pos_ledger serve -c config.yaml`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), rootOpts)
		},
	}
}

func serve(ctx context.Context, opts *RootOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	api.InitRoutes(r, a.register, a.logger.Named("api"))

	srv := &http.Server{Addr: a.cfg.HTTPAddress, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("address", a.cfg.HTTPAddress))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error trying to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
