package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tkersh/echobase-sub003/internal/bootstrap"
	"github.com/tkersh/echobase-sub003/internal/server"
	"github.com/tkersh/echobase-sub003/internal/worker"
	"github.com/tkersh/echobase-sub003/pkg/config"
)

func newAPICommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the order submission API",
		Long: `Serves POST /api/v1/orders plus the probe and metrics endpoints.

With queue.driver=memory the consumer runs inside this process, since no
other process can see the queue.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAPI(cmd, opts)
		},
	}
}

func runAPI(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, config.RoleAPI, log)
	if err != nil {
		return err
	}
	svc, err := app.SubmissionService()
	if err != nil {
		_ = app.Close()
		return err
	}

	var (
		mgr      *worker.Manager
		consumer *worker.Consumer
	)
	if app.InProcessConsumer() {
		consumer = app.Consumer()
		mgr = worker.NewManager(consumer, log, app.Cleanups()...)
		go func() {
			if err := mgr.Start(); err != nil {
				log.Errorf(ctx, "[Manager] consumer stopped: %v", err)
			}
		}()
	}

	srv := server.NewServer(app.Router(svc, consumer), server.Options{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, log)
	runErr := srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	var closeErr error
	if mgr != nil {
		closeErr = mgr.Shutdown(shutdownCtx)
	} else {
		closeErr = app.Close()
	}
	return errors.Join(runErr, closeErr)
}
