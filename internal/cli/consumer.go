package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tkersh/echobase-sub003/internal/bootstrap"
	"github.com/tkersh/echobase-sub003/internal/server"
	"github.com/tkersh/echobase-sub003/internal/worker"
	"github.com/tkersh/echobase-sub003/pkg/config"
)

func newConsumerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consumer",
		Short: "Drain the order queue into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsumer(cmd, opts)
		},
	}
}

func runConsumer(cmd *cobra.Command, opts *rootOptions) error {
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

	app, err := bootstrap.New(ctx, cfg, config.RoleConsumer, log)
	if err != nil {
		return err
	}
	consumer := app.Consumer()
	mgr := worker.NewManager(consumer, log, app.Cleanups()...)

	if addr := cfg.Consumer.MetricsAddr; addr != "" {
		srv := server.NewServer(app.Router(nil, consumer), server.Options{Addr: addr, ShutdownTimeout: cfg.Server.ShutdownTimeout}, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Errorf(ctx, "[Server] probe listener stopped: %v", err)
			}
		}()
	}

	startErr := make(chan error, 1)
	go func() { startErr <- mgr.Start() }()

	select {
	case <-ctx.Done():
		log.Infof(context.Background(), "[Manager] shutdown signal received")
	case err := <-startErr:
		if err != nil {
			log.Errorf(ctx, "[Manager] consumer exited: %v", err)
		}
	}

	// The in-flight batch finishes within the per-message timeout; leave room
	// for the cleanups on top of that.
	timeout := cfg.Consumer.MessageTimeout*2 + cfg.Server.ShutdownTimeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return mgr.Shutdown(shutdownCtx)
}
