package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/maabridge/internal/config"
	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/host"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve host requests over stdio and optionally a websocket",
	Long: `Serve host requests as newline-delimited JSON on stdin/stdout.

With --ws-addr (or host.ws_addr) the same commands and events are also
served to websocket clients. The server stops when stdin closes or on
SIGINT/SIGTERM, tearing down every instance.

The native library is loaded at startup when library.dir exists; otherwise
the host is expected to send an "init" command.`,
	RunE: runServe,
}

var (
	serveWSAddr  string
	serveNoStdio bool
)

func init() {
	serveCmd.Flags().StringVar(&serveWSAddr, "ws-addr", "", "websocket listen address, e.g. 127.0.0.1:7788")
	serveCmd.Flags().BoolVar(&serveNoStdio, "no-stdio", false, "do not read requests from stdin (websocket only)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	config.Watch(func(c *config.Config) {
		logger.SetLevel(c.Logging.Level)
		logger.Info("configuration reloaded", "level", logger.Level())
	}, func(err error) {
		logger.Warn("configuration reload rejected", "error", err)
	})

	svc := newService(cfg, logger)
	defer func() { _ = svc.Close() }()

	if version, err := svc.Init(""); err != nil {
		logger.Warn("library not loaded at startup", "error", err)
	} else {
		logger.Info("library loaded", "version", version)
	}

	wsAddr := serveWSAddr
	if wsAddr == "" {
		wsAddr = cfg.Host.WSAddr
	}
	if serveNoStdio && wsAddr == "" {
		return cmd.Usage()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dispatcher := host.NewDispatcher(svc, logger)
	p := pool.New().WithContext(ctx).WithCancelOnError()

	if !serveNoStdio {
		stdio := host.NewStdioServer(dispatcher, svc.Bus(), logger)
		p.Go(func(ctx context.Context) error {
			// The host closing stdin ends the session.
			defer cancel()
			return stdio.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		})
	}
	if wsAddr != "" {
		ws := host.NewWSServer(dispatcher, svc.Bus(), logger)
		p.Go(func(ctx context.Context) error {
			return ws.ListenAndServe(ctx, wsAddr)
		})
	}

	err = p.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("server stopped", "instances", svc.Registry().Len(), "dropped_events", svc.DroppedEvents())
	return err
}
