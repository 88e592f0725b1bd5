package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leadrelay/keygate/internal/jobs"
	"github.com/leadrelay/keygate/internal/server"
	"github.com/leadrelay/keygate/internal/service"
)

const banner = `
 _              ____       _
| | _____ _   _/ ___| __ _| |_ ___
| |/ / _ \ | | | |  _ / _' | __/ _ \
|   <  __/ |_| | |_| | (_| | ||  __/
|_|\_\___|\__, |\____|\__,_|\__\___|
          |___/
`

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		Long: `Start the HTTP server exposing the key management API under /api/v1/api-keys
and the key-authenticated external API under /api/v1/external. Maintenance jobs
run in the same process unless maintenance.enabled is false.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")

	return cmd
}

func runServe(ctx context.Context, addr string) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	if isTerminal(os.Stdout) {
		fmt.Print(banner)
		fmt.Println()
	}

	sessions, err := a.sessions()
	if err != nil {
		return err
	}
	usage := service.NewUsageRecorder(a.store, logger, cfg.Usage.WriteTimeout, nil)
	limiter := service.NewRateLimiter(a.store, nil)

	resources := make([]server.Resource, 0, len(cfg.Upstreams))
	for _, up := range cfg.Upstreams {
		res, err := server.NewUpstream(up.Name, up.URL, up.Description, logger)
		if err != nil {
			return err
		}
		resources = append(resources, res)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = cfg.Server.Addr
	if addr != "" {
		srvCfg.Addr = addr
	}
	srvCfg.CORSOrigins = cfg.Server.CORSOrigins
	srvCfg.IPRateLimit = cfg.Server.IPRateLimit
	srvCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	srvCfg.Version = versionString()

	srv, err := server.New(srvCfg, server.Deps{
		Store:     a.store,
		Keys:      a.keys,
		Limiter:   limiter,
		Usage:     usage,
		Sessions:  sessions,
		Resources: resources,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"version":   versionString(),
		"driver":    a.store.Driver(),
		"key_cache": a.redis != nil,
		"upstreams": len(resources),
	}).Info("keygate starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	if cfg.Maintenance.Enabled {
		sched, err := jobs.New(service.NewMaintenance(a.store, a.store, logger, nil), jobs.Config{
			WindowInterval: cfg.Maintenance.WindowInterval,
			UsageInterval:  cfg.Maintenance.UsageInterval,
			RetentionDays:  cfg.Usage.RetentionDays,
		}, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(gctx) })
	}

	runErr := g.Wait()

	// Requests are drained; flush the usage entries they spawned.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+cfg.Usage.WriteTimeout)
	defer cancel()
	if err := usage.Shutdown(drainCtx); err != nil {
		logger.WithError(err).Warn("usage entries still pending at exit")
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("keygate stopped")
	return nil
}
