package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/telegraph-dev/telegraph/internal/config"
	"github.com/telegraph-dev/telegraph/internal/errors"
	"github.com/telegraph-dev/telegraph/pkg/middleware"
	"github.com/telegraph-dev/telegraph/pkg/server"
)

// shutdownTimeout bounds the admin server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	configPath string
	listen     string
	admin      string
	noAdmin    bool
	logLevel   string
	logFormat  string
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the packet intake server",
		Long: `Start the packet intake server.

The intake listens on raw TCP and performs the WebSocket handshake itself.
The admin server exposes /healthz, /metrics and the same intake at /ws.

Configuration is read from --config, or from telegraph.toml in the working
directory when it exists. Flags override the file.

Examples:
  telegraph serve
  telegraph serve --config=/etc/telegraph/telegraph.toml
  telegraph serve --listen=:28015 --admin=127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, opts)
			if err != nil {
				return err
			}

			logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, logger, nil, cmd.OutOrStdout(), nil)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to telegraph.toml")
	cmd.Flags().StringVarP(&opts.listen, "listen", "l", "", "Intake address (default from config)")
	cmd.Flags().StringVarP(&opts.admin, "admin", "a", "", "Admin HTTP address (default from config)")
	cmd.Flags().BoolVar(&opts.noAdmin, "no-admin", false, "Do not start the admin server")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")

	return cmd
}

// loadServeConfig loads the config file and applies flag overrides.
func loadServeConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.Listen = opts.listen
	}
	if flags.Changed("admin") {
		cfg.Admin.Listen = opts.admin
	}
	if opts.noAdmin {
		cfg.Admin.Enabled = false
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	format, err := config.ParseLogFormat(lc.Format)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// runServe runs the intake and the admin server until ctx is cancelled or
// one of them fails. A nil handler logs every packet. ready, when set, is
// called with the bound addresses once both listeners are open.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, h server.Handler, out io.Writer, ready func(intake, admin net.Addr)) error {
	sc, err := cfg.ServerConfig()
	if err != nil {
		return err
	}

	srv := server.New(sc)
	srv.SetLogger(logger.With("component", "server"))
	if h == nil {
		h = server.LogHandler(logger.With("component", "server"))
	}
	srv.SetHandler(h)
	srv.Use(middleware.Logger(logger))

	if cfg.Tracing.Enabled {
		srv.Use(middleware.OpenTelemetry(middleware.WithTracerName(cfg.Tracing.TracerName)))
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			middleware.NewConnCollector(srv, middleware.WithNamespace(cfg.Metrics.Namespace)),
		)
		srv.Use(middleware.Prometheus(
			middleware.WithRegistry(reg),
			middleware.WithNamespace(cfg.Metrics.Namespace),
		))
	}

	ln, err := net.Listen("tcp", sc.Address)
	if err != nil {
		return listenError("T140", sc.Address, err)
	}

	var adminLn net.Listener
	if cfg.Admin.Enabled {
		adminLn, err = net.Listen("tcp", cfg.Admin.Listen)
		if err != nil {
			ln.Close()
			return listenError("T141", cfg.Admin.Listen, err)
		}
	}

	printBanner(out)
	success(out, "Intake listening on %s", ln.Addr())
	var adminAddr net.Addr
	if adminLn != nil {
		adminAddr = adminLn.Addr()
		success(out, "Admin listening on http://%s", adminAddr)
		info(out, "GET /healthz, GET /metrics, WS %s", cfg.Admin.WSPath)
	}
	fmt.Fprintln(out)
	if ready != nil {
		ready(ln.Addr(), adminAddr)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(gctx, ln); err != nil {
			return errors.New("T140").Wrap(err)
		}
		return nil
	})

	if adminLn != nil {
		hs := &http.Server{
			Handler:           adminRouter(srv, reg, cfg.Admin.WSPath),
			ReadHeaderTimeout: sc.ConnConfig.HandshakeTimeout,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			if err := hs.Serve(adminLn); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return errors.New("T141").Wrap(err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := hs.Shutdown(shutdownCtx); err != nil {
				logger.Warn("admin shutdown", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	m := srv.Metrics()
	logger.Info("telegraph stopped",
		"total_conns", m.TotalConns,
		"packets", m.PacketsDispatched,
		"error", err,
	)
	return err
}

// healthStatus is the /healthz response body.
type healthStatus struct {
	Status      string `json:"status"`
	ActiveConns int64  `json:"active_conns"`
	TotalConns  int64  `json:"total_conns"`
}

// adminRouter mounts health, metrics and the intake. reg may be nil when
// metrics are disabled.
func adminRouter(srv *server.Server, reg *prometheus.Registry, wsPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		m := srv.Metrics()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthStatus{
			Status:      "ok",
			ActiveConns: m.ActiveConns,
			TotalConns:  m.TotalConns,
		})
	})
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	r.Handle(wsPath, srv.Handler())
	return r
}

// listenError turns a listen failure into an operator error.
func listenError(code, addr string, err error) error {
	if stderrors.Is(err, syscall.EADDRINUSE) {
		return errors.New("T142").
			WithDetail(fmt.Sprintf("Another process is already listening on %s.", addr)).
			WithSuggestion("Stop the other process or pick a different address with --listen or --admin").
			Wrap(err)
	}
	return errors.New(code).
		WithDetail(fmt.Sprintf("Could not listen on %s.", addr)).
		Wrap(err)
}
