package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"schedweb/internal/backend"
	"schedweb/internal/capture"
	"schedweb/internal/config"
	appLog "schedweb/internal/log"
	"schedweb/internal/store"
	"schedweb/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	snapshot   string
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPasswordCmd(os.Args[2:]); err != nil {
			if !errors.Is(err, flag.ErrHelp) {
				appLog.Error("hash-password failed", err)
				os.Exit(1)
			}
		}
		return
	}

	flags := parseFlags()

	if err := config.LoadDotEnv(flags.envFile); err != nil {
		appLog.Error("failed to load env file", err, "path", flags.envFile)
	}

	appLog.Info("schedweb starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetLevel(appLog.ParseLevel(conf.Log.Level))
	appLog.SetFile(appLog.FileOptions{
		Path:       conf.Log.File,
		MaxSizeMB:  conf.Log.MaxSizeMB,
		MaxBackups: conf.Log.MaxBackups,
		MaxAgeDays: conf.Log.MaxAgeDays,
	})
	defer appLog.Close()

	appLog.Info("effective config",
		"listen", conf.Listen,
		"backend", conf.Backend.BaseURL,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"filter_mode", conf.FilterMode,
		"calendar_view", conf.CalendarView,
		"once", flags.once,
		"snapshot", flags.snapshot,
	)
	if conf.FilterMode == config.FilterModeConjunctive {
		appLog.Warn("conjunctive filter mode: user and client filters are combined")
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("schedweb failed", err)
		appLog.Close()
		os.Exit(1)
	}
	appLog.Info("schedweb exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client := backend.NewClient(conf.Backend, backend.WithMetrics(backend.NewMetrics(reg)))
	st := store.New(client)
	defer st.Close()

	if err := st.Refresh(ctx); err != nil {
		appLog.Error("initial fetch failed", err)
		if flags.once {
			return err
		}
	}

	if flags.once {
		snap := st.Snapshot()
		fmt.Printf("users=%d clients=%d services=%d appointments=%d appointment_services=%d\n",
			len(snap.Users), len(snap.Clients), len(snap.Services),
			len(snap.Appointments), len(snap.AppointmentServices))
		return nil
	}

	srv, err := web.NewServer(conf, web.Deps{Store: st, Actions: client, Registry: reg})
	if err != nil {
		return err
	}

	sched := cron.New(cron.WithLogger(cronLogger{}))
	timeout := time.Duration(conf.Backend.RequestTimeoutSeconds) * time.Second
	if _, err := sched.AddFunc(conf.RefreshCron, func() {
		rctx, rcancel := context.WithTimeout(ctx, timeout)
		defer rcancel()
		if err := st.Refresh(rctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", conf.RefreshCron, err)
	}
	if _, err := sched.AddFunc("@every 1m", srv.SweepViews); err != nil {
		return err
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if flags.snapshot == "" {
		return srv.Run(ctx)
	}

	// Snapshot mode: serve just long enough to capture the page.
	sctx, stop := context.WithCancel(ctx)
	defer stop()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(sctx) }()
	if err := waitListening(ctx, conf.Listen, 5*time.Second); err != nil {
		stop()
		return errors.Join(err, <-errCh)
	}

	if conf.BasicAuth.Enabled() && basicAuthPassword(conf) == "" {
		appLog.Warn("snapshot has no plaintext basic_auth.password; the capture will be rejected")
	}
	capErr := capture.SchedulerPNG(ctx, capture.Options{
		URL:        localURL(conf.Listen),
		OutputPath: flags.snapshot,
		Width:      conf.Snapshot.Width,
		Height:     conf.Snapshot.Height,
		Timeout:    time.Duration(conf.Snapshot.TimeoutSeconds) * time.Second,
		Username:   basicAuthUser(conf),
		Password:   basicAuthPassword(conf),
	})
	stop()
	return errors.Join(capErr, <-errCh)
}

// localURL turns a listen address into a URL reachable from this host.
func localURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

// waitListening polls addr until it accepts TCP connections.
func waitListening(ctx context.Context, addr string, limit time.Duration) error {
	target := addr
	if host, port, err := net.SplitHostPort(addr); err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
		target = net.JoinHostPort("127.0.0.1", port)
	}
	deadline := time.Now().Add(limit)
	for {
		conn, err := net.DialTimeout("tcp", target, 250*time.Millisecond)
		if err == nil {
			return conn.Close()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server not listening on %s: %w", target, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func basicAuthUser(conf *config.Config) string {
	if conf.BasicAuth == nil {
		return ""
	}
	return conf.BasicAuth.Username
}

func basicAuthPassword(conf *config.Config) string {
	if conf.BasicAuth == nil {
		return ""
	}
	return conf.BasicAuth.Password
}

// cronLogger routes cron's own logging through appLog.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/schedweb/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env-file", ".env", "Optional dotenv file with SCHEDWEB_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch all collections once, print counts and exit")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Write a PNG of the scheduler page to this path and exit")

	flag.Parse()

	return cfg
}
