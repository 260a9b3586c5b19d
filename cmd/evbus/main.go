package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"evbus/internal/config"
	"evbus/internal/events"
	"evbus/internal/input"
	"evbus/internal/journal"
	"evbus/internal/relay"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Handlers that observe events run after the application state has had a
// chance to cancel them.
const (
	priorityJournal = 1000
	priorityRelay   = 1100
)

func main() {
	if err := start(); err != nil {
		fmt.Fprintf(os.Stderr, "evbus: %v\n", err)
		os.Exit(1)
	}
}

// start wires the bus and its collaborators and blocks until the command
// loop ends. Resources opened here are released before it returns.
func start() error {
	if err := config.LoadEnv(); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	cfg, err := config.Load(os.Getenv("EVBUS_CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	zerolog.SetGlobalLevel(cfg.LogLevel())

	if len(os.Args) > 1 && os.Args[1] == "export" {
		dir := "."
		if len(os.Args) > 2 {
			dir = os.Args[2]
		}
		return exportJournal(cfg, dir, &logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		busMetrics   *events.Metrics
		relayMetrics *relay.Metrics
	)
	if cfg.Monitoring.PrometheusEnabled {
		busMetrics = events.NewMetrics("evbus", prometheus.DefaultRegisterer)
		relayMetrics = relay.NewMetrics("evbus", prometheus.DefaultRegisterer)
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	bus := events.NewBus(events.WithLogger(logger), events.WithMetrics(busMetrics))

	var jr *journal.Journal
	if cfg.Journal.Enabled {
		jr, err = journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jr.Close()

		d := attachJournal(jr, bus)
		defer d.detach()

		go jr.Maintain(ctx, journal.MaintenanceConfig{
			Interval:        24 * time.Hour,
			Retention:       cfg.JournalRetention(),
			BackupDir:       cfg.Journal.BackupPath,
			BackupRetention: 7 * 24 * time.Hour,
		})
	}

	var rdb *redis.Client
	if cfg.RelayEnabled() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()

		r := relay.New(rdb, relay.Config{
			Channel: cfg.Redis.Channel,
			Rate:    cfg.Redis.Rate,
			Burst:   cfg.Redis.Burst,
		}, logger, relay.WithMetrics(relayMetrics))

		d, err := attachRelay(ctx, r, bus)
		if err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
		defer d.detach()
		logger.Info().Str("origin", r.Origin().String()).Str("channel", cfg.Redis.Channel).Msg("relay started")
	}

	// Log level follows edits to the config file.
	err = config.Watch(ctx, os.Getenv("EVBUS_CONFIG_PATH"), 30*time.Second, func(c *config.Config) {
		if lvl := c.LogLevel(); lvl != zerolog.GlobalLevel() {
			zerolog.SetGlobalLevel(lvl)
			logger.Info().Str("level", lvl.String()).Msg("log level changed")
		}
	})
	if err != nil {
		logger.Warn().Err(err).Msg("config watch disabled")
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, jr, rdb, &logger)

	state := input.NewState(logger)
	state.Attach(bus)
	defer state.Detach()

	logger.Info().Str("bus", bus.String()).Msg("event bus started")
	run(ctx, bus, state, os.Stdin, &logger)
	logger.Info().Msg("event bus stopped")
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Log.Console {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// run posts one command per input line until quit is requested, the input
// ends or ctx is done.
func run(ctx context.Context, bus *events.Bus, state *input.State, in io.Reader, logger *zerolog.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Error().Err(err).Msg("read input error")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-state.Quit():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cancelled, err := input.Dispatch(bus, line)
			switch {
			case errors.Is(err, input.ErrUnknownCommand), errors.Is(err, input.ErrBadArguments):
				logger.Warn().Err(err).Msg("invalid command")
			case err != nil:
				logger.Error().Err(err).Msg("dispatch error")
			default:
				logger.Debug().Str("command", line).Bool("cancelled", cancelled).Msg("command dispatched")
			}
		}
	}
}

// detacher undoes attachments in reverse order.
type detacher []func()

func (d *detacher) add(fn func()) { *d = append(*d, fn) }

func (d detacher) detach() {
	for i := len(d) - 1; i >= 0; i-- {
		d[i]()
	}
}

func keep[T any](d *detacher, bus *events.Bus, id *events.HandlerID[T]) {
	d.add(func() { events.Unregister(bus, id) })
}

func attachJournal(j *journal.Journal, bus *events.Bus) detacher {
	var d detacher
	keep(&d, bus, journal.Attach[input.KeyDown](j, bus, priorityJournal))
	keep(&d, bus, journal.Attach[input.KeyUp](j, bus, priorityJournal))
	keep(&d, bus, journal.Attach[input.TextInput](j, bus, priorityJournal))
	keep(&d, bus, journal.Attach[input.MouseMotion](j, bus, priorityJournal))
	keep(&d, bus, journal.Attach[input.MouseButton](j, bus, priorityJournal))
	keep(&d, bus, journal.Attach[input.MouseWheel](j, bus, priorityJournal))
	keep(&d, bus, journal.Attach[input.Resize](j, bus, priorityJournal))
	keep(&d, bus, journal.Attach[input.GamepadAxis](j, bus, priorityJournal))
	keep(&d, bus, journal.Attach[input.GamepadButton](j, bus, priorityJournal))
	return d
}

// attachRelay forwards and delivers every input event type. On error the
// types already attached are detached again.
func attachRelay(ctx context.Context, r *relay.Relay, bus *events.Bus) (detacher, error) {
	var d detacher
	err := errors.Join(
		relayType[input.KeyDown](ctx, r, bus, &d),
		relayType[input.KeyUp](ctx, r, bus, &d),
		relayType[input.TextInput](ctx, r, bus, &d),
		relayType[input.MouseMotion](ctx, r, bus, &d),
		relayType[input.MouseButton](ctx, r, bus, &d),
		relayType[input.MouseWheel](ctx, r, bus, &d),
		relayType[input.Resize](ctx, r, bus, &d),
		relayType[input.GamepadAxis](ctx, r, bus, &d),
		relayType[input.GamepadButton](ctx, r, bus, &d),
	)
	if err != nil {
		d.detach()
		return nil, err
	}
	return d, nil
}

func relayType[T any](ctx context.Context, r *relay.Relay, bus *events.Bus, d *detacher) error {
	sub, err := relay.Deliver[T](ctx, r, bus)
	if err != nil {
		return err
	}
	d.add(func() { _ = sub.Close() })
	keep(d, bus, relay.Forward[T](ctx, r, bus, priorityRelay))
	return nil
}

func startHealthServer(ctx context.Context, port int, jr *journal.Journal, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if jr != nil {
			if err := jr.PingContext(ctxPing); err != nil {
				http.Error(w, "journal not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, port, mux, "health server", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, port, mux, "metrics server", logger)
}

func serve(ctx context.Context, port int, h http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}

// exportJournal writes every journal entry into a spreadsheet under dir.
func exportJournal(cfg *config.Config, dir string, logger *zerolog.Logger) error {
	jr, err := journal.Open(cfg.Journal.Path, *logger)
	if err != nil {
		return err
	}
	defer jr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("journal_%s.xlsx", time.Now().Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := jr.Export(ctx, journal.Filter{}, f); err != nil {
		return err
	}

	logger.Info().Str("path", path).Msg("journal exported")
	return nil
}
