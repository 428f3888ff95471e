package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"reservd/internal/audit"
	"reservd/internal/calendar"
	"reservd/internal/command"
	"reservd/internal/config"
	"reservd/internal/engine"
	"reservd/internal/events"
	"reservd/internal/metrics"
	"reservd/internal/models"
	"reservd/internal/repository"
	"reservd/internal/storage"
	"reservd/internal/strategy"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("RESERVD_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStorage(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer closeStore()

	repo, err := repository.New(ctx, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load repository")
	}

	strat, err := buildStrategy(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad strategy config")
	}

	bus := events.NewEventBus()
	bus.Subscribe(events.TypeBookingPreempted, func(ev events.Event) error {
		logger.Info().RawJSON("payload", ev.Payload).Msg("booking preempted")
		return nil
	})

	hist := command.NewHistory(cfg.History.UndoLimit)
	eng := engine.New(repo, strat, hist, bus, logger)

	if cfg.Monitoring.HealthCheckPort != 0 {
		go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, &logger)
	}
	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Str("strategy", strat.Name()).Str("backend", cfg.Storage.Backend).Msg("reservd started")
	repl(ctx, eng, store, cfg, logger)
}

func buildStorage(cfg *config.Config, logger zerolog.Logger) (storage.Storage, func(), error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := storage.NewSQLiteStorage(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "memory":
		return storage.NewMemoryStorage(), func() {}, nil
	default:
		return storage.NewFileStorage(cfg.Storage.SnapshotPath, cfg.Storage.JournalPath, logger), func() {}, nil
	}
}

func buildStrategy(cfg *config.Config) (strategy.Strategy, error) {
	switch cfg.Strategy.Name {
	case "reject":
		return strategy.Reject{}, nil
	case "autobump":
		return strategy.AutoBump{}, nil
	case "preempt":
		return strategy.Preempt{}, nil
	case "quorum":
		return strategy.Quorum{Threshold: cfg.Strategy.QuorumThreshold}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy.Name)
	}
}

const usage = `Commands:
  login <id> <name> <role: admin|manager|user>
  create <room> <hours> <title> <description>
  list <room>
  cancel <id>
  undo
  redo
  strategy <reject|autobump|preempt|quorum>
  import <from-unix> <to-unix>       (needs calendar.file_path in config)
  export [path.xlsx]
  exit
`

func repl(ctx context.Context, eng *engine.Engine, store storage.Storage, cfg *config.Config, logger zerolog.Logger) {
	fmt.Print(usage)

	current := models.User{Name: "guest", Role: models.RoleUser, Priority: 10}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit":
			return

		case "login":
			if len(fields) < 4 {
				fmt.Println("usage: login <id> <name> <role>")
				continue
			}
			id, _ := strconv.ParseInt(fields[1], 10, 64)
			role, priority := models.RoleUser, 10
			switch fields[3] {
			case "admin":
				role, priority = models.RoleAdmin, 100
			case "manager":
				role, priority = models.RoleManager, 50
			}
			current = models.User{ID: id, Name: fields[2], Role: role, Priority: priority}
			fmt.Printf("logged in as %s role=%s\n", current.Name, current.Role)

		case "create":
			if len(fields) < 5 {
				fmt.Println("usage: create <room> <hours> <title> <description>")
				continue
			}
			room, _ := strconv.ParseInt(fields[1], 10, 64)
			hours, _ := strconv.Atoi(fields[2])
			now := time.Now().UTC()
			b := models.Booking{
				RoomID:      room,
				UserID:      current.ID,
				Start:       now,
				End:         now.Add(time.Duration(hours) * time.Hour),
				Title:       fields[3],
				Description: fields[4],
			}
			id, err := eng.Create(ctx, b, current)
			switch {
			case errors.Is(err, models.ErrAccessDenied):
				fmt.Println("access denied")
			case err != nil:
				fmt.Println("error:", err)
			case id == 0:
				fmt.Println("create failed (conflict)")
			default:
				fmt.Println("created booking with id =", id)
			}

		case "list":
			room := int64(1)
			if len(fields) > 1 {
				room, _ = strconv.ParseInt(fields[1], 10, 64)
			}
			now := time.Now().UTC()
			for _, occ := range eng.ListBookings(ctx, room, now.Add(-24*time.Hour), now.Add(24*time.Hour)) {
				fmt.Printf("id=%d title=%q start=%s end=%s owner=%d\n",
					occ.ID, occ.Title, occ.Start.Format(time.RFC3339), occ.End.Format(time.RFC3339), occ.UserID)
			}

		case "cancel":
			if len(fields) < 2 {
				fmt.Println("usage: cancel <id>")
				continue
			}
			id, _ := strconv.ParseInt(fields[1], 10, 64)
			ok, err := eng.Cancel(ctx, id, current)
			switch {
			case errors.Is(err, models.ErrAccessDenied):
				fmt.Println("access denied")
			case err != nil:
				fmt.Println("error:", err)
			case ok:
				fmt.Println("cancelled id =", id)
			default:
				fmt.Println("not found id =", id)
			}

		case "undo":
			msg, err := eng.Undo(ctx)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println(msg)

		case "redo":
			msg, err := eng.Redo(ctx)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println(msg)

		case "strategy":
			if len(fields) < 2 {
				fmt.Println("usage: strategy <name>")
				continue
			}
			cfg.Strategy.Name = fields[1]
			strat, err := buildStrategy(cfg)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			eng.SetStrategy(strat)
			fmt.Println("strategy set to", strat.Name())

		case "import":
			if len(fields) < 3 {
				fmt.Println("usage: import <from-unix> <to-unix>")
				continue
			}
			fromSec, _ := strconv.ParseInt(fields[1], 10, 64)
			toSec, _ := strconv.ParseInt(fields[2], 10, 64)
			var adapter calendar.Adapter
			switch {
			case cfg.Calendar.GoogleCredentials != "":
				ga, err := calendar.NewGoogleAdapter(ctx, cfg.Calendar.GoogleCredentials, cfg.Calendar.GoogleCalendarID,
					cfg.Calendar.GoogleImportRoomID, cfg.Calendar.GoogleImportUserID, logger)
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				adapter = ga
			case cfg.Calendar.FilePath != "":
				adapter = calendar.NewFileAdapter(cfg.Calendar.FilePath)
			default:
				fmt.Println("set calendar.file_path or calendar.google_credentials in config")
				continue
			}
			ids, err := eng.ImportFromCalendar(ctx, adapter, time.Unix(fromSec, 0).UTC(), time.Unix(toSec, 0).UTC(), current)
			if errors.Is(err, models.ErrAccessDenied) {
				fmt.Println("access denied")
				continue
			}
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("imported", len(ids), "bookings:", ids)

		case "export":
			path := cfg.Audit.ExportPath
			if len(fields) > 1 {
				path = fields[1]
			}
			if path == "" {
				fmt.Println("usage: export <path.xlsx>")
				continue
			}
			exporter := audit.NewExporter(store, logger)
			if err := exporter.ExportFile(ctx, path); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("journal exported to", path)

		default:
			fmt.Print(usage)
		}
	}
}

func startHealthServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
