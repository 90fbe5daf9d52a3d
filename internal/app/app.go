// Package app wires configuration, logging, transport and the replication
// managers into a runnable process. The same binary serves both roles: the
// server listens and runs the authoritative tick loop, the client dials and
// runs the render loop.
package app

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"replicast/internal/config"
	"replicast/internal/manager"
	"replicast/internal/object"
	"replicast/internal/replica"
	"replicast/internal/telemetry"
	"replicast/internal/transport"
)

// Run parses flags, loads configuration and runs the selected role until
// ctx is cancelled or the transport fails.
func Run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("replicast", flag.ContinueOnError)
	role := flags.String("role", "server", "server or client")
	configDir := flags.String("config", ".", "directory containing replicast.cfg.json")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	registerKinds(cfg)
	counters := telemetry.NewCounters()

	switch *role {
	case "server":
		return runServer(ctx, cfg, log, counters)
	case "client":
		return runClient(ctx, cfg, log, counters)
	default:
		return fmt.Errorf("unknown role %q", *role)
	}
}

// registerKinds binds the shipped object kinds with their configuration.
func registerKinds(cfg config.Config) {
	object.RegisterKind(object.KindTransform, func() object.Object {
		return object.NewTransform(object.TransformConfig{
			TraceCapacity:     cfg.ClientTraceFrames(),
			MaxExtrapolation:  cfg.MaxExtrapolationFrames(),
			SmoothingConstant: cfg.SmoothingConstant,
			PositionSnap:      cfg.PositionSnapThreshold,
		})
	})
}

func runServer(ctx context.Context, cfg config.Config, log zerolog.Logger, counters *telemetry.Counters) error {
	server := manager.NewServer(cfg, log, counters)

	// Demo content: one orbiting transform and a tick counter, so a fresh
	// checkout replicates something observable.
	mover := object.NewTransform(object.TransformConfig{
		TraceCapacity:     cfg.ServerTraceFrames(),
		MaxExtrapolation:  cfg.MaxExtrapolationFrames(),
		SmoothingConstant: cfg.SmoothingConstant,
		PositionSnap:      cfg.PositionSnapThreshold,
	})
	server.Registry().Add(mover)
	ticks := object.NewCounters("ticks")
	server.Registry().Add(ticks)

	joins := make(chan transport.Connection, 16)
	go tickLoop(ctx, cfg, server, joins, mover, ticks)

	mux := http.NewServeMux()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("upgrade failed")
			return
		}
		joins <- transport.NewWebsocket(conn, log)
	})
	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		data, err := json.Marshal(counters.Read())
		if err != nil {
			http.Error(w, "failed to encode", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.ListenAddr).Float64("hz", cfg.UpdateFrequency).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// tickLoop owns all replication state on the server: joins are handed over
// here so connection bookkeeping happens on the owning goroutine.
func tickLoop(ctx context.Context, cfg config.Config, server *manager.Server, joins <-chan transport.Connection, mover *object.Transform, ticks *object.Counters) {
	interval := time.Duration(float64(time.Second) / cfg.UpdateFrequency)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	const orbitRadius = 10.0
	// One orbit every ten seconds, expressed per frame.
	omega := 2 * math.Pi / (10 * cfg.UpdateFrequency)

	for {
		select {
		case <-ctx.Done():
			return
		case conn := <-joins:
			server.AddConnection(conn)
		case <-ticker.C:
			server.Tick(func(frame replica.Frame) {
				angle := omega * float64(frame)
				mover.Capture(frame,
					replica.Vec3{X: orbitRadius * math.Cos(angle), Y: orbitRadius * math.Sin(angle)},
					replica.Vec3{X: -orbitRadius * omega * math.Sin(angle), Y: orbitRadius * omega * math.Cos(angle)},
					replica.QuatFromAngularVelocity(replica.Vec3{Z: omega * float64(frame)}),
					replica.Vec3{Z: omega})
				ticks.Set("ticks", float64(frame))
			})
		}
	}
}

func runClient(ctx context.Context, cfg config.Config, log zerolog.Logger, counters *telemetry.Counters) error {
	dialer := websocket.Dialer{}
	raw, _, err := dialer.DialContext(ctx, cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.ServerURL, err)
	}
	conn := transport.NewWebsocket(raw, log)
	defer conn.Close()

	client := manager.NewClient(cfg, log, counters, conn)

	const renderHz = 60.0
	frameInterval := float64(time.Second) / renderHz
	ticker := time.NewTicker(time.Duration(frameInterval))
	defer ticker.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()

	log.Info().Str("server", cfg.ServerURL).Msg("client connected")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-report.C:
			logDisplayedState(log, client)
		case <-ticker.C:
			client.ProcessMessages()
			client.Advance(1.0 / renderHz)
		}
	}
}

func logDisplayedState(log zerolog.Logger, client *manager.Client) {
	client.Registry().Each(func(obj object.Object) {
		transform, ok := obj.(*object.Transform)
		if !ok {
			return
		}
		if position, ok := transform.Position(); ok {
			log.Info().
				Uint32("object", uint32(transform.NetworkID())).
				Float64("x", position.X).
				Float64("y", position.Y).
				Msg("displayed")
		}
	})
}
