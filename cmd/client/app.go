package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/caredar/caredar/client/location"
	"github.com/caredar/caredar/client/tracker"
	"github.com/caredar/caredar/model"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	_ = godotenv.Load()

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		serverURL  = fs.StringP("server", "s", serverURLFromEnv(), "tracking server websocket url")
		name       = fs.StringP("name", "n", "anonymous", "display name")
		role       = fs.StringP("role", "r", "Patient", "role: Doctor or Patient")
		color      = fs.StringP("color", "c", "#2a9d8f", "display accent color")
		needsCare  = fs.Bool("needs-care", false, "patient: start with the needs-care flag set")
		autoAccept = fs.Bool("auto-accept", false, "doctor: commit to the closest nearby patient automatically")
		lat        = fs.Float64("lat", 0, "starting latitude")
		lng        = fs.Float64("lng", 0, "starting longitude")
		step       = fs.Float64("walk-step", 0.0002, "simulated walk step in degrees")
		interval   = fs.Duration("walk-interval", 3*time.Second, "simulated walk fix interval")
		logLevel   = fs.StringP("log-level", "l", "info", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	parsedRole, err := model.ParseRole(*role)
	if err != nil {
		logger.Fatal().Str("role", *role).Msg("role must be Doctor or Patient")
	}

	var trk *tracker.Tracker
	show := printUpdate(&logger)
	onUpdate := func(u tracker.Update) {
		if *autoAccept {
			if target, ok := autoAcceptTarget(u); ok {
				if err := trk.Accept(target); err != nil {
					logger.Warn().Err(err).Str("patient", target).Msg("auto-accept failed")
				} else {
					logger.Info().Str("patient", target).Msg("accepted patient")
				}
			}
		}
		show(u)
	}
	trk = tracker.New(tracker.Config{
		Logger:    &logger,
		ServerURL: *serverURL,
		Name:      *name,
		Color:     *color,
		Role:      parsedRole,
		NeedsCare: *needsCare,
		OnUpdate:  onUpdate,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	walker := location.NewWalker(model.Location{Lat: *lat, Lng: *lng}, *step, *interval)

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		trk.Run(ctx)
		wg.Done()
	}()
	go func() {
		trk.Track(ctx, walker.Watch(ctx))
		wg.Done()
	}()

	<-ctx.Done()
	logger.Warn().Msg("interrupted")
	wg.Wait()
}

func serverURLFromEnv() string {
	if url := os.Getenv("SERVER_URL"); url != "" {
		return url
	}
	return "ws://localhost:8888/live"
}

// autoAcceptTarget picks the closest nearby patient for an unassigned
// doctor. Once assigned, invalidation is left to the tracker.
func autoAcceptTarget(u tracker.Update) (string, bool) {
	if u.Self.Role != model.RoleDoctor || u.Self.AcceptingPatientID != nil || len(u.NearbyPatients) == 0 {
		return "", false
	}
	return u.NearbyPatients[0].Peer.ID, true
}

func printUpdate(logger *zerolog.Logger) func(tracker.Update) {
	return func(u tracker.Update) {
		ev := logger.Info().
			Str("role", string(u.Self.Role))
		for _, m := range u.NearbyPatients {
			ev = ev.Str("nearby/"+m.Peer.Name, formatMeters(m.Distance))
		}
		for _, m := range u.IncomingDoctors {
			ev = ev.Str("incoming/"+m.Peer.Name, formatMeters(m.Distance))
		}
		ev.Msg("presence update")
	}
}

func formatMeters(d float64) string {
	return strconv.Itoa(int(d+0.5)) + "m"
}
