// README: Entry point; loads config, wires stores and services, starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridepool/internal/ai"
	"ridepool/internal/config"
	httptransport "ridepool/internal/http"
	"ridepool/internal/infra"
	"ridepool/internal/logging"
	"ridepool/internal/maps"
	"ridepool/internal/modules/aiusage"
	"ridepool/internal/modules/booking"
	"ridepool/internal/modules/history"
	"ridepool/internal/modules/matching"
	"ridepool/internal/modules/notify"
	"ridepool/internal/modules/profile"
	"ridepool/internal/modules/ride"
	"ridepool/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	loc, err := cfg.Location()
	if err != nil {
		logging.Fatal().Err(err).Str("timezone", cfg.Matching.Timezone).Msg("timezone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("firebase init")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		logging.Fatal().Err(err).Msg("firebase auth")
	}
	fs, err := infra.NewFirestore(ctx, app)
	if err != nil {
		logging.Fatal().Err(err).Msg("firestore")
	}
	defer fs.Close()
	fcm, err := infra.NewMessaging(ctx, app)
	if err != nil {
		logging.Fatal().Err(err).Msg("firebase messaging")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logging.Fatal().Err(err).Msg("postgres")
	}
	defer dbPool.Close()
	if err := infra.Migrate(ctx, dbPool); err != nil {
		logging.Fatal().Err(err).Msg("migrate")
	}

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		logging.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	mapsClient, err := maps.NewClient(cfg.Maps.APIKey)
	if err != nil {
		logging.Fatal().Err(err).Msg("maps client")
	}
	geocoder := maps.NewGeocoder(mapsClient, cfg.Maps.RequestsPerSecond)
	router := maps.NewRouter(mapsClient, cfg.Maps.RouteTimeout, cfg.Maps.RequestsPerSecond)

	rideStore := ride.NewStore(fs, loc)
	bookingStore := booking.NewStore(fs)
	profileStore := profile.NewStore(fs)
	historySvc := history.NewService(history.NewStore(dbPool))

	hub := notify.NewHub(notify.NewRedisBroker(redisClient))
	dispatcher := notify.NewDispatcher(notify.NewPushSender(fcm, profileStore), hub, loc)

	matchingSvc := matching.NewService(matching.Deps{
		Rides:    rideStore,
		Editor:   ride.NewService(rideStore),
		Bookings: bookingStore,
		Profiles: profileStore,
		Notifier: dispatcher,
		Routes:   router,
		History:  historySvc,
	}, matching.Options{RestoreSeatsOnCancel: cfg.Matching.RestoreSeatsOnCancel})

	var llm ai.LLMProvider
	if cfg.AI.GeminiKey != "" {
		gemini, err := ai.NewGeminiProvider(ctx, cfg.AI.GeminiKey)
		if err != nil {
			logging.Fatal().Err(err).Msg("gemini")
		}
		defer gemini.Close()
		llm = gemini
	} else {
		logging.Warn().Msg("no Gemini key configured; ride assistant disabled")
	}
	quota := aiusage.NewService(aiusage.NewStore(dbPool), cfg.AI.MonthlyAllowance, loc)
	assistant := service.NewRideAssistant(llm, quota, geocoder, matchingSvc, loc)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Verifier:      verifier,
		Matcher:       matchingSvc,
		Rides:         rideStore,
		Bookings:      booking.NewService(bookingStore, rideStore),
		Profiles:      profile.NewService(profileStore),
		Places:        geocoder,
		Routes:        router,
		Notifications: hub,
		Assistant:     assistant,
		Location:      loc,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("http shutdown")
		}
	}()

	logging.Info().Str("addr", cfg.HTTP.Addr).Str("timezone", loc.String()).Msg("ridepool api listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal().Err(err).Msg("http server")
	}
}
