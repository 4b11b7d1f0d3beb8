package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-oidc-connector/auth"
	"github.com/jrsteele09/go-oidc-connector/idp"
	"github.com/jrsteele09/go-oidc-connector/idtoken"
	"github.com/jrsteele09/go-oidc-connector/internal/config"
	"github.com/jrsteele09/go-oidc-connector/internal/metrics"
	"github.com/jrsteele09/go-oidc-connector/server"
	"github.com/jrsteele09/go-oidc-connector/server/loginsession"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer st.Close()

	providerConfig, err := c.GetProviderConfig(ctx)
	if err != nil {
		return fmt.Errorf("provider config: %w", err)
	}
	provider, err := idp.NewClient(providerConfig)
	if err != nil {
		return fmt.Errorf("idp.NewClient: %w", err)
	}
	verifier, err := idtoken.NewVerifier(ctx, idtoken.VerifierConfig{
		ClientID:                  providerConfig.ClientID,
		Issuer:                    providerConfig.Issuer,
		JWKSURI:                   providerConfig.JWKSURI,
		SkipSignatureVerification: c.GetSkipSignatureVerification(),
	})
	if err != nil {
		return fmt.Errorf("idtoken.NewVerifier: %w", err)
	}

	m := metrics.New()
	service, err := auth.NewService(st.repos, provider, verifier,
		auth.WithAuditSink(st.sink),
		auth.WithMetrics(m),
		auth.WithProviderName(providerConfig.DisplayName()),
		auth.WithStateTTL(c.GetStateTTL()),
		auth.WithPreventAccountCreation(c.GetPreventAccountCreation()),
		auth.WithLinkExistingAccounts(c.GetLinkExistingAccounts()),
	)
	if err != nil {
		return fmt.Errorf("auth.NewService: %w", err)
	}

	options := []server.ServerOption{server.WithMetricsHandler(m.Handler())}
	for name, check := range st.health {
		options = append(options, server.WithHealthCheck(name, check))
	}
	s, err := server.New(c, service, loginsession.NewInMemoryLoginSessionRepo(), options...)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	go housekeeping(ctx, c.GetHousekeepingInterval(), service, s)

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	return shutdown(httpServer)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetLogFormat() == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// housekeeping purges abandoned sign-in states and expired login sessions.
func housekeeping(ctx context.Context, interval time.Duration, service *auth.Service, s *server.Server) {
	if interval <= 0 {
		log.Warn().Msg("housekeeping disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if n, err := service.PurgeExpiredStates(ctx); err != nil {
			log.Err(err).Msg("failed to purge expired states")
		} else if n > 0 {
			log.Debug().Int("count", n).Msg("purged expired states")
		}
		if n, err := s.PurgeExpiredSessions(ctx); err != nil {
			log.Err(err).Msg("failed to purge expired sessions")
		} else if n > 0 {
			log.Debug().Int("count", n).Msg("purged expired sessions")
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
