package main

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-oidc-connector/audit"
	"github.com/jrsteele09/go-oidc-connector/audit/amqpsink"
	"github.com/jrsteele09/go-oidc-connector/auth"
	"github.com/jrsteele09/go-oidc-connector/authstate/redisrepo"
	fakestaterepo "github.com/jrsteele09/go-oidc-connector/authstate/repofake"
	"github.com/jrsteele09/go-oidc-connector/internal/config"
	"github.com/jrsteele09/go-oidc-connector/server"
	"github.com/jrsteele09/go-oidc-connector/storage/sqlstore"
	tokenfakerepo "github.com/jrsteele09/go-oidc-connector/token/repofake"
	fakeuserrepo "github.com/jrsteele09/go-oidc-connector/users/repofake"
	"github.com/rs/zerolog/log"
)

// stores is everything the service persists to, plus what has to be closed
// on the way out.
type stores struct {
	repos   auth.Repos
	sink    audit.Sink
	health  map[string]server.HealthCheck
	closers []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Err(err).Msg("failed to close store")
		}
	}
}

func openStores(ctx context.Context, c config.Config) (_ *stores, err error) {
	st := &stores{health: map[string]server.HealthCheck{}}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	switch driver := c.GetStorageDriver(); driver {
	case config.StorageDriverMemory:
		log.Warn().Msg("using in-memory storage, links are lost on restart")
		st.repos = auth.Repos{
			Users:  fakeuserrepo.NewFakeUserRepo(),
			Tokens: tokenfakerepo.NewFakeTokenRepo(),
			States: fakestaterepo.NewFakeStateRepo(),
		}
	case config.StorageDriverSQLite, config.StorageDriverPostgres:
		dialect := sqlstore.DialectSQLite
		if driver == config.StorageDriverPostgres {
			dialect = sqlstore.DialectPostgres
		}
		db, err := sqlstore.Open(ctx, dialect, c.GetStorageDSN())
		if err != nil {
			return nil, fmt.Errorf("sqlstore.Open: %w", err)
		}
		st.closers = append(st.closers, db.Close)
		st.health["database"] = db.Ping
		st.repos = auth.Repos{
			Users:  sqlstore.NewUserRepo(db),
			Tokens: sqlstore.NewTokenRepo(db),
			States: sqlstore.NewStateRepo(db),
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	if redisURL := c.GetRedisURL(); redisURL != "" {
		states, err := redisrepo.NewFromURL(ctx, redisURL, c.GetRedisPrefix(), redisrepo.WithKeyExpiry(2*c.GetStateTTL()))
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, states.Close)
		st.health["redis"] = states.Ping
		st.repos.States = states
	}

	sinks := audit.MultiSink{audit.NewLogSink(log.Logger)}
	if amqpURL := c.GetAMQPURL(); amqpURL != "" {
		publisher, err := amqpsink.Dial(amqpURL, c.GetAMQPExchange())
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, publisher.Close)
		sinks = append(sinks, publisher)
	}
	st.sink = sinks
	return st, nil
}
