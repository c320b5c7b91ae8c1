package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/aeroduel/arena/go/internal/api"
	"github.com/aeroduel/arena/go/internal/arena"
	"github.com/aeroduel/arena/go/internal/config"
	"github.com/aeroduel/arena/go/internal/eventbus"
	"github.com/aeroduel/arena/go/internal/gateway"
	"github.com/aeroduel/arena/go/internal/metrics"
	"github.com/aeroduel/arena/go/internal/netinfo"
)

type Services struct {
	Arena   *arena.Arena
	Gateway *gateway.Service
	API     *api.Handler
	Metrics *metrics.Service

	// Bus is nil when no NATS URL is configured.
	Bus  *eventbus.Bus
	nats *nats.Conn

	wg sync.WaitGroup
}

func setupServices(cfg config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Metrics → Arena → Realtime channel / event mirror → HTTP API
	m := metrics.NewService()

	locator := netinfo.NewLocator(cfg.PublicHost, cfg.MDNSName, cfg.Port)
	a, err := arena.New(cfg.ServerToken,
		arena.WithMetrics(m),
		arena.WithLocator(locator),
		arena.WithGracePeriod(cfg.Game.GracePeriod),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create arena: %w", err)
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig.HelloTimeout = cfg.Gateway.HelloTimeout
	gatewayConfig.ConnectionConfig.PingInterval = cfg.Gateway.PingInterval
	gatewayConfig.ConnectionConfig.SendBufferSize = cfg.Gateway.SendBufferSize
	gatewayService := gateway.NewService(gatewayConfig, a, m)
	a.AddNotifier(gatewayService)

	s := &Services{
		Arena:   a,
		Gateway: gatewayService,
		API:     api.NewHandler(a, m),
		Metrics: m,
	}

	if cfg.NATS.URL != "" {
		busConfig := eventbus.DefaultConfig()
		busConfig.URL = cfg.NATS.URL
		busConfig.SubjectPrefix = cfg.NATS.SubjectPrefix

		nc, err := eventbus.Connect(busConfig)
		if err != nil {
			a.Close()
			return nil, err
		}
		s.nats = nc
		s.Bus = eventbus.New(nc, busConfig, clockwork.NewRealClock())
		a.AddNotifier(s.Bus)
	} else {
		log.Info().Msg("NATS_URL not set, event mirror disabled")
	}

	return s, nil
}

// Start runs the background loops until ctx is cancelled.
func (s *Services) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Gateway.Start(ctx)
	}()

	if s.Bus != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Bus.Start(ctx)
		}()
	}
}

// Close waits for the background loops and releases timers and the NATS
// connection. ctx must already be cancelled.
func (s *Services) Close() {
	s.wg.Wait()
	s.Arena.Close()
	if s.nats != nil {
		if err := s.nats.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
}
