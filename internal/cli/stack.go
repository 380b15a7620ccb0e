package cli

import (
	"context"
	"fmt"

	"github.com/Wyydra/yamesh/internal/adapter/driven/codec"
	"github.com/Wyydra/yamesh/internal/adapter/driven/media/pion"
	"github.com/Wyydra/yamesh/internal/adapter/driven/relay/memory"
	redisrelay "github.com/Wyydra/yamesh/internal/adapter/driven/relay/redis"
	wsrelay "github.com/Wyydra/yamesh/internal/adapter/driven/relay/ws"
	handler "github.com/Wyydra/yamesh/internal/adapter/driving/http"
	"github.com/Wyydra/yamesh/internal/config"
	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/Wyydra/yamesh/internal/core/service"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// openRelay connects the configured relay backend. The returned func
// releases it.
func openRelay(ctx context.Context, cfg *config.Config, room domain.RoomID, self domain.ParticipantID) (port.RelayChannel, func(), error) {
	switch cfg.Relay {
	case "ws":
		token := cfg.Token
		if token == "" && cfg.Server.JWTSecret != "" {
			var err error
			if token, err = handler.IssueToken(cfg.Server.JWTSecret, self.String(), room.String(), config.DefaultTokenTTL); err != nil {
				return nil, nil, err
			}
		}
		c, err := wsrelay.Dial(ctx, cfg.HubURL, token)
		if err != nil {
			return nil, nil, domain.WrapError("dial hub", domain.ErrRelay, err.Error())
		}
		return c, func() { closeQuietly("hub connection", c.Close) }, nil

	case "redis":
		r, err := redisrelay.Connect(ctx, redisrelay.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, domain.WrapError("connect redis", domain.ErrRelay, err.Error())
		}
		return r, func() { closeQuietly("redis connection", r.Close) }, nil

	case "memory":
		bus := memory.NewBus()
		go bus.Run()
		return bus, bus.Stop, nil

	default:
		return nil, nil, fmt.Errorf("unknown relay %q", cfg.Relay)
	}
}

// relayDone returns a channel closed when the relay connection is lost, or
// nil for relays that do not report it.
func relayDone(relay port.RelayChannel) <-chan struct{} {
	if d, ok := relay.(interface{ Done() <-chan struct{} }); ok {
		return d.Done()
	}
	return nil
}

func closeQuietly(what string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn().Err(err).Msgf("Failed to close %s", what)
	}
}

func newTransportFactory(cfg *config.Config) (*pion.Factory, error) {
	api, err := pion.NewAPI(webrtc.SettingEngine{})
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC API: %w", err)
	}
	return pion.NewFactory(api, pion.WithForceRelay(cfg.ForceRelay)), nil
}

func newCallService(cfg *config.Config, relay port.RelayChannel, factory port.TransportFactory) (*service.CallService, error) {
	c, err := codec.New(cfg.Codec)
	if err != nil {
		return nil, err
	}
	return service.NewCallService(relay, factory, c,
		service.WithICEServers(cfg.ICEServers),
		service.WithPublishTimeout(cfg.PublishTimeout),
		service.WithDisconnectTimeout(cfg.DisconnectTimeout),
		service.WithMaxPeers(cfg.MaxPeers),
		service.WithLogger(log.Logger),
	), nil
}
