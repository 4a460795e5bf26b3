package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"live-quiz-client/internal/app"
	"live-quiz-client/internal/config"
	"live-quiz-client/internal/infra/memory"
	redisstore "live-quiz-client/internal/infra/redis"
	"live-quiz-client/internal/session"
	"live-quiz-client/internal/transport/ws"
)

// resultRepository picks Redis when an address is configured and falls back to memory.
func resultRepository(ctx context.Context, cfg config.Config) (app.ResultRepository, func(), error) {
	if cfg.Redis.Addr == "" {
		return memory.NewResultStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	ttl := config.Duration(cfg.Redis.TTL, 24*time.Hour)
	log.Debug().Str("addr", cfg.Redis.Addr).Dur("ttl", ttl).Msg("storing results in redis")
	return redisstore.NewResultStore(client, ttl), func() { client.Close() }, nil
}

func connConfig(cfg config.Config) ws.Config {
	defaults := ws.DefaultConfig()
	c := defaults
	c.HandshakeTimeout = config.Duration(cfg.Connection.HandshakeTimeout, defaults.HandshakeTimeout)
	c.WriteTimeout = config.Duration(cfg.Connection.WriteTimeout, defaults.WriteTimeout)
	c.ReadTimeout = config.Duration(cfg.Connection.ReadTimeout, defaults.ReadTimeout)
	c.PingInterval = config.Duration(cfg.Connection.PingInterval, defaults.PingInterval)
	if cfg.Connection.MaxMessageSize > 0 {
		c.MaxMessageSize = cfg.Connection.MaxMessageSize
	}
	return c
}

func sessionConfig(cfg config.Config, quizID, participant string) session.Config {
	defaults := session.DefaultConfig()
	return session.Config{
		QuizID:               quizID,
		Participant:          participant,
		AdvanceDelay:         config.Duration(cfg.Session.AdvanceDelay, defaults.AdvanceDelay),
		ResultNotification:   config.Duration(cfg.Session.ResultNotification, defaults.ResultNotification),
		CompleteNotification: config.Duration(cfg.Session.CompleteNotification, defaults.CompleteNotification),
		ErrorNotification:    config.Duration(cfg.Session.ErrorNotification, defaults.ErrorNotification),
	}
}

func reconnectPolicy(cfg config.Config) app.ReconnectPolicy {
	return app.ReconnectPolicy{
		MaxRetries:      cfg.Reconnect.MaxRetries,
		InitialInterval: config.Duration(cfg.Reconnect.InitialInterval, 500*time.Millisecond),
		MaxInterval:     config.Duration(cfg.Reconnect.MaxInterval, 10*time.Second),
	}
}

func wsConns(serverURL string, c ws.Config) app.ConnFactory {
	return app.ConnFactoryFunc(func(quizID, participant string) session.Conn {
		return ws.New(ws.Endpoint{BaseURL: serverURL, QuizID: quizID, Participant: participant}, c)
	})
}
