// Package facility builds the broadcast.Facility selected by configuration.
package facility

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/tocsin/internal/config"
	"github.com/dyluth/tocsin/pkg/broadcast"
	"github.com/dyluth/tocsin/pkg/broadcast/dbusfacility"
	"github.com/dyluth/tocsin/pkg/broadcast/fsfacility"
	"github.com/dyluth/tocsin/pkg/broadcast/redisfacility"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the configured facility and a closer releasing its resources.
// The caller must close it after every Broadcaster using it is closed.
func Open(ctx context.Context, cfg *config.TocsinConfig, logger zerolog.Logger) (broadcast.Facility, io.Closer, error) {
	switch cfg.Facility {
	case config.FacilityLocal:
		return broadcast.Local(), nopCloser{}, nil

	case config.FacilityRedis:
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		f, err := redisfacility.New(ctx, redisOpts,
			redisfacility.WithLogger(logger),
			redisfacility.WithTimeout(cfg.Redis.Timeout),
		)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil

	case config.FacilityFS:
		f, err := fsfacility.New(cfg.FS.Dir, fsfacility.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil

	case config.FacilityDBus:
		f, err := dbusfacility.NewSession(dbusfacility.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil

	default:
		return nil, nil, fmt.Errorf("unknown facility: %s", cfg.Facility)
	}
}

// BroadcasterOptions translates configuration into broadcast options.
func BroadcasterOptions(cfg *config.TocsinConfig, f broadcast.Facility, logger zerolog.Logger) []broadcast.Option {
	opts := []broadcast.Option{
		broadcast.WithPrefix(cfg.Prefix),
		broadcast.WithFacility(f),
		broadcast.WithLogger(logger),
	}
	if cfg.PostRate != nil {
		opts = append(opts, broadcast.WithPostRate(rate.Limit(cfg.PostRate.PerSecond), cfg.PostRate.Burst))
	}
	return opts
}
