package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dyluth/tocsin/internal/config"
	"github.com/dyluth/tocsin/internal/facility"
	"github.com/dyluth/tocsin/internal/logging"
	"github.com/dyluth/tocsin/internal/printer"
	"github.com/dyluth/tocsin/pkg/broadcast"
	"github.com/rs/zerolog"
)

// session is everything a subcommand needs to post or listen.
type session struct {
	cfg         *config.TocsinConfig
	logger      zerolog.Logger
	broadcaster *broadcast.Broadcaster
	closer      io.Closer
}

// lookupEnv layers the global flags over the process environment.
func lookupEnv(key string) (string, bool) {
	flagValues := map[string]string{
		"TOCSIN_PREFIX":    flagPrefix,
		"TOCSIN_FACILITY":  flagFacility,
		"TOCSIN_REDIS_URL": flagRedisURL,
		"TOCSIN_FS_DIR":    flagFSDir,
		"TOCSIN_LOG_LEVEL": flagLogLevel,
	}
	if v := flagValues[key]; v != "" {
		return v, true
	}
	return os.LookupEnv(key)
}

// openSession resolves configuration, opens the facility and creates the
// broadcaster. Errors are already printed when returned.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Resolve(configPath, lookupEnv)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check %s and any TOCSIN_* environment variables", configPath)},
		)
	}

	logger := logging.New(cfg.Logging, os.Stderr)

	f, closer, err := facility.Open(ctx, cfg, logger)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"failed to open notification facility",
			err.Error(),
			facilityContext(cfg),
			facilitySuggestions(cfg),
		)
	}

	return &session{
		cfg:         cfg,
		logger:      logger,
		broadcaster: broadcast.New(facility.BroadcasterOptions(cfg, f, logger)...),
		closer:      closer,
	}, nil
}

func (s *session) Close() {
	s.broadcaster.Close()
	if err := s.closer.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("error closing facility")
	}
}

func facilityContext(cfg *config.TocsinConfig) map[string]string {
	ctx := map[string]string{
		"Facility": cfg.Facility,
		"Prefix":   cfg.Prefix,
	}
	switch cfg.Facility {
	case config.FacilityRedis:
		ctx["Redis URL"] = cfg.Redis.URL
	case config.FacilityFS:
		ctx["Directory"] = cfg.FS.Dir
	}
	return ctx
}

func facilitySuggestions(cfg *config.TocsinConfig) []string {
	switch cfg.Facility {
	case config.FacilityRedis:
		return []string{
			fmt.Sprintf("Check Redis is reachable:\n  redis-cli -u %s ping", cfg.Redis.URL),
			"Use the fs facility instead:\n  tocsin --facility fs ...",
		}
	case config.FacilityFS:
		return []string{fmt.Sprintf("Check the directory is writable:\n  ls -ld %s", cfg.FS.Dir)}
	case config.FacilityDBus:
		return []string{"Check DBUS_SESSION_BUS_ADDRESS is set and a session bus is running"}
	default:
		return nil
	}
}

func identifiers(args []string) []broadcast.Identifier {
	ids := make([]broadcast.Identifier, len(args))
	for i, arg := range args {
		ids[i] = broadcast.Identifier(arg)
	}
	return ids
}

func qualifiedNames(b *broadcast.Broadcaster, ids []broadcast.Identifier) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = b.Namespacer().Qualify(id)
	}
	return names
}
