package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sazardev/hrauth/internal/cache"
	"github.com/sazardev/hrauth/internal/config"
	"github.com/sazardev/hrauth/internal/repository"
	"github.com/sazardev/hrauth/internal/service"
)

// Sweeper runs the periodic maintenance jobs: bulk-closing idle sessions,
// deleting tokens past their absolute expiry, and pruning old login attempts.
// Lazy expiry on the read path keeps correctness; the sweeper just keeps the
// tables from accumulating dead rows.
type Sweeper struct {
	cron     *cron.Cron
	sessions *service.SessionService
	tokens   *repository.TokenRepository
	auditor  *service.LoginAuditor
	cache    *cache.TokenCache
	cfg      config.SecurityConfig
	log      zerolog.Logger
}

func NewSweeper(db *pgxpool.Pool, redisClient *redis.Client, cfg config.SecurityConfig, log zerolog.Logger) *Sweeper {
	sessionRepo := repository.NewSessionRepository(db)
	ledgerRepo := repository.NewChangeLogRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)

	return &Sweeper{
		cron:     cron.New(cron.WithSeconds()),
		sessions: service.NewSessionService(sessionRepo, ledgerRepo, cfg.SessionInactivity, log),
		tokens:   repository.NewTokenRepository(db),
		auditor:  service.NewLoginAuditor(attemptRepo, ledgerRepo, log),
		cache:    cache.NewTokenCache(redisClient),
		cfg:      cfg,
		log:      log,
	}
}

func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("0 */5 * * * *", s.sweepSessions); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 10 */1 * * *", s.sweepTokens); err != nil { // hourly
		return err
	}
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.pruneAttempts); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for in-flight jobs, up to five seconds.
func (s *Sweeper) Stop() {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("sweeper stop timed out")
	}
}

func (s *Sweeper) sweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	closed, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("session sweep failed")
		return
	}
	if closed > 0 {
		s.log.Info().Int("closed", closed).Msg("idle sessions swept")
	}
}

func (s *Sweeper) sweepTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.tokens.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("token sweep failed")
		return
	}
	if len(deleted) == 0 {
		return
	}

	hashes := make([][]byte, 0, len(deleted))
	for _, token := range deleted {
		hashes = append(hashes, token.TokenHash)
	}
	if err := s.cache.Forget(ctx, hashes...); err != nil {
		s.log.Warn().Err(err).Msg("token cache forget failed")
	}
	s.log.Info().Int("deleted", len(deleted)).Msg("expired tokens swept")
}

func (s *Sweeper) pruneAttempts() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pruned, err := s.auditor.Prune(ctx, s.cfg.AttemptRetention)
	if err != nil {
		s.log.Error().Err(err).Msg("attempt prune failed")
		return
	}
	if pruned > 0 {
		s.log.Info().Int64("pruned", pruned).Msg("old login attempts pruned")
	}
}
