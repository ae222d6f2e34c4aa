package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sazardev/hrauth/internal/cache"
	"github.com/sazardev/hrauth/internal/config"
	"github.com/sazardev/hrauth/internal/mail"
	"github.com/sazardev/hrauth/internal/middleware"
	"github.com/sazardev/hrauth/internal/models"
	"github.com/sazardev/hrauth/internal/repository"
	"github.com/sazardev/hrauth/internal/service"
)

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	authService *service.AuthService
	sessions    *service.SessionService
	auditor     *service.LoginAuditor
	changelog   *repository.ChangeLogRepository
	db          *pgxpool.Pool
	cache       *redis.Client
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, redisClient *redis.Client, mailer mail.Sender, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)
	ledgerRepo := repository.NewChangeLogRepository(db)
	txManager := repository.NewTxManager(db)
	tokenCache := cache.NewTokenCache(redisClient)

	sessions := service.NewSessionService(sessionRepo, ledgerRepo, cfg.Security.SessionInactivity, log)
	auditor := service.NewLoginAuditor(attemptRepo, ledgerRepo, log)
	auth := service.NewAuthService(
		userRepo, tokenRepo, attemptRepo, sessions, auditor, ledgerRepo,
		txManager, tokenCache, mailer, cfg.Security, cfg.BaseURL, log,
	)

	return HandlerSet{
		log:         log,
		cfg:         cfg,
		authService: auth,
		sessions:    sessions,
		auditor:     auditor,
		changelog:   ledgerRepo,
		db:          db,
		cache:       redisClient,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
		auth.POST("/password-reset", h.RequestPasswordReset)
		auth.POST("/password-reset/confirm", h.ConfirmPasswordReset)
		auth.POST("/verify-email", h.VerifyEmail)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.authService))
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.ListSessions)
		protected.POST("/change-password", h.ChangePassword)

		admin := v1.Group("/admin")
		admin.Use(
			middleware.Auth(h.authService),
			middleware.RequireRoles(models.UserRoleAdmin, models.UserRoleSuperAdmin),
		)
		admin.GET("/sessions", h.AdminListSessions)
		admin.DELETE("/sessions", h.AdminForceLogout)
		admin.GET("/sessions/history/:userId", h.AdminUserSessions)
		admin.GET("/login-attempts", h.AdminListLoginAttempts)
		admin.GET("/changelog/:entityType/:entityId", h.AdminEntityHistory)
		admin.PATCH("/users/:userId/status", h.AdminSetUserStatus)
	}
}

// writeError maps service errors to status codes. Unmapped errors become an
// opaque 500 so internals never leak to clients.
func (h HandlerSet) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
	case errors.Is(err, service.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username_taken"})
	case errors.Is(err, service.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "weak_password"})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
