package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/connectplus/wallet-ledger/internal/config"
	"github.com/connectplus/wallet-ledger/internal/service"
)

func NewRouter(svc *service.LedgerService, cfg *config.Config, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	RegisterHandlers(r, svc, cfg.Auth.JWTSecret)
	return r
}
