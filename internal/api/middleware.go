package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fund_api/internal/apperr"
	"fund_api/internal/database"
	"fund_api/internal/models"
)

// APIKeyAuth 校验 X-API-Key 请求头或 api_key 查询参数
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)
	return func(c *gin.Context) {
		provided := c.GetHeader("X-API-Key")
		if provided == "" {
			provided = c.Query("api_key")
		}
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			e := apperr.Unauthorized()
			c.AbortWithStatusJSON(e.Status, Response{Code: e.Status, Error: e.Message})
			return
		}
		c.Next()
	}
}

// 空闲超过该时长的客户端限流器会被清理
const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按客户端 IP 的令牌桶限流
type RateLimiter struct {
	limit     rate.Limit
	burst     int
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// NewRateLimiter perMinute 不大于 0 时不限流
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	l := rate.Inf
	if perMinute > 0 {
		l = rate.Limit(float64(perMinute) / 60)
	}
	return &RateLimiter{
		limit:     l,
		burst:     burst,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
	}
}

// Allow 判断该客户端本次请求是否放行
func (rl *RateLimiter) Allow(client string) bool {
	if rl.limit == rate.Inf {
		return true
	}

	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for k, v := range rl.clients {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	cl, ok := rl.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Middleware 超限返回 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{
				Code:  http.StatusTooManyRequests,
				Error: "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// CORS 允许任意来源
func CORS() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AddAllowHeaders("X-API-Key", "Authorization")
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}

// RequestLogger 用 zap 记录每个请求；不记录查询串，避免 api_key 落入日志
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("请求完成", fields...)
			return
		}
		logger.Info("请求完成", fields...)
	}
}

// Audit 每个接口请求写一条访问记录，写库失败只记日志
func Audit(repo *database.AccessLogRepo, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := &models.AccessLog{
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			FundCode:  c.GetString(ctxFundCode),
			Market:    c.GetString(ctxMarket),
			Status:    c.Writer.Status(),
			LatencyMS: time.Since(start).Milliseconds(),
			Degraded:  c.GetBool(ctxDegraded),
			ClientIP:  c.ClientIP(),
		}
		// 客户端断开后仍要落库
		if err := repo.Create(context.WithoutCancel(c.Request.Context()), entry); err != nil {
			logger.Warn("写入访问记录失败", zap.String("path", entry.Path), zap.Error(err))
		}
	}
}

// NewRouter 创建引擎并挂载中间件与路由，repo 为 nil 时不做审计
func NewRouter(h *Handler, repo *database.AccessLogRepo) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger), CORS())

	var mw []gin.HandlerFunc
	if repo != nil {
		mw = append(mw, Audit(repo, h.logger))
	}
	h.RegisterRoutes(r, mw...)
	return r
}
