package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fund_api/internal/apperr"
	"fund_api/internal/config"
	"fund_api/internal/service"
)

// 上下文键，供审计中间件读取
const (
	ctxFundCode = "fund_code"
	ctxMarket   = "market"
	ctxDegraded = "degraded"
)

// Handler API 处理器
type Handler struct {
	funds         *service.FundService
	markets       *service.MarketService
	cfg           *config.Config
	logger        *zap.Logger
	fundLimiter   *RateLimiter
	marketLimiter *RateLimiter
}

// NewHandler 创建处理器
func NewHandler(funds *service.FundService, markets *service.MarketService, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		funds:         funds,
		markets:       markets,
		cfg:           cfg,
		logger:        logger,
		fundLimiter:   NewRateLimiter(cfg.RateLimit.FundPerMinute, cfg.RateLimit.Burst),
		marketLimiter: NewRateLimiter(cfg.RateLimit.MarketPerMinute, cfg.RateLimit.Burst),
	}
}

// Response 统一响应结构
type Response struct {
	Code  int    `json:"code"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// RegisterRoutes 注册路由，mw 作用于需要鉴权的接口（位于鉴权之前）
func (h *Handler) RegisterRoutes(r *gin.Engine, mw ...gin.HandlerFunc) {
	// 健康检查
	r.GET("/health", h.HealthCheck)

	api := r.Group("/")
	api.Use(mw...)
	api.Use(APIKeyAuth(h.cfg.Auth.APIKey))
	{
		api.GET("/fund/single", h.fundLimiter.Middleware(), h.GetFundSingle)
		api.GET("/market/flow", h.marketLimiter.Middleware(), h.GetMarketFlow)
		api.GET("/fund/market-flow", h.marketLimiter.Middleware(), h.GetSectorFlow)

		if h.cfg.Debug.Enabled {
			api.GET("/debug/env", h.DebugEnv)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{Code: http.StatusNotFound, Error: "Not Found"})
	})
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"warmup":    h.funds.WarmupState(),
	})
}

// GetFundSingle 查询单只基金净值
func (h *Handler) GetFundSingle(c *gin.Context) {
	code := strings.TrimSpace(c.Query("fund_code"))
	c.Set(ctxFundCode, code)
	if !service.ValidFundCode(code) {
		h.fail(c, apperr.Validation("fund_code must be 6 digits"))
		return
	}

	result, err := h.funds.Single(c.Request.Context(), code, strings.TrimSpace(c.Query("source")))
	if err != nil {
		h.fail(c, err, zap.String("fund_code", code))
		return
	}

	c.Set(ctxDegraded, result.Degraded)
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Data: result})
}

// GetMarketFlow 查询市场资金流向
func (h *Handler) GetMarketFlow(c *gin.Context) {
	key := strings.ToLower(strings.TrimSpace(c.DefaultQuery("market", "all")))
	c.Set(ctxMarket, key)

	result, err := h.markets.Flow(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err, zap.String("market", key))
		return
	}

	c.Set(ctxDegraded, result.Degraded)
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Data: result})
}

// GetSectorFlow 行业与概念板块资金流排行
func (h *Handler) GetSectorFlow(c *gin.Context) {
	result, err := h.markets.SectorFlow(c.Request.Context(), 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Data: result})
}

// DebugEnv 查看生效配置，API Key 脱敏
func (h *Handler) DebugEnv(c *gin.Context) {
	up := h.cfg.Upstream
	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: gin.H{
			"api_key":       maskKey(h.cfg.Auth.APIKey),
			"mode":          gin.Mode(),
			"fund_source":   up.FundSource,
			"max_retries":   up.MaxRetries,
			"retry_delay":   up.RetryDelay().String(),
			"timeout":       up.RequestTimeout().String(),
			"markets":       h.markets.Markets(),
			"rate_limit":    h.cfg.RateLimit,
			"database":      gin.H{"enabled": h.cfg.Database.Enabled, "type": h.cfg.Database.Type},
			"warmup":        h.funds.WarmupState(),
			"upstream_urls": []string{up.FundEstimateURL, up.NAVHistoryURL, up.NAVTableURL, up.FundDirectoryURL, up.QuoteListURL, up.RankListURL},
		},
	})
}

// fail 输出错误响应。5xx 只返回通用信息，细节写日志
func (h *Handler) fail(c *gin.Context, err error, fields ...zap.Field) {
	e := apperr.From(err)
	message := e.Message
	if e.Status == http.StatusInternalServerError {
		message = "Data processing error"
	}

	fields = append(fields, zap.String("path", c.Request.URL.Path), zap.Int("status", e.Status), zap.Error(err))
	if e.Status >= http.StatusInternalServerError {
		h.logger.Error("请求处理失败", fields...)
	} else {
		h.logger.Info("请求被拒绝", fields...)
	}

	c.AbortWithStatusJSON(e.Status, Response{Code: e.Status, Error: message})
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-2:]
}
