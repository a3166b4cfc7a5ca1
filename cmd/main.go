package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"fund_api/internal/api"
	"fund_api/internal/config"
	"fund_api/internal/database"
	"fund_api/internal/market"
	"fund_api/internal/service"
)

const defaultConfigPath = "./config/config.yaml"

func main() {
	configPath := os.Getenv("FUND_API_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config error: %v", err)
	}
	// 初始化日志
	logger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("配置加载成功", zap.String("path", configPath))

	// 审计库可选
	var auditRepo *database.AccessLogRepo
	if cfg.Database.Enabled {
		if err := database.InitDB(&cfg.Database); err != nil {
			logger.Fatal("初始化数据库失败", zap.Error(err))
		}
		defer func() { _ = database.Close() }()
		auditRepo = database.NewAccessLogRepo(database.GetDB())
		logger.Info("访问审计已启用", zap.String("type", cfg.Database.Type))
	}

	client := service.NewEastmoneyClient(&cfg.Upstream)
	resolver, err := market.NewResolver(cfg.Markets)
	if err != nil {
		logger.Fatal("市场映射无效", zap.Error(err))
	}
	funds := service.NewFundService(client, &cfg.Upstream, logger)
	markets := service.NewMarketService(client, resolver, &cfg.Upstream, logger)

	// 预热失败不阻止启动，基金名称降级为 Unknown
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := funds.Warmup(warmCtx); err != nil {
		logger.Warn("预热未完成", zap.Error(err))
	}
	warmCancel()

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	handler := api.NewHandler(funds, markets, cfg, logger)
	r := api.NewRouter(handler, auditRepo)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 启动服务器
	go func() {
		logger.Info("服务器启动", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器强制关闭", zap.Error(err))
	}

	logger.Info("服务器已关闭")
}

// initLogger 初始化日志，同时输出到标准输出和按大小轮转的文件
func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}
	if cfg.File != "" {
		// 创建日志目录
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
