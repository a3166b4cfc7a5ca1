package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"fund_api/internal/apperr"
	"fund_api/internal/config"
	"fund_api/internal/models"
	"fund_api/internal/normalize"
	"fund_api/internal/resilient"
	"fund_api/internal/table"
	"fund_api/internal/tradedate"
)

const (
	SourceEstimate = "estimate"
	SourceHistory  = "history"

	unknownFundName = "Unknown"
)

var fundCodePattern = regexp.MustCompile(`^\d{6}$`)

// 行情数据均按北京时间计
var marketLocation = time.FixedZone("CST", 8*3600)

// WarmupState 预热状态
type WarmupState string

const (
	WarmupPending WarmupState = "pending"
	WarmupReady   WarmupState = "ready"
	WarmupFailed  WarmupState = "failed"
)

// FundSource 基金数据上游
type FundSource interface {
	GetFundEstimate(ctx context.Context, code string) (*FundEstimate, error)
	GetNAVHistory(ctx context.Context, code string, size int) (*table.Table, error)
	GetNAVHistoryTable(ctx context.Context, code string, size int) (*table.Table, error)
	GetFundDirectory(ctx context.Context) (map[string]string, error)
}

// FundService 基金净值查询服务
type FundService struct {
	source        FundSource
	policy        resilient.Policy
	logger        *zap.Logger
	historySize   int
	defaultSource string
	now           func() time.Time

	warmOnce sync.Once
	warmErr  error

	mu    sync.RWMutex
	state WarmupState
	names map[string]string
}

// NewFundService 创建基金服务
func NewFundService(source FundSource, cfg *config.UpstreamConfig, logger *zap.Logger) *FundService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaultSource := cfg.FundSource
	if defaultSource == "" {
		defaultSource = SourceEstimate
	}
	return &FundService{
		source:        source,
		policy:        resilient.NewPolicy(cfg.MaxRetries, cfg.RetryDelay(), logger),
		logger:        logger,
		historySize:   cfg.HistorySize,
		defaultSource: defaultSource,
		now:           time.Now,
		state:         WarmupPending,
	}
}

// ValidFundCode 基金代码必须是 6 位数字
func ValidFundCode(code string) bool {
	return fundCodePattern.MatchString(code)
}

// Warmup 加载基金名录，只执行一次；并发调用等待同一次加载并得到相同结果
func (s *FundService) Warmup(ctx context.Context) error {
	s.warmOnce.Do(func() {
		start := time.Now()
		names, err := resilient.Do(ctx, s.policy, "fund_directory", func(ctx context.Context) (map[string]string, error) {
			dir, err := s.source.GetFundDirectory(ctx)
			return dir, permanentIfDeterministic(err)
		})

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.state = WarmupFailed
			s.warmErr = fmt.Errorf("加载基金名录失败: %w", err)
			s.logger.Error("预热失败，基金名称将显示为 Unknown", zap.Error(err))
			return
		}
		s.names = names
		s.state = WarmupReady
		s.logger.Info("预热完成",
			zap.Int("funds", len(names)),
			zap.Duration("elapsed", time.Since(start)))
	})
	return s.warmErr
}

// WarmupState 当前预热状态
func (s *FundService) WarmupState() WarmupState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// FundName 从名录中查询基金简称
func (s *FundService) FundName(code string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[code]
	return name, ok && name != ""
}

// Single 查询单只基金，source 为空时使用配置的默认数据源
func (s *FundService) Single(ctx context.Context, code, source string) (*models.FundQuoteResult, error) {
	if !ValidFundCode(code) {
		return nil, apperr.Validation("fund_code must be 6 digits")
	}
	if source == "" {
		source = s.defaultSource
	}

	switch source {
	case SourceEstimate:
		return s.estimate(ctx, code)
	case SourceHistory:
		return s.history(ctx, code)
	default:
		return nil, apperr.Validation(fmt.Sprintf("unsupported source: %s", source))
	}
}

func (s *FundService) estimate(ctx context.Context, code string) (*models.FundQuoteResult, error) {
	est, err := resilient.Do(ctx, s.policy, "fund_estimate", func(ctx context.Context) (*FundEstimate, error) {
		e, err := s.source.GetFundEstimate(ctx, code)
		return e, permanentIfDeterministic(err)
	})
	if err != nil {
		return nil, err
	}

	result := &models.FundQuoteResult{
		FundCode:       code,
		UnitNAV:        normalize.Number(est.UnitNAV, nil),
		EstimateNAV:    normalize.Number(est.EstimateNAV, nil),
		EstimateGrowth: normalize.Number(est.EstimateGrowth, nil),
	}
	if result.UnitNAV == nil && result.EstimateNAV == nil {
		return nil, apperr.NotFound(fmt.Sprintf("fund %s has no nav data", code))
	}

	result.FundName = normalize.String(est.Name, "")
	s.fillName(result)
	result.Date = dateOnly(est.EstimateTime)
	if result.Date == "" {
		result.Date = dateOnly(est.NAVDate)
	}
	return result, nil
}

func (s *FundService) history(ctx context.Context, code string) (*models.FundQuoteResult, error) {
	target := tradedate.Previous(s.now().In(marketLocation))
	result := &models.FundQuoteResult{
		FundCode:  code,
		QueryDate: target.Format(tradedate.Layout),
	}

	tbl, err := resilient.Do(ctx, s.policy, "nav_history", func(ctx context.Context) (*table.Table, error) {
		t, err := s.source.GetNAVHistory(ctx, code, s.historySize)
		return t, permanentIfDeterministic(err)
	})
	if apperr.Is(err, apperr.KindMalformed) {
		s.logger.Warn("净值接口返回格式异常，改用 F10 表格", zap.String("fund_code", code), zap.Error(err))
		tbl, err = resilient.Do(ctx, s.policy, "nav_table", func(ctx context.Context) (*table.Table, error) {
			t, err := s.source.GetNAVHistoryTable(ctx, code, s.historySize)
			return t, permanentIfDeterministic(err)
		})
		result.MarkDegraded(models.ReasonHTMLTableFallback)
	}
	if err != nil {
		return nil, err
	}
	if tbl.Empty() {
		return nil, apperr.NotFound(fmt.Sprintf("fund %s has no nav records", code))
	}

	dateCol, ok := tbl.Column(ColNAVDate, "FSRQ", "日期")
	if !ok {
		s.logger.Error("净值表缺少日期列",
			zap.String("fund_code", code),
			zap.Strings("columns", tbl.Columns))
		return nil, apperr.Malformed("nav table has no date column", fmt.Errorf("columns=%v", tbl.Columns))
	}
	unitCol, _ := tbl.Column(ColUnitNAV, "DWJZ")
	accumCol, _ := tbl.Column(ColAccumNAV, "LJJZ")
	returnCol, _ := tbl.Column(ColDailyReturn, "JZZZL")

	row, fallback, err := tradedate.Pick(tbl.Rows, target, func(r table.Row) (time.Time, bool) {
		d, err := tradedate.Parse(normalize.String(r.Get(dateCol), ""), marketLocation)
		return d, err == nil
	})
	if errors.Is(err, tradedate.ErrNoRecords) {
		return nil, apperr.NotFound(fmt.Sprintf("fund %s has no dated nav records", code))
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if fallback {
		s.logger.Info("目标日期无净值，使用最新记录",
			zap.String("fund_code", code),
			zap.String("query_date", result.QueryDate))
		result.MarkDegraded(models.ReasonNAVDateFallback)
	}

	result.Date = dateOnly(row.Get(dateCol))
	result.UnitNAV = normalize.Number(row.Get(unitCol), nil)
	result.AccumulativeNAV = normalize.Number(row.Get(accumCol), nil)
	result.DailyReturnPct = normalize.Number(row.Get(returnCol), nil)
	s.fillName(result)
	return result, nil
}

// fillName 上游未给出名称时查名录，仍没有则为 Unknown
func (s *FundService) fillName(result *models.FundQuoteResult) {
	if result.FundName != "" {
		return
	}
	if name, ok := s.FundName(result.FundCode); ok {
		result.FundName = name
		return
	}
	result.FundName = unknownFundName
	result.MarkDegraded(models.ReasonFundNameUnknown)
}

// permanentIfDeterministic 不存在与格式异常重试也不会变化，直接返回
func permanentIfDeterministic(err error) error {
	if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindMalformed) {
		return resilient.Permanent(err)
	}
	return err
}

// dateOnly 取日期部分，无法解析时原样返回去空白后的字符串
func dateOnly(raw any) string {
	s := normalize.String(raw, "")
	if s == "" {
		return ""
	}
	t, err := tradedate.Parse(s, marketLocation)
	if err != nil {
		return s
	}
	return t.Format(tradedate.Layout)
}
