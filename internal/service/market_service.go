package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fund_api/internal/apperr"
	"fund_api/internal/config"
	"fund_api/internal/market"
	"fund_api/internal/models"
	"fund_api/internal/normalize"
	"fund_api/internal/resilient"
	"fund_api/internal/table"
)

// 上游只有沪深两个指数行，两市合计由这两行相加得到
const (
	marketCombined = "all"
	marketSH       = "sh"
	marketSZ       = "sz"
)

var summedColumns = []string{ColMainNet, ColSuperNet, ColBigNet, ColMediumNet, ColSmallNet}

// MarketSource 资金流上游
type MarketSource interface {
	GetMarketFlowTable(ctx context.Context) (*table.Table, error)
	GetSectorFlowTop(ctx context.Context, sector string, n int) (*table.Table, error)
}

// MarketService 市场资金流服务
type MarketService struct {
	source   MarketSource
	resolver *market.Resolver
	policy   resilient.Policy
	logger   *zap.Logger
	topN     int
	now      func() time.Time
}

// NewMarketService 创建市场资金流服务
func NewMarketService(source MarketSource, resolver *market.Resolver, cfg *config.UpstreamConfig, logger *zap.Logger) *MarketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}
	return &MarketService{
		source:   source,
		resolver: resolver,
		policy:   resilient.NewPolicy(cfg.MaxRetries, cfg.RetryDelay(), logger),
		logger:   logger,
		topN:     topN,
		now:      time.Now,
	}
}

// Markets 支持的市场键
func (s *MarketService) Markets() []string {
	return s.resolver.Keys()
}

// Flow 查询单个市场的资金流向
func (s *MarketService) Flow(ctx context.Context, key string) (*models.MarketFlowResult, error) {
	if _, ok := s.resolver.Lookup(key); !ok {
		return nil, apperr.Validation(fmt.Sprintf("unsupported market: %s", key))
	}

	tbl, err := resilient.Do(ctx, s.policy, "market_flow", func(ctx context.Context) (*table.Table, error) {
		t, err := s.source.GetMarketFlowTable(ctx)
		return t, permanentIfDeterministic(err)
	})
	if err != nil {
		return nil, err
	}

	synthesizedFuzzy := false
	if key == marketCombined {
		synthesizedFuzzy = s.appendCombinedRow(tbl)
	}

	row, match, err := s.resolver.Resolve(tbl, ColName, key)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.logger.Warn("资金流表中找不到市场",
				zap.String("market", key),
				zap.Strings("columns", tbl.Columns),
				zap.Int("rows", tbl.Len()))
		}
		return nil, err
	}

	medium := normalize.Number(row.Get(ColMediumNet), nil)
	small := normalize.Number(row.Get(ColSmallNet), nil)
	result := &models.MarketFlowResult{
		Market:              key,
		MarketName:          normalize.String(row.Get(ColName), ""),
		MainNetInflow:       normalize.Number(row.Get(ColMainNet), nil),
		RetailNetInflow:     sum(medium, small),
		BigOrderNetInflow:   normalize.Number(row.Get(ColBigNet), nil),
		SmallOrderNetInflow: small,
		MainNetRatio:        normalize.Number(row.Get(ColMainRatio), nil),
		UpdateTime:          s.updateTime(row.Get(ColUpdateTime)),
	}
	if match == market.MatchFuzzy || synthesizedFuzzy {
		s.logger.Warn("市场标签未精确命中，使用模糊匹配",
			zap.String("market", key),
			zap.String("matched", result.MarketName))
		result.MarkDegraded(models.ReasonFuzzyMarketMatch)
	}
	return result, nil
}

// appendCombinedRow 表中没有两市合计行时，用沪、深两行相加补一行。
// 任一行是模糊命中时返回 true
func (s *MarketService) appendCombinedRow(tbl *table.Table) bool {
	if _, _, err := s.resolver.Resolve(tbl, ColName, marketCombined); err == nil {
		return false
	}
	sh, matchSH, errSH := s.resolver.Resolve(tbl, ColName, marketSH)
	sz, matchSZ, errSZ := s.resolver.Resolve(tbl, ColName, marketSZ)
	if errSH != nil || errSZ != nil {
		return false
	}
	mapping, _ := s.resolver.Lookup(marketCombined)

	row := table.Row{ColName: mapping.Label}
	for _, col := range summedColumns {
		if v := sum(normalize.Number(sh.Get(col), nil), normalize.Number(sz.Get(col), nil)); v != nil {
			row[col] = *v
		}
	}
	// 两市成交额不可得，占比取两者平均
	if a, b := normalize.Number(sh.Get(ColMainRatio), nil), normalize.Number(sz.Get(ColMainRatio), nil); a != nil && b != nil {
		row[ColMainRatio] = decimal.NewFromFloat(*a).Add(decimal.NewFromFloat(*b)).Div(decimal.NewFromInt(2)).InexactFloat64()
	}
	ta, tb := normalize.FloatOr(sh.Get(ColUpdateTime), 0), normalize.FloatOr(sz.Get(ColUpdateTime), 0)
	if tb > ta {
		ta = tb
	}
	if ta > 0 {
		row[ColUpdateTime] = ta
	}
	tbl.Append(row)
	return matchSH == market.MatchFuzzy || matchSZ == market.MatchFuzzy
}

// updateTime f124 为 Unix 秒
func (s *MarketService) updateTime(raw any) string {
	if sec, ok := normalize.Float(raw); ok {
		if sec <= 0 {
			return ""
		}
		return time.Unix(int64(sec), 0).In(marketLocation).Format("2006-01-02 15:04:05")
	}
	return normalize.String(raw, "")
}

// SectorFlow 并发获取行业、概念板块主力净流入前 n 名
func (s *MarketService) SectorFlow(ctx context.Context, n int) (*models.SectorFlow, error) {
	if n <= 0 {
		n = s.topN
	}

	var industries, concepts []models.FlowItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.sectorTop(gctx, "sector_industry", SectorIndustry, n)
		industries = items
		return err
	})
	g.Go(func() error {
		items, err := s.sectorTop(gctx, "sector_concept", SectorConcept, n)
		concepts = items
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.SectorFlow{
		Date:          s.now().In(marketLocation).Format("2006-01-02"),
		TopIndustries: industries,
		TopConcepts:   concepts,
	}, nil
}

func (s *MarketService) sectorTop(ctx context.Context, name, sector string, n int) ([]models.FlowItem, error) {
	tbl, err := resilient.Do(ctx, s.policy, name, func(ctx context.Context) (*table.Table, error) {
		t, err := s.source.GetSectorFlowTop(ctx, sector, n)
		return t, permanentIfDeterministic(err)
	})
	if err != nil {
		return nil, err
	}

	items := make([]models.FlowItem, 0, tbl.Len())
	for _, row := range tbl.Rows {
		v := normalize.Number(row.Get(ColMainNet), nil)
		if v == nil {
			continue
		}
		items = append(items, models.FlowItem{
			Name:      normalize.String(row.Get(ColName), ""),
			NetInflow: v,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return *items[i].NetInflow > *items[j].NetInflow
	})
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

// sum 任一缺失时结果缺失
func sum(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	v := decimal.NewFromFloat(*a).Add(decimal.NewFromFloat(*b)).InexactFloat64()
	return &v
}
