package models

import (
	"time"
)

// FundQuoteResult 单只基金净值/估值，每次请求即时构造，不落库
type FundQuoteResult struct {
	FundCode        string   `json:"fund_code"`
	FundName        string   `json:"fund_name"`
	UnitNAV         *float64 `json:"unit_nav,omitempty"`         // 单位净值
	EstimateNAV     *float64 `json:"estimate_nav,omitempty"`     // 估算净值
	EstimateGrowth  *float64 `json:"estimate_growth,omitempty"`  // 估算涨幅(%)
	AccumulativeNAV *float64 `json:"accumulative_nav,omitempty"` // 累计净值
	DailyReturnPct  *float64 `json:"daily_return_pct,omitempty"` // 日增长率(%)
	Date            string   `json:"date"`                       // 净值/估值所属日期
	QueryDate       string   `json:"query_date,omitempty"`       // 推算的最近交易日
	Degraded        bool     `json:"degraded,omitempty"`
	DegradedReason  []string `json:"degraded_reason,omitempty"`
}

// MarkDegraded 标记降级数据
func (r *FundQuoteResult) MarkDegraded(reason string) {
	r.Degraded = true
	r.DegradedReason = append(r.DegradedReason, reason)
}

// MarketFlowResult 市场资金流向（单位：元）
type MarketFlowResult struct {
	Market              string   `json:"market"`
	MarketName          string   `json:"market_name"`
	MainNetInflow       *float64 `json:"main_net_inflow"`        // 主力净流入
	RetailNetInflow     *float64 `json:"retail_net_inflow"`      // 散户净流入（中单+小单）
	BigOrderNetInflow   *float64 `json:"big_order_net_inflow"`   // 大单净流入
	SmallOrderNetInflow *float64 `json:"small_order_net_inflow"` // 小单净流入
	MainNetRatio        *float64 `json:"main_net_ratio"`         // 主力净占比(%)
	UpdateTime          string   `json:"update_time"`
	Degraded            bool     `json:"degraded,omitempty"`
	DegradedReason      []string `json:"degraded_reason,omitempty"`
}

// MarkDegraded 标记降级数据
func (r *MarketFlowResult) MarkDegraded(reason string) {
	r.Degraded = true
	r.DegradedReason = append(r.DegradedReason, reason)
}

// FlowItem 板块资金净流入
type FlowItem struct {
	Name      string   `json:"name"`
	NetInflow *float64 `json:"net_inflow"`
}

// SectorFlow 行业与概念板块资金流排行
type SectorFlow struct {
	Date          string     `json:"date"`
	TopIndustries []FlowItem `json:"top_industries"`
	TopConcepts   []FlowItem `json:"top_concepts"`
}

// 降级原因
const (
	ReasonNAVDateFallback   = "nav_date_fallback"
	ReasonHTMLTableFallback = "html_table_fallback"
	ReasonFuzzyMarketMatch  = "fuzzy_market_match"
	ReasonFundNameUnknown   = "fund_name_unknown"
)

// AccessLog 接口访问审计，只记录请求元信息
type AccessLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Method    string    `gorm:"type:varchar(10)" json:"method"`
	Path      string    `gorm:"type:varchar(100);index:idx_access_path" json:"path"`
	FundCode  string    `gorm:"type:varchar(10)" json:"fund_code"`
	Market    string    `gorm:"type:varchar(10)" json:"market"`
	Status    int       `gorm:"type:int;index:idx_access_status" json:"status"`
	LatencyMS int64     `gorm:"type:bigint" json:"latency_ms"`
	Degraded  bool      `json:"degraded"`
	ClientIP  string    `gorm:"type:varchar(64)" json:"client_ip"`
	CreatedAt time.Time `gorm:"index:idx_access_created_at" json:"created_at"`
}

// TableName 指定表名
func (AccessLog) TableName() string {
	return "access_logs"
}
