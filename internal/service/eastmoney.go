package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"fund_api/internal/apperr"
	"fund_api/internal/config"
	"fund_api/internal/table"
)

// NAV 表格列名
const (
	ColNAVDate     = "净值日期"
	ColUnitNAV     = "单位净值"
	ColAccumNAV    = "累计净值"
	ColDailyReturn = "日增长率"
)

// 资金流表格列名
const (
	ColCode       = "代码"
	ColName       = "名称"
	ColMainNet    = "主力净流入"
	ColSuperNet   = "超大单净流入"
	ColBigNet     = "大单净流入"
	ColMediumNet  = "中单净流入"
	ColSmallNet   = "小单净流入"
	ColMainRatio  = "主力净占比"
	ColUpdateTime = "更新时间"
)

// 板块分类（push2 clist 的 fs 参数）
const (
	SectorIndustry = "m:90+t:2"
	SectorConcept  = "m:90+t:3"
)

// f12 代码 f14 名称 f62 主力净流入 f66 超大单 f72 大单 f78 中单 f84 小单 f184 主力净占比 f124 更新时间
const flowFields = "f12,f14,f62,f66,f72,f78,f84,f184,f124"

// FundEstimate 天天基金估值接口返回的原始字段，值未做类型转换
type FundEstimate struct {
	FundCode       any
	Name           any
	NAVDate        any // jzrq
	UnitNAV        any // dwjz
	EstimateNAV    any // gsz
	EstimateGrowth any // gszzl
	EstimateTime   any // gztime
}

// EastmoneyClient 东方财富 / 天天基金 HTTP 客户端
type EastmoneyClient struct {
	cfg    config.UpstreamConfig
	client *http.Client
}

// NewEastmoneyClient 创建客户端，单次请求超时取 upstream.timeout
func NewEastmoneyClient(cfg *config.UpstreamConfig) *EastmoneyClient {
	return &EastmoneyClient{
		cfg: *cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout(),
		},
	}
}

// doRequest 执行 GET 请求，非 200 视为失败
func (c *EastmoneyClient) doRequest(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}
	req.Header.Set("Accept", "application/json, text/javascript, text/html, */*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.NotFound("upstream resource not found")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(body, 200))
	}

	return body, nil
}

// GetFundEstimate 获取基金实时估值
func (c *EastmoneyClient) GetFundEstimate(ctx context.Context, code string) (*FundEstimate, error) {
	u := fmt.Sprintf("%s/%s.js", strings.TrimRight(c.cfg.FundEstimateURL, "/"), code)
	body, err := c.doRequest(ctx, u, url.Values{"rt": {strconv.FormatInt(time.Now().UnixMilli(), 10)}})
	if err != nil {
		return nil, err
	}
	return parseFundEstimate(body)
}

func parseFundEstimate(body []byte) (*FundEstimate, error) {
	payload, err := unwrapJSONP(body)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, apperr.NotFound("fund not found")
	}
	if !gjson.ValidBytes(payload) {
		return nil, apperr.Malformed("invalid fund estimate payload", fmt.Errorf("body=%s", truncate(body, 200)))
	}
	obj := gjson.ParseBytes(payload)
	if !obj.IsObject() {
		return nil, apperr.Malformed("unexpected fund estimate payload", fmt.Errorf("type=%s", obj.Type))
	}

	return &FundEstimate{
		FundCode:       obj.Get("fundcode").Value(),
		Name:           obj.Get("name").Value(),
		NAVDate:        obj.Get("jzrq").Value(),
		UnitNAV:        obj.Get("dwjz").Value(),
		EstimateNAV:    obj.Get("gsz").Value(),
		EstimateGrowth: obj.Get("gszzl").Value(),
		EstimateTime:   obj.Get("gztime").Value(),
	}, nil
}

// GetNAVHistory 获取历史净值（JSON 接口），按接口顺序返回（通常最新在前）
func (c *EastmoneyClient) GetNAVHistory(ctx context.Context, code string, size int) (*table.Table, error) {
	params := url.Values{
		"fundCode":  {code},
		"pageIndex": {"1"},
		"pageSize":  {strconv.Itoa(size)},
		"startDate": {""},
		"endDate":   {""},
		"_":         {strconv.FormatInt(time.Now().UnixMilli(), 10)},
	}
	body, err := c.doRequest(ctx, c.cfg.NAVHistoryURL, params)
	if err != nil {
		return nil, err
	}
	return parseNAVHistory(body)
}

func parseNAVHistory(body []byte) (*table.Table, error) {
	payload, err := unwrapJSONP(body)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return nil, apperr.Malformed("invalid nav history payload", fmt.Errorf("body=%s", truncate(body, 200)))
	}

	root := gjson.ParseBytes(payload)
	if code := root.Get("ErrCode"); code.Exists() && code.Int() != 0 {
		return nil, apperr.Malformed("nav history error", fmt.Errorf("ErrCode=%d ErrMsg=%s", code.Int(), root.Get("ErrMsg").String()))
	}
	list := root.Get("Data.LSJZList")
	if !list.Exists() || !list.IsArray() {
		return nil, apperr.Malformed("nav history missing Data.LSJZList", nil)
	}

	t := table.New(ColNAVDate, ColUnitNAV, ColAccumNAV, ColDailyReturn)
	list.ForEach(func(_, item gjson.Result) bool {
		t.Append(table.Row{
			ColNAVDate:     item.Get("FSRQ").Value(),
			ColUnitNAV:     item.Get("DWJZ").Value(),
			ColAccumNAV:    item.Get("LJJZ").Value(),
			ColDailyReturn: item.Get("JZZZL").Value(),
		})
		return true
	})
	return t, nil
}

// GetNAVHistoryTable 获取历史净值（F10 HTML 表格），作为 JSON 接口异常时的备用
func (c *EastmoneyClient) GetNAVHistoryTable(ctx context.Context, code string, size int) (*table.Table, error) {
	params := url.Values{
		"type": {"lsjz"},
		"code": {code},
		"page": {"1"},
		"per":  {strconv.Itoa(size)},
	}
	body, err := c.doRequest(ctx, c.cfg.NAVTableURL, params)
	if err != nil {
		return nil, err
	}
	return parseNAVTable(body)
}

func parseNAVTable(body []byte) (*table.Table, error) {
	if start, end := bytes.Index(body, []byte("<table")), bytes.LastIndex(body, []byte("</table>")); start >= 0 && end > start {
		body = body[start : end+len("</table>")]
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Malformed("invalid nav table html", err)
	}

	var headers []string
	doc.Find("table").First().Find("th").Each(func(_ int, s *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(s.Text()))
	})
	if len(headers) == 0 {
		return nil, apperr.Malformed("nav table has no header", nil)
	}

	t := table.New(headers...)
	doc.Find("table").First().Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		// “暂无数据”之类的占位行列数不足
		if cells.Length() < len(headers) {
			return
		}
		row := make(table.Row, len(headers))
		cells.Each(func(i int, td *goquery.Selection) {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(td.Text())
			}
		})
		t.Append(row)
	})
	return t, nil
}

// GetFundDirectory 获取全部基金代码与简称
func (c *EastmoneyClient) GetFundDirectory(ctx context.Context) (map[string]string, error) {
	body, err := c.doRequest(ctx, c.cfg.FundDirectoryURL, nil)
	if err != nil {
		return nil, err
	}
	return parseFundDirectory(body)
}

// parseFundDirectory 解析 var r = [["000001","HXCZHH","华夏成长混合","混合型","HUAXIA"],...];
func parseFundDirectory(body []byte) (map[string]string, error) {
	start, end := bytes.IndexByte(body, '['), bytes.LastIndexByte(body, ']')
	if start < 0 || end <= start {
		return nil, apperr.Malformed("invalid fund directory payload", nil)
	}
	payload := body[start : end+1]
	if !gjson.ValidBytes(payload) {
		return nil, apperr.Malformed("invalid fund directory json", nil)
	}

	dir := make(map[string]string)
	gjson.ParseBytes(payload).ForEach(func(_, node gjson.Result) bool {
		code := strings.TrimSpace(node.Get("0").String())
		name := strings.TrimSpace(node.Get("2").String())
		if code != "" && name != "" {
			dir[code] = name
		}
		return true
	})
	return dir, nil
}

// GetMarketFlowTable 获取沪深市场（按指数）资金流向
func (c *EastmoneyClient) GetMarketFlowTable(ctx context.Context) (*table.Table, error) {
	params := url.Values{
		"fltt":   {"2"},
		"secids": {strings.Join(c.cfg.MarketSecIDs, ",")},
		"fields": {flowFields},
	}
	body, err := c.doRequest(ctx, c.cfg.QuoteListURL, params)
	if err != nil {
		return nil, err
	}
	return parseFlowTable(body, ColCode, ColName, ColMainNet, ColSuperNet, ColBigNet, ColMediumNet, ColSmallNet, ColMainRatio, ColUpdateTime)
}

// GetSectorFlowTop 获取板块主力净流入排行前 n 名
func (c *EastmoneyClient) GetSectorFlowTop(ctx context.Context, sector string, n int) (*table.Table, error) {
	params := url.Values{
		"pn":     {"1"},
		"pz":     {strconv.Itoa(n)},
		"po":     {"1"},
		"np":     {"1"},
		"fltt":   {"2"},
		"invt":   {"2"},
		"fid":    {"f62"},
		"fs":     {sector},
		"fields": {"f12,f14,f62"},
	}
	body, err := c.doRequest(ctx, c.cfg.RankListURL, params)
	if err != nil {
		return nil, err
	}
	return parseFlowTable(body, ColCode, ColName, ColMainNet)
}

var flowFieldColumns = map[string]string{
	"f12":  ColCode,
	"f14":  ColName,
	"f62":  ColMainNet,
	"f66":  ColSuperNet,
	"f72":  ColBigNet,
	"f78":  ColMediumNet,
	"f84":  ColSmallNet,
	"f184": ColMainRatio,
	"f124": ColUpdateTime,
}

// parseFlowTable 解析 push2 的 data.diff，diff 可能是数组也可能是 {"0":{},"1":{}} 对象
func parseFlowTable(body []byte, columns ...string) (*table.Table, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperr.Malformed("invalid flow payload", fmt.Errorf("body=%s", truncate(body, 200)))
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, apperr.Malformed("flow payload has no data", fmt.Errorf("rc=%s", gjson.GetBytes(body, "rc").String()))
	}
	diff := data.Get("diff")
	if !diff.IsArray() && !diff.IsObject() {
		return nil, apperr.Malformed("flow payload has no data.diff", nil)
	}

	wanted := make(map[string]bool, len(columns))
	for _, c := range columns {
		wanted[c] = true
	}

	t := table.New(columns...)
	diff.ForEach(func(_, item gjson.Result) bool {
		row := make(table.Row, len(columns))
		item.ForEach(func(key, value gjson.Result) bool {
			if col, ok := flowFieldColumns[key.String()]; ok && wanted[col] {
				row[col] = value.Value()
			}
			return true
		})
		t.Append(row)
		return true
	})
	return t, nil
}

// unwrapJSONP 去掉 jsonpgz(...); / jQuery(...) 之类的包装，纯 JSON 原样返回
func unwrapJSONP(body []byte) ([]byte, error) {
	s := bytes.TrimSpace(body)
	if len(s) == 0 {
		return nil, apperr.Malformed("empty upstream response", nil)
	}
	if s[0] == '{' || s[0] == '[' {
		return s, nil
	}
	start, end := bytes.IndexByte(s, '('), bytes.LastIndexByte(s, ')')
	if start < 0 || end < start {
		return nil, apperr.Malformed("unexpected upstream response", fmt.Errorf("body=%s", truncate(body, 200)))
	}
	return bytes.TrimSpace(s[start+1 : end]), nil
}

// truncate 截取至多 n 字节用于日志，切点回退到字符边界
func truncate(b []byte, n int) string {
	suffix := ""
	if len(b) > n {
		for n > 0 && !utf8.RuneStart(b[n]) {
			n--
		}
		b, suffix = b[:n], "..."
	}
	s := strings.ToValidUTF8(string(b), "?") + suffix
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r", " "), "\n", " ")
}
