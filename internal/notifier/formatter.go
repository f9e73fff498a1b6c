package notifier

import (
	"fmt"
	"html"
	"math"
	"sort"
	"strings"
	"time"

	"SignalSentinel/internal/indicator"
	"SignalSentinel/internal/model"

	"github.com/dustin/go-humanize"
)

func money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return humanize.Commaf(math.Round(v))
}

func price(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return humanize.Commaf(v)
}

func pct(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return fmt.Sprintf("%+.2f%%", v*100)
}

// FormatSignals formats one cycle's signals. Tickers without a signal are omitted.
func FormatSignals(records []model.SignalRecord, at time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📡 <b>SignalSentinel 信号</b> | %s\n\n", at.Format("2006-01-02 15:04")))

	n := 0
	for _, r := range records {
		if !r.HasSignal() {
			continue
		}
		n++
		icon, action := "🟢", "买入"
		if r.Signal == model.SignalSell {
			icon, action = "🔴", "卖出"
		}
		b.WriteString(fmt.Sprintf("%s <b>%s</b> %s @ %s (%s)\n",
			icon, action, html.EscapeString(r.Ticker), price(r.ClosePrice), r.AtTime))
	}
	if n == 0 {
		b.WriteString("暂无买卖信号 💤\n")
	}
	return b.String()
}

// FormatPortfolio formats projected market values per position and in total.
func FormatPortfolio(v model.Valuations) string {
	var b strings.Builder
	b.WriteString("💼 <b>持仓市值</b>\n\n")

	tickers := make([]string, 0, len(v.Tickers))
	for t := range v.Tickers {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	if len(tickers) == 0 {
		b.WriteString("暂无持仓\n")
		return b.String()
	}
	for _, t := range tickers {
		val := v.Tickers[t]
		icon := "📉"
		if val.Profitable {
			icon = "📈"
		}
		b.WriteString(fmt.Sprintf("%s %s: 现价 %s | 市值 %s | 收益 %s (%s)\n",
			icon, html.EscapeString(t), price(val.CurrentPrice),
			money(val.MarketValue), money(val.Return), pct(val.ReturnPct)))
	}
	b.WriteString("  ─────────────────\n")
	b.WriteString(fmt.Sprintf("  总市值: %s\n", money(v.Total.MarketValue)))
	b.WriteString(fmt.Sprintf("  总成本: %s\n", money(v.Total.InvestedValue)))
	b.WriteString(fmt.Sprintf("  总收益: %s (%s)\n", money(v.Total.Return), pct(v.Total.ReturnPct)))
	return b.String()
}

// FormatMetrics formats weight, mean daily return and volatility per ticker,
// with the aggregate portfolio row last.
func FormatMetrics(metrics map[string]model.PortfolioMetric) string {
	var b strings.Builder
	b.WriteString("📐 <b>组合风险指标</b> (日收益)\n\n")

	tickers := make([]string, 0, len(metrics))
	for t := range metrics {
		if t != model.PortfolioKey {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)

	line := func(name string, m model.PortfolioMetric) {
		b.WriteString(fmt.Sprintf("%s: 权重 %.2f | 均值 %s | 波动 %s\n",
			name, m.Weight, pct(m.Mean), pct(m.Std)))
	}
	for _, t := range tickers {
		line(html.EscapeString(t), metrics[t])
	}
	if p, ok := metrics[model.PortfolioKey]; ok {
		b.WriteString("  ─────────────────\n")
		line("组合", p)
	}
	return b.String()
}

// FormatIndicators lists the registered indicators and their output columns.
func FormatIndicators(active []indicator.ActiveIndicator) string {
	var b strings.Builder
	b.WriteString("🧮 <b>已启用指标</b>\n\n")
	if len(active) == 0 {
		b.WriteString("暂无指标\n")
		return b.String()
	}
	for _, a := range active {
		b.WriteString(fmt.Sprintf("• %s (%s): %s\n",
			html.EscapeString(a.Key), a.Kind, strings.Join(a.Outputs, ", ")))
	}
	return b.String()
}

// FormatHelp lists the supported commands.
func FormatHelp() string {
	return "🤖 <b>可用命令</b>\n\n" +
		"/signals - 最新信号\n" +
		"/portfolio - 持仓市值\n" +
		"/metrics - 组合风险指标\n" +
		"/indicators - 已启用指标\n" +
		"/history - 最近信号记录\n" +
		"/run - 立即执行一次刷新\n"
}
