package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"coinboard/internal/board"
	"coinboard/internal/dashboard"
	"coinboard/internal/domain"
	"coinboard/internal/news"
)

// Styles.
var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	watchBarStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3")) // black on yellow
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	noticeStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11"))
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	symbolStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	symbolWlStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")) // orange for watched
	symbolPinStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	priceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sparkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	newsTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	highlightBG    = lipgloss.Color("236") // dark grey background
)

// marketsHeaderLines is the number of content lines above the first market row.
const marketsHeaderLines = 2

// hlStyle returns a copy of s with the highlight background applied when hl is true.
func hlStyle(s lipgloss.Style, hl bool) lipgloss.Style {
	if hl {
		return s.Background(highlightBG)
	}
	return s
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}
	b := m.board

	api := "api: ?"
	switch p := b.PingPanel(); {
	case p.Err != nil:
		api = "api: down"
	case p.Loaded() && p.Data.OK:
		api = "api: ok"
	case p.Loaded():
		api = "api: down"
	}
	user := "signed out"
	if b.Authenticated() {
		user = b.User()
	}
	view := "Home"
	if b.OnlyWatched() {
		view = "Watchlist"
	}
	sync := ""
	if sp := b.SyncPanel(); sp.Loading {
		sync = "    syncing..."
	} else if sp.Err != nil {
		sync = "    sync failed"
	}
	headerText := fmt.Sprintf(" coinboard  %s    %s    %s    range: %s%s ", view, api, user, b.Days(), sync)
	bar := headerStyle
	if b.OnlyWatched() {
		bar = watchBarStyle
	}
	headerBar := bar.Render(padOrTrunc(headerText, m.width))

	var footerBar string
	if n := b.Notice(); n != "" {
		footerBar = noticeStyle.Render(padOrTrunc(" "+n, m.width))
	} else {
		pct := m.viewport.ScrollPercent() * 100
		footerLeft := " q quit  up/dn select  space star  p pin  w watchlist  h home  1/7/3 range  n/N news  l/L login  c clear  r refresh"
		footerRight := fmt.Sprintf("%.0f%% ", pct)
		gap := m.width - len(footerLeft) - len(footerRight)
		if gap < 0 {
			gap = 0
		}
		footerBar = footerStyle.Render(padOrTrunc(footerLeft+strings.Repeat(" ", gap)+footerRight, m.width))
	}

	return headerBar + "\n" + m.viewport.View() + "\n" + footerBar
}

func (m model) renderContent() string {
	var b strings.Builder
	renderMarkets(&b, m.board, m)
	b.WriteString("\n")
	renderChart(&b, m.board, m.width)
	if m.board.NewsEnabled() {
		b.WriteString("\n")
		renderNews(&b, m.board, m)
	}
	return b.String()
}

func renderMarkets(b *strings.Builder, bd *board.Board, m model) {
	mp := bd.MarketsPanel()
	label := "  Markets"
	if bd.OnlyWatched() {
		label = "  Watchlist"
	}
	if mp.Stale {
		label += "    (cached " + dashboard.FormatAge(mp.UpdatedAt, m.now) + ")"
	} else if mp.Err != nil && len(mp.Data) > 0 {
		label += "    (refresh failed, showing " + dashboard.FormatAge(mp.UpdatedAt, m.now) + ")"
	}
	b.WriteString(sectionStyle.Width(m.width).Render(label + "  "))
	b.WriteString("\n")

	colLine := fmt.Sprintf("  %-2s %-3s %-6s %-18s %14s %9s %10s", "", "#", "Symbol", "Name", "Price", "24h", "Mkt Cap")
	b.WriteString(colHeaderStyle.Render(colLine))
	b.WriteString("\n")

	if msg := bd.MarketsMessage(); msg != "" {
		style := dimStyle
		if mp.Err != nil {
			style = errStyle
		}
		b.WriteString(style.Render("  " + msg))
		b.WriteString("\n")
		return
	}

	sel := bd.EffectiveSelection()
	for i, c := range bd.Visible() {
		hl := c.ID == sel
		renderMarketRow(b, i+1, c, hl, bd.IsWatched(c.ID), bd.IsPinned(c.ID))
	}
}

func renderMarketRow(b *strings.Builder, n int, c domain.Coin, hl, watched, pinned bool) {
	mark := "  "
	sym := symbolStyle
	switch {
	case pinned:
		mark = "★^"
		sym = symbolPinStyle
	case watched:
		mark = "★ "
		sym = symbolWlStyle
	}
	cursor := "  "
	if hl {
		cursor = "> "
	}

	change := dashboard.FormatChange(c.Change24h)
	chStyle := dimStyle
	if c.Change24h != nil {
		if *c.Change24h > 0 {
			chStyle = gainStyle
		} else if *c.Change24h < 0 {
			chStyle = lossStyle
		}
	}

	b.WriteString(hlStyle(dimStyle, hl).Render(cursor + mark + " "))
	b.WriteString(hlStyle(dimStyle, hl).Render(fmt.Sprintf("%-3d ", n)))
	b.WriteString(hlStyle(sym, hl).Render(fmt.Sprintf("%-6s ", strings.ToUpper(c.Symbol))))
	b.WriteString(hlStyle(priceStyle, hl).Render(fmt.Sprintf("%-18s ", truncRunes(c.Name, 18))))
	b.WriteString(hlStyle(priceStyle, hl).Render(fmt.Sprintf("%14s ", dashboard.FormatPrice(c.CurrentPrice))))
	b.WriteString(hlStyle(chStyle, hl).Render(fmt.Sprintf("%9s ", change)))
	b.WriteString(hlStyle(dimStyle, hl).Render(fmt.Sprintf("%10s", dashboard.FormatMarketCap(c.MarketCap))))
	b.WriteString("\n")
}

func renderChart(b *strings.Builder, bd *board.Board, width int) {
	title := "  Chart"
	if id := bd.ChartCoin(); id != "" {
		title = "  " + id
		for _, c := range bd.MarketsPanel().Data {
			if c.ID == id {
				title = fmt.Sprintf("  %s (%s)", c.Name, strings.ToUpper(c.Symbol))
				break
			}
		}
	}
	title += "    " + bd.Days().String()
	b.WriteString(sectionStyle.Width(width).Render(title + "  "))
	b.WriteString("\n")

	cp := bd.ChartPanel()
	if msg := bd.ChartMessage(); msg != "" {
		style := dimStyle
		if cp.Err != nil {
			style = errStyle
		}
		b.WriteString(style.Render("  " + msg))
		b.WriteString("\n")
		return
	}

	sparkW := width - 4
	if sparkW < 8 {
		sparkW = 8
	}
	b.WriteString("  ")
	b.WriteString(sparkStyle.Render(dashboard.Sparkline(cp.Data.Prices, sparkW)))
	b.WriteString("\n")

	s := dashboard.Stats(cp.Data.Prices)
	chg := s.Change * 100
	chStyle := gainStyle
	if chg < 0 {
		chStyle = lossStyle
	}
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("  open %s  close %s  high %s  low %s  ",
		dashboard.FormatPrice(s.Open), dashboard.FormatPrice(s.Close),
		dashboard.FormatPrice(s.High), dashboard.FormatPrice(s.Low))))
	b.WriteString(chStyle.Render(fmt.Sprintf("%+.2f%%", chg)))
	if g := dashboard.FormatGain(s.MaxGain); g != "" {
		b.WriteString(dimStyle.Render("  best "))
		b.WriteString(gainStyle.Render(g))
	}
	if l := dashboard.FormatLoss(s.MaxLoss); l != "" {
		b.WriteString(dimStyle.Render("  worst "))
		b.WriteString(lossStyle.Render(l))
	}
	if cp.Loading {
		b.WriteString(dimStyle.Render("  refreshing..."))
	}
	b.WriteString("\n")
}

func renderNews(b *strings.Builder, bd *board.Board, m model) {
	b.WriteString(sectionStyle.Width(m.width).Render("  News  "))
	b.WriteString("\n")

	if msg := bd.NewsMessage(); msg != "" {
		style := dimStyle
		if bd.NewsPanel().Err != nil {
			style = errStyle
		}
		b.WriteString(style.Render("  " + msg))
		b.WriteString("\n")
		return
	}

	for _, it := range bd.NewsItems() {
		b.WriteString("  ")
		b.WriteString(newsTitleStyle.Render(truncRunes(it.Title, m.width-2)))
		b.WriteString("\n")
		meta := dashboard.FormatAge(it.PublishedAt(), m.now)
		if it.Source != "" {
			meta = it.Source + " · " + meta
		}
		b.WriteString(dimStyle.Render("  " + meta))
		b.WriteString("\n")
		if it.Summary != "" {
			b.WriteString("  " + news.Excerpt(it.Summary, max(m.width-4, 20)))
			b.WriteString("\n")
		}
	}

	var more []string
	if bd.HasMoreNews() {
		more = append(more, "n more")
	}
	if bd.CanLessNews() {
		more = append(more, "N less")
	}
	if len(more) > 0 {
		b.WriteString(dimStyle.Render("  " + strings.Join(more, "  ")))
		b.WriteString("\n")
	}
}

// padOrTrunc pads s with spaces to width, or truncates if longer.
func padOrTrunc(s string, width int) string {
	n := len(s)
	if n >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-n)
}

func truncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
