package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"

	"github.com/betbot/jitbot/internal/controlplane/server"
	"github.com/betbot/jitbot/internal/jitter"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")) // 绿色

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// api 控制面客户端
type api struct {
	client *resty.Client
}

func newAPI(baseURL string) *api {
	return &api{client: resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(2 * time.Second)}
}

type snapshot struct {
	status   server.Status
	auctions []jitter.AuctionInfo
	quotes   []server.QuoteView
}

func (a *api) fetch(ctx context.Context) (snapshot, error) {
	var snap snapshot
	resp, err := a.client.R().SetContext(ctx).SetResult(&snap.status).Get("/api/status")
	if err != nil {
		return snap, err
	}
	if resp.IsError() {
		return snap, fmt.Errorf("status: http %d", resp.StatusCode())
	}

	var auctions server.AuctionsResponse
	if resp, err = a.client.R().SetContext(ctx).SetResult(&auctions).Get("/api/auctions"); err != nil {
		return snap, err
	}
	if resp.IsError() {
		return snap, fmt.Errorf("auctions: http %d", resp.StatusCode())
	}
	snap.auctions = auctions.Auctions

	var quotes struct {
		Quotes []server.QuoteView `json:"quotes"`
	}
	if resp, err = a.client.R().SetContext(ctx).SetResult(&quotes).Get("/api/quotes"); err != nil {
		return snap, err
	}
	if resp.IsError() {
		return snap, fmt.Errorf("quotes: http %d", resp.StatusCode())
	}
	snap.quotes = quotes.Quotes
	return snap, nil
}

func (a *api) breaker(ctx context.Context, action string) error {
	resp, err := a.client.R().SetContext(ctx).Post("/api/breaker/" + action)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("breaker %s: http %d", action, resp.StatusCode())
	}
	return nil
}

type tickMsg time.Time

type snapshotMsg struct {
	snap snapshot
	err  error
}

type actionMsg struct {
	action string
	err    error
}

type model struct {
	api      *api
	interval time.Duration

	snap      snapshot
	lastErr   error
	lastOK    time.Time
	notice    string
	connected bool
}

func initialModel(a *api, interval time.Duration) model {
	return model{api: a, interval: interval}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd(m.interval))
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		snap, err := m.api.fetch(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m model) breakerCmd(action string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return actionMsg{action: action, err: m.api.breaker(ctx, action)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "h":
			return m, m.breakerCmd("halt")
		case "r":
			return m, m.breakerCmd("resume")
		}

	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd(m.interval))

	case snapshotMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			m.connected = false
			return m, nil
		}
		m.snap = msg.snap
		m.lastErr = nil
		m.lastOK = time.Now()
		m.connected = true

	case actionMsg:
		if msg.err != nil {
			m.notice = badStyle.Render(msg.err.Error())
		} else {
			m.notice = okStyle.Render("breaker " + msg.action + " ok")
		}
		return m, m.fetchCmd()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("jitbot monitor"))
	b.WriteString("\n\n")

	if !m.connected {
		if m.lastErr != nil {
			b.WriteString(badStyle.Render("控制面不可用: " + m.lastErr.Error()))
		} else {
			b.WriteString(dimStyle.Render("连接中..."))
		}
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("q 退出"))
		return b.String()
	}

	st := m.snap.status
	state := okStyle.Render("RUNNING")
	if !st.Running {
		state = badStyle.Render("STOPPED")
	}
	breaker := okStyle.Render("closed")
	if st.BreakerHalted {
		breaker = badStyle.Render("HALTED")
	}
	mode := ""
	if st.DryRun {
		mode = dimStyle.Render(" [dry_run]")
	}
	status := fmt.Sprintf("%s %s%s\nslot %d  in-flight %d  accepted %d  markets %d\nbreaker %s  consecutive errors %d  uptime %s",
		titleStyle.Render(st.Strategy), state, mode,
		st.Slot, st.InFlight, st.Accepted, st.Markets,
		breaker, st.ConsecutiveErrors, st.Uptime.Truncate(time.Second))
	for _, o := range st.Oracles {
		status += fmt.Sprintf("\n%-8s oracle %s @%d", o.Market, o.Price, o.Slot)
	}
	b.WriteString(borderStyle.Render(status))
	b.WriteString("\n")

	b.WriteString(borderStyle.Render(renderQuotes(m.snap.quotes)))
	b.WriteString("\n")
	b.WriteString(borderStyle.Render(renderAuctions(m.snap.auctions)))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(m.notice + "\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("更新于 %s  |  h 熔断  r 恢复  q 退出", m.lastOK.Format("15:04:05"))))
	return b.String()
}

func renderQuotes(quotes []server.QuoteView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("报价"))
	if len(quotes) == 0 {
		b.WriteString("\n" + dimStyle.Render("(无)"))
		return b.String()
	}
	for _, q := range quotes {
		fmt.Fprintf(&b, "\n%-4s %-3d %-6s bid %-10s ask %-10s pos [%s, %s]",
			q.MarketType, q.MarketIndex, q.PriceType, q.Bid, q.Ask, q.MinPosition, q.MaxPosition)
	}
	return b.String()
}

func renderAuctions(auctions []jitter.AuctionInfo) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("进行中的拍卖 (%d)", len(auctions))))
	for _, a := range auctions {
		fmt.Fprintf(&b, "\n%-8s %-8s %-8s attempts=%d age=%s  %s",
			a.Market, a.Strategy, a.State, a.Attempts,
			time.Since(a.StartedAt).Truncate(100*time.Millisecond), dimStyle.Render(a.Signature))
	}
	return b.String()
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8088", "控制面地址")
	interval := flag.Duration("interval", time.Second, "刷新间隔")
	flag.Parse()

	if len(os.Getenv("DEBUG")) > 0 {
		f, err := tea.LogToFile("jit-monitor-debug.log", "debug")
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
	}

	p := tea.NewProgram(initialModel(newAPI(*addr), *interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("运行程序失败: %v", err)
	}
}
