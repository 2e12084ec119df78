package dashboard

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/forgellm/forge/internal/query"
	"github.com/forgellm/forge/internal/ui"
)

// DefaultInterval is the refresh period when none is configured.
const DefaultInterval = 2 * time.Second

// Source is what the dashboard reads. *query.Service satisfies it.
type Source interface {
	LiveSnapshot() query.LiveView
	Historical(ref string) (query.Historical, bool)
}

// Options configures a Model.
type Options struct {
	Interval time.Duration
	// Session pins the view to one session. Empty follows the live run.
	Session string
	Now     func() time.Time
}

// Model is the Bubble Tea model behind `forge watch`.
type Model struct {
	src      Source
	interval time.Duration
	pinned   string
	now      func() time.Time

	width  int
	height int

	view       query.LiveView
	hist       *query.Historical
	loaded     bool
	lastUpdate time.Time

	showHelp        bool
	showCheckpoints bool
	showValidation  bool
	quitting        bool

	bar     progress.Model
	spinner ui.SpinnerComponent
}

// tickMsg signals a periodic refresh.
type tickMsg time.Time

// dataMsg carries one fetch result.
type dataMsg struct {
	view query.LiveView
	hist *query.Historical
	at   time.Time
}

// NewModel creates a dashboard reading from src.
func NewModel(src Source, opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := Model{
		src:             src,
		interval:        opts.Interval,
		pinned:          opts.Session,
		now:             opts.Now,
		showCheckpoints: true,
		showValidation:  true,
		bar: progress.New(
			progress.WithGradient(ColorGradientStart, ColorGradientEnd),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		spinner: ui.NewSpinnerComponent("Waiting for training"),
	}
	m.spinner.Start()
	return m
}

// Init starts the refresh timer, the first fetch and the waiting spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), m.fetchCmd(), m.spinner.Tick())
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.HandleKeyMsg(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = m.barWidth()

	case tickMsg:
		return m, tea.Batch(m.tickCmd(), m.fetchCmd())

	case dataMsg:
		m.view = msg.view
		m.hist = msg.hist
		m.loaded = true
		m.lastUpdate = msg.at
		if m.view.Snapshot != nil {
			m.spinner.Stop()
		} else if !m.spinner.Active {
			cmd := m.spinner.Start()
			return m, cmd
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the current frame.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	return m.renderDashboard()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetchCmd() tea.Cmd {
	src, pinned, now := m.src, m.pinned, m.now
	return func() tea.Msg {
		return fetch(src, pinned, now())
	}
}

func fetch(src Source, pinned string, at time.Time) dataMsg {
	msg := dataMsg{at: at}
	if pinned != "" {
		h, ok := src.Historical(pinned)
		if !ok {
			msg.view = query.LiveView{Reason: "session not found: " + pinned}
			return msg
		}
		snap := h.Snapshot
		msg.view = query.LiveView{Active: h.Session.Active, SessionPath: h.Session.Path, Snapshot: &snap}
		msg.hist = &h
		return msg
	}

	msg.view = src.LiveSnapshot()
	if msg.view.Active && msg.view.SessionPath != "" {
		if h, ok := src.Historical(msg.view.SessionPath); ok {
			msg.hist = &h
		}
	}
	return msg
}

func (m Model) barWidth() int {
	w := m.width - 24
	if w > 80 {
		w = 80
	}
	if w < 10 {
		w = 10
	}
	return w
}

// SecondsSinceUpdate returns the age of the last fetch in whole seconds.
func (m Model) SecondsSinceUpdate() int {
	if m.lastUpdate.IsZero() {
		return 0
	}
	return int(m.now().Sub(m.lastUpdate).Seconds())
}

// Run shows the dashboard until the user quits or ctx is done.
func Run(ctx context.Context, src Source, opts Options) error {
	p := tea.NewProgram(NewModel(src, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
