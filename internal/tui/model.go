// Package tui implements the terminal browser for a cursor library: a grid
// of live preview cards with animated cursors playing in place.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	cursorcache "github.com/wolfeidau/cursor-cache"
	"github.com/wolfeidau/cursor-cache/playback"
	"github.com/wolfeidau/cursor-cache/preview"
)

const (
	defaultCells  = 16
	defaultWidth  = 80
	defaultHeight = 24
	chromeRows    = 2 // title and help bar
)

// Options configures the browse Model.
type Options struct {
	// Cells is the preview width in terminal cells. Default: 16.
	Cells int
	// RefreshInterval paces animation playback. Default: playback.DefaultRefreshInterval.
	RefreshInterval time.Duration
	// PlayerOptions configure each card's playback.
	PlayerOptions []playback.Option
	// Title is shown above the grid.
	Title  string
	Logger *slog.Logger
}

type cardView struct {
	card    *preview.Card
	state   preview.CardState
	mounted bool
	paused  bool
}

// Model is the Bubble Tea model for the browse grid. Only cards on screen
// are mounted; scrolling away unmounts them while their resolution keeps
// filling the shared cache.
type Model struct {
	ctx      context.Context
	views    []*cardView
	sink     *updateSink
	hub      *refreshHub
	done     chan struct{}
	renders  map[cursorcache.DataURL]string
	opts     Options
	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	selected int
	offset   int // first visible grid row
	width    int
	height   int
	quitting bool
}

// NewModel creates a Model with one card per descriptor.
func NewModel(ctx context.Context, resolver *preview.Resolver, descs []cursorcache.Descriptor, opts Options) Model {
	if opts.Cells <= 0 {
		opts.Cells = defaultCells
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = playback.DefaultRefreshInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{
		ctx:     ctx,
		sink:    newUpdateSink(),
		hub:     newRefreshHub(),
		done:    make(chan struct{}),
		renders: make(map[cursorcache.DataURL]string),
		opts:    opts,
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: s,
		width:   defaultWidth,
		height:  defaultHeight,
	}

	sink := m.sink
	for i, d := range descs {
		card := preview.NewCard(resolver, d,
			func(state preview.CardState) { sink.put(i, state) },
			preview.WithCardLogger(opts.Logger),
			preview.WithLoopOptions(
				playback.WithRefresher(m.hub.Refresher),
				playback.WithPlayerOptions(opts.PlayerOptions...),
			),
		)
		m.views = append(m.views, &cardView{card: card, state: card.State()})
	}
	return m
}

// Init mounts the initially visible cards and starts the refresh tick.
func (m Model) Init() tea.Cmd {
	m.syncMounts()
	return tea.Batch(m.spinner.Tick, m.tick(), m.sink.listen(m.done))
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.scrollToSelection()
		m.syncMounts()
		return m, nil

	case cardsUpdatedMsg:
		for i, state := range msg {
			if i >= 0 && i < len(m.views) {
				m.views[i].state = state
			}
		}
		return m, m.sink.listen(m.done)

	case refreshMsg:
		if m.quitting {
			return m, nil
		}
		m.hub.broadcast(time.Time(msg))
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cols := m.columns()
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Close()
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Left):
		m.moveTo(m.selected - 1)
	case key.Matches(msg, m.keys.Right):
		m.moveTo(m.selected + 1)
	case key.Matches(msg, m.keys.Up):
		m.moveTo(m.selected - cols)
	case key.Matches(msg, m.keys.Down):
		m.moveTo(m.selected + cols)
	case key.Matches(msg, m.keys.Pause):
		m.togglePause()
	}
	return m, nil
}

// Close unmounts every card. It is safe to call more than once.
func (m Model) Close() {
	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}
	for _, v := range m.views {
		if v.mounted {
			v.card.Unmount()
			v.mounted = false
		}
	}
}

// Selected returns the descriptor under the cursor, if any.
func (m Model) Selected() (cursorcache.Descriptor, bool) {
	if m.selected < 0 || m.selected >= len(m.views) {
		return cursorcache.Descriptor{}, false
	}
	return m.views[m.selected].card.Descriptor(), true
}

func (m *Model) moveTo(i int) {
	if len(m.views) == 0 {
		return
	}
	m.selected = max(0, min(i, len(m.views)-1))
	m.scrollToSelection()
	m.syncMounts()
}

func (m Model) togglePause() {
	if m.selected >= len(m.views) {
		return
	}
	v := m.views[m.selected]
	if !v.mounted || v.state.Frames == nil || v.state.Frames.Static() {
		return
	}
	if v.paused {
		v.card.Resume()
	} else {
		v.card.Pause()
	}
	v.paused = !v.paused
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.RefreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// syncMounts mounts the cards inside the visible window and unmounts the rest.
func (m Model) syncMounts() {
	select {
	case <-m.done:
		return
	default:
	}
	first, last := m.visibleRange()
	for i, v := range m.views {
		visible := i >= first && i < last
		switch {
		case visible && !v.mounted:
			v.mounted = true
			v.card.Mount(m.ctx)
		case !visible && v.mounted:
			v.card.Unmount()
			v.mounted = false
			v.paused = false
		}
	}
}

func (m *Model) scrollToSelection() {
	row := m.selected / m.columns()
	rows := m.visibleRows()
	if row < m.offset {
		m.offset = row
	}
	if row >= m.offset+rows {
		m.offset = row - rows + 1
	}
}

func (m Model) visibleRange() (int, int) {
	cols := m.columns()
	first := m.offset * cols
	last := min(len(m.views), (m.offset+m.visibleRows())*cols)
	return first, last
}

func (m Model) cardWidth() int {
	return m.opts.Cells + 4 // border and padding
}

func (m Model) cardHeight() int {
	return m.opts.Cells/2 + 3 // image rows, label and border
}

func (m Model) columns() int {
	return max(1, m.width/m.cardWidth())
}

func (m Model) visibleRows() int {
	return max(1, (m.height-chromeRows)/m.cardHeight())
}

// View renders the visible part of the grid.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	title := m.opts.Title
	if title == "" {
		title = "cursor-cache"
	}
	header := titleStyle.Render(fmt.Sprintf("%s  %d cursors", title, len(m.views)))

	if len(m.views) == 0 {
		return header + "\n\n  No cursors found.\n\n" + m.help.View(m.keys)
	}

	cols := m.columns()
	first, last := m.visibleRange()
	var rows []string
	for start := first; start < last; start += cols {
		end := min(start+cols, last)
		cells := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			cells = append(cells, m.renderCard(i))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	return header + "\n" + lipgloss.JoinVertical(lipgloss.Left, rows...) + "\n" + m.help.View(m.keys)
}

func (m Model) renderCard(i int) string {
	v := m.views[i]
	cells := m.opts.Cells
	imgRows := cells / 2

	var body string
	switch v.state.Status {
	case preview.Ready:
		body = m.renderImage(v.state.Image)
	case preview.Placeholder:
		body = placeholderStyle.Width(cells).Height(imgRows).Render("?")
	default:
		body = loadingStyle.Width(cells).Height(imgRows).Render(m.spinner.View())
	}

	label := cardLabel(v.card.Descriptor(), cells)
	if v.paused {
		label = truncate("‖ "+label, cells)
	}

	style := unfocusedCard
	if i == m.selected {
		style = focusedCard
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, body, labelStyle.Width(cells).Render(label)))
}

// renderImage renders a preview once and reuses it for every later frame
// that shows the same image.
func (m Model) renderImage(d cursorcache.DataURL) string {
	if s, ok := m.renders[d]; ok {
		return s
	}
	s, err := RenderDataURL(d, m.opts.Cells)
	if err != nil {
		m.opts.Logger.Debug("render failed", "error", err)
		s = placeholderStyle.Width(m.opts.Cells).Height(m.opts.Cells / 2).Render("!")
	}
	m.renders[d] = s
	return s
}

func cardLabel(d cursorcache.Descriptor, width int) string {
	name := d.SystemName
	if !d.IsSystem() {
		name = filepath.Base(d.FilePath)
	}
	return truncate(name, width)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return strings.TrimSpace(string(r[:width-1])) + "…"
}
