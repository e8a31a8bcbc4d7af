// Package tui is the interactive terminal browser for the clip collection.
package tui

import (
	"context"
	"fmt"
	"quicknotes/internal/notify"
	"quicknotes/internal/query"
	"quicknotes/pkg/types"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
)

// SearchDelay is how long typing must pause before the search runs
const SearchDelay = 300 * time.Millisecond

// Notes is the part of the note service the browser drives
type Notes interface {
	List(ctx context.Context) []types.Clip
	Filter(ctx context.Context, term string) []types.Clip
	DeleteClip(ctx context.Context, id string) ([]types.Clip, error)
	SetFavorite(ctx context.Context, id string, favorite bool) (types.Clip, error)
}

// searchEvent is posted by the debounce timer
type searchEvent struct {
	term string
}

type Browser struct {
	notes  Notes
	screen tcell.Screen
	ctx    context.Context
	delay  time.Duration

	mu            sync.RWMutex
	clips         []types.Clip
	selected      int
	offset        int
	searchMode    bool
	searchText    string
	appliedTerm   string
	favoritesOnly bool
	status        notify.Notification

	timer *time.Timer
}

// New creates a browser on the terminal
func New(ctx context.Context, notes Notes) (*Browser, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to create screen: %w", err)
	}
	return NewWithScreen(ctx, notes, screen)
}

// NewWithScreen creates a browser on an existing screen
func NewWithScreen(ctx context.Context, notes Notes, screen tcell.Screen) (*Browser, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize screen: %w", err)
	}

	// Set default style
	screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorReset).
		Foreground(tcell.ColorReset))

	return &Browser{
		notes:  notes,
		screen: screen,
		ctx:    ctx,
		delay:  SearchDelay,
	}, nil
}

// Run shows the browser until the user quits. It returns the clip picked
// with Enter, or nil.
func (b *Browser) Run() (*types.Clip, error) {
	defer b.screen.Fini()
	defer b.cancelSearch()

	b.setClips(b.notes.List(b.ctx))

	for {
		b.draw()

		switch ev := b.screen.PollEvent().(type) {
		case nil:
			return nil, nil
		case *tcell.EventResize:
			b.screen.Sync()
		case *tcell.EventInterrupt:
			if se, ok := ev.Data().(searchEvent); ok {
				b.mu.RLock()
				current := b.searchText
				b.mu.RUnlock()
				if se.term == current {
					b.applySearch(se.term)
				}
			}
		case *tcell.EventKey:
			if b.searchMode {
				b.handleSearchKey(ev)
				continue
			}

			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				return nil, nil
			case tcell.KeyUp, tcell.KeyCtrlP:
				b.moveSelection(-1)
			case tcell.KeyDown, tcell.KeyCtrlN:
				b.moveSelection(1)
			case tcell.KeyHome:
				b.moveSelection(-len(b.clips))
			case tcell.KeyEnd:
				b.moveSelection(len(b.clips))
			case tcell.KeyPgUp:
				b.moveSelection(-10)
			case tcell.KeyPgDn:
				b.moveSelection(10)
			case tcell.KeyEnter:
				if clip, ok := b.current(); ok {
					return &clip, nil
				}
			case tcell.KeyRune:
				switch ev.Rune() {
				case 'j':
					b.moveSelection(1)
				case 'k':
					b.moveSelection(-1)
				case 'g':
					b.moveSelection(-len(b.clips))
				case 'G':
					b.moveSelection(len(b.clips))
				case 'd':
					b.deleteSelected()
				case 'f':
					b.toggleFavorite()
				case 'F':
					b.mu.Lock()
					b.favoritesOnly = !b.favoritesOnly
					b.mu.Unlock()
					b.applySearch(b.appliedTerm)
				case '/':
					b.mu.Lock()
					b.searchMode = true
					b.searchText = b.appliedTerm
					b.mu.Unlock()
				case 'q':
					return nil, nil
				}
			}
		}
	}
}

func (b *Browser) handleSearchKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape:
		b.cancelSearch()
		b.mu.Lock()
		b.searchMode = false
		b.searchText = ""
		b.mu.Unlock()
		b.applySearch("")
	case tcell.KeyEnter:
		b.cancelSearch()
		b.mu.Lock()
		b.searchMode = false
		term := b.searchText
		b.mu.Unlock()
		b.applySearch(term)
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		b.mu.Lock()
		if r := []rune(b.searchText); len(r) > 0 {
			b.searchText = string(r[:len(r)-1])
		}
		b.mu.Unlock()
		b.scheduleSearch()
	case tcell.KeyRune:
		b.mu.Lock()
		b.searchText += string(ev.Rune())
		b.mu.Unlock()
		b.scheduleSearch()
	}
}

// scheduleSearch restarts the debounce timer for the current search text
func (b *Browser) scheduleSearch() {
	b.mu.RLock()
	term := b.searchText
	b.mu.RUnlock()

	b.cancelSearch()
	b.timer = time.AfterFunc(b.delay, func() {
		b.screen.PostEvent(tcell.NewEventInterrupt(searchEvent{term: term}))
	})
}

func (b *Browser) cancelSearch() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Browser) applySearch(term string) {
	clips := b.notes.Filter(b.ctx, term)

	b.mu.Lock()
	b.appliedTerm = term
	favoritesOnly := b.favoritesOnly
	b.mu.Unlock()

	if favoritesOnly {
		clips = query.Favorites(clips)
	}
	b.setClips(clips)
}

func (b *Browser) setClips(clips []types.Clip) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clips = clips
	b.selected = 0
	b.offset = 0
}

func (b *Browser) current() (types.Clip, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.selected < 0 || b.selected >= len(b.clips) {
		return types.Clip{}, false
	}
	return b.clips[b.selected], true
}

func (b *Browser) deleteSelected() {
	clip, ok := b.current()
	if !ok {
		return
	}

	_, err := b.notes.DeleteClip(b.ctx, clip.ID)
	b.report(err, "Clip deleted")

	b.mu.RLock()
	selected, term := b.selected, b.appliedTerm
	b.mu.RUnlock()

	b.applySearch(term)
	b.moveSelection(selected)
}

func (b *Browser) toggleFavorite() {
	clip, ok := b.current()
	if !ok {
		return
	}

	updated, err := b.notes.SetFavorite(b.ctx, clip.ID, !clip.IsFavorite)
	if updated.IsFavorite {
		b.report(err, "Added to favorites")
	} else {
		b.report(err, "Removed from favorites")
	}

	b.mu.RLock()
	selected, term := b.selected, b.appliedTerm
	b.mu.RUnlock()

	b.applySearch(term)
	b.moveSelection(selected)
}

func (b *Browser) report(err error, success string) {
	n := notify.Notification{Message: success, Severity: notify.Success}
	if err != nil {
		n = notify.FromError(err)
	}
	b.Notify(n)
}

// Notify implements notify.Notifier by showing n in the status line
func (b *Browser) Notify(n notify.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = n
}

// Visible returns the clips currently listed
func (b *Browser) Visible() []types.Clip {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]types.Clip(nil), b.clips...)
}

// Status returns the last notification shown
func (b *Browser) Status() notify.Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *Browser) moveSelection(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.selected += delta
	if b.selected >= len(b.clips) {
		b.selected = len(b.clips) - 1
	}
	if b.selected < 0 {
		b.selected = 0
	}

	// Adjust offset for scrolling
	_, height := b.screen.Size()
	visibleHeight := height - 5 // Account for header and footer

	if b.selected-b.offset >= visibleHeight {
		b.offset = b.selected - visibleHeight + 1
	} else if b.selected < b.offset {
		b.offset = b.selected
	}
}

func (b *Browser) draw() {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.screen.Clear()
	width, height := b.screen.Size()

	// Draw header
	header := " QuickNotes "
	if b.favoritesOnly {
		header = " QuickNotes (favorites) "
	}
	drawStringCenter(b.screen, 0, header, tcell.StyleDefault.Reverse(true))

	helpStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	help := "↑/k:Up  ↓/j:Down  Enter:Pick  d:Delete  f:Favorite  F:Favorites  /:Search  q:Quit"
	drawStringCenter(b.screen, 1, help, helpStyle)

	if b.searchMode {
		searchPrompt := fmt.Sprintf(" Search: %s█", b.searchText)
		drawString(b.screen, 0, 2, searchPrompt, tcell.StyleDefault.Reverse(true))
	} else {
		drawString(b.screen, 0, 2, strings.Repeat("─", width), tcell.StyleDefault)
	}

	visibleHeight := height - 5
	endIdx := b.offset + visibleHeight
	if endIdx > len(b.clips) {
		endIdx = len(b.clips)
	}

	if len(b.clips) == 0 {
		drawString(b.screen, 1, 3, "No clips", tcell.StyleDefault.Dim(true))
	} else if b.offset < endIdx {
		for i, clip := range b.clips[b.offset:endIdx] {
			style := tcell.StyleDefault
			if i+b.offset == b.selected {
				style = style.Reverse(true)
			}

			star := " "
			if clip.IsFavorite {
				star = "★"
			}
			line := fmt.Sprintf(" %s %-19s  %s", star, shortTime(clip.Timestamp), preview(clip, width-26))
			drawString(b.screen, 0, i+3, line, style)
		}
	}

	// Draw footer
	if b.status.Message != "" {
		drawString(b.screen, 0, height-1, " "+b.status.Message, statusStyle(b.status.Severity))
	}
	if len(b.clips) > 0 {
		pos := fmt.Sprintf(" %d/%d ", b.selected+1, len(b.clips))
		drawString(b.screen, width-len(pos), height-1, pos, tcell.StyleDefault)
	}

	b.screen.Show()
}

func statusStyle(severity notify.Severity) tcell.Style {
	switch severity {
	case notify.Error:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	case notify.Warning:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case notify.Success:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	}
	return tcell.StyleDefault
}

func shortTime(ts string) string {
	t, err := time.Parse(types.TimestampLayout, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// preview flattens content to one line of at most maxLen runes, with tags appended
func preview(clip types.Clip, maxLen int) string {
	text := strings.Join(strings.Fields(clip.Content), " ")
	if len(clip.Tags) > 0 {
		text += "  #" + strings.Join(clip.Tags, " #")
	}
	return truncate(text, maxLen)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen < 4 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func drawString(s tcell.Screen, x, y int, str string, style tcell.Style) {
	for _, r := range str {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

func drawStringCenter(s tcell.Screen, y int, str string, style tcell.Style) {
	w, _ := s.Size()
	x := (w - len([]rune(str))) / 2
	if x < 0 {
		x = 0
	}
	drawString(s, x, y, str, style)
}
