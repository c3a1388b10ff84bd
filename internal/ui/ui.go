// Package ui is the optional status console: playback state, master
// volume and the track registry, with manual preview from the keyboard.
// The daemon runs headless without it.
package ui

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"

	"github.com/themedeck/themedeckd/internal/engine"
	"github.com/themedeck/themedeckd/internal/library"
	"github.com/themedeck/themedeckd/internal/orchestrator"
	"github.com/themedeck/themedeckd/internal/prefs"
	"github.com/themedeck/themedeckd/internal/track"
)

const VolumeStep = 5

type UI struct {
	app   *tview.Application
	orch  *orchestrator.Orchestrator
	lib   *library.Library
	prefs *prefs.Store

	trackList  *tview.Table
	statusView *tview.TextView
	volumeView *tview.TextView
	mainLayout *tview.Flex

	mu            sync.Mutex
	rows          []track.Track
	currentVolume int
	isMuted       bool
	savedVolume   int

	unsubs []func()

	colors struct {
		background tcell.Color
		foreground tcell.Color
		borders    tcell.Color
		highlight  tcell.Color
		muted      tcell.Color
	}
}

func New(orch *orchestrator.Orchestrator, lib *library.Library, store *prefs.Store) *UI {
	cfg := store.Get()

	ui := &UI{
		app:           tview.NewApplication(),
		orch:          orch,
		lib:           lib,
		prefs:         store,
		currentVolume: cfg.Volume,
	}

	ui.colors.background = prefs.GetColor(cfg.Theme.Background)
	ui.colors.foreground = prefs.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = prefs.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = prefs.GetColor(cfg.Theme.Highlight)
	ui.colors.muted = prefs.GetColor(cfg.Theme.MutedColor)

	return ui
}

func (ui *UI) Run() error {
	ui.buildLayout()
	ui.configureScreen()

	sub := ui.orch.Subscribe()
	go ui.watchState(sub)

	ui.unsubs = append(ui.unsubs, ui.lib.Subscribe(func() {
		ui.app.QueueUpdateDraw(ui.refreshTrackTable)
	}))

	ui.app.SetInputCapture(ui.handleKey)
	ui.app.SetRoot(ui.mainLayout, true)
	return ui.app.Run()
}

// Shutdown stops the UI gracefully from external callers (e.g. signal
// handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(ui.stop)
}

func (ui *UI) stop() {
	for _, unsub := range ui.unsubs {
		unsub()
	}
	ui.unsubs = nil
	ui.app.Stop()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})
}

func (ui *UI) buildLayout() {
	ui.statusView = tview.NewTextView().SetDynamicColors(true)
	ui.statusView.SetBorder(true).
		SetTitle("Playback").
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)
	ui.statusView.SetTextColor(ui.colors.foreground)

	ui.volumeView = tview.NewTextView()
	ui.volumeView.SetBackgroundColor(ui.colors.background)
	ui.volumeView.SetTextColor(ui.colors.highlight)

	ui.trackList = ui.createTrackTable()

	help := tview.NewTextView().
		SetText(" q quit   +/- volume   m mute   enter preview ")
	help.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.statusView, 4, 0, false).
		AddItem(ui.volumeView, 1, 0, false).
		AddItem(ui.trackList, 0, 1, true).
		AddItem(help, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.refreshStatus(ui.orch.CurrentState())
	ui.updateVolumeDisplay()
	ui.refreshTrackTable()
}

func (ui *UI) watchState(sub *orchestrator.Subscription) {
	for {
		select {
		case state := <-sub.StateChanged:
			ui.app.QueueUpdateDraw(func() {
				ui.refreshStatus(state)
				ui.refreshTrackTable()
			})
		case <-sub.Done:
			return
		}
	}
}

func (ui *UI) refreshStatus(state orchestrator.State) {
	name := ""
	if t := ui.lib.Track(state.ActiveContext); t != nil {
		name = t.DisplayName()
	}
	ui.statusView.SetText(statusLine(state, name))
}

// statusLine renders the one-line playback summary.
func statusLine(state orchestrator.State, trackName string) string {
	if !state.Playing {
		return " ⏹ stopped"
	}
	glyph := "➤"
	suffix := ""
	if state.Reason == engine.ReasonManual {
		suffix = " (preview)"
	}
	if trackName == "" {
		trackName = "unknown track"
	}
	return fmt.Sprintf(" %s %s — %s%s", glyph, trackName, state.ActiveContext, suffix)
}

func (ui *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		ui.stop()
		return nil
	case tcell.KeyEnter:
		ui.previewSelected()
		return nil
	}

	switch event.Rune() {
	case 'q':
		ui.stop()
		return nil
	case '+', '=':
		ui.adjustVolume(VolumeStep)
		return nil
	case '-', '_':
		ui.adjustVolume(-VolumeStep)
		return nil
	case 'm':
		ui.toggleMute()
		return nil
	case ' ':
		ui.previewSelected()
		return nil
	}
	return event
}

func (ui *UI) previewSelected() {
	ui.mu.Lock()
	rows := ui.rows
	ui.mu.Unlock()

	row, _ := ui.trackList.GetSelection()
	index := row - 1
	if index < 0 || index >= len(rows) {
		return
	}

	t := rows[index]
	log.Debug().Str("context", t.Context.String()).Msg("Preview toggled from console")
	ui.orch.PreviewToggle(t)
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.savedVolume
		ui.isMuted = false
	} else {
		ui.currentVolume = prefs.ClampVolume(ui.currentVolume + delta)
	}
	volume := ui.currentVolume
	ui.mu.Unlock()

	if err := ui.prefs.SetVolume(volume); err != nil {
		log.Error().Err(err).Msg("Failed to save volume")
	}
	ui.updateVolumeDisplay()
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.savedVolume
		ui.isMuted = false
	} else {
		ui.savedVolume = ui.currentVolume
		if ui.savedVolume == 0 {
			ui.savedVolume = prefs.DefaultVolume
		}
		ui.currentVolume = 0
		ui.isMuted = true
	}
	volume := ui.currentVolume
	ui.mu.Unlock()

	if err := ui.prefs.SetVolume(volume); err != nil {
		log.Error().Err(err).Msg("Failed to save volume")
	}
	ui.updateVolumeDisplay()
}

func (ui *UI) updateVolumeDisplay() {
	ui.mu.Lock()
	volume := ui.currentVolume
	muted := ui.isMuted
	ui.mu.Unlock()

	ui.volumeView.SetText(volumeBar(volume, muted))
	if muted {
		ui.volumeView.SetTextColor(ui.colors.muted)
	} else {
		ui.volumeView.SetTextColor(ui.colors.highlight)
	}
}

// volumeBar renders the master volume as a block bar.
func volumeBar(volume int, muted bool) string {
	const barWidth = 20

	filled := (volume * barWidth) / 100
	bar := ""
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	label := fmt.Sprintf("%3d%%", volume)
	if muted {
		label = "mute"
	}
	return fmt.Sprintf(" %s %s", label, bar)
}
