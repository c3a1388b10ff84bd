package ui

import (
	"fmt"
	"sort"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/themedeck/themedeckd/internal/orchestrator"
	"github.com/themedeck/themedeckd/internal/track"
)

func (ui *UI) createTrackTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetTitle("Tracks").
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	return table
}

func (ui *UI) refreshTrackTable() {
	rows := sortedTracks(ui.lib.Tracks())

	ui.mu.Lock()
	ui.rows = rows
	ui.mu.Unlock()

	state := ui.orch.CurrentState()

	ui.trackList.Clear()
	headers := []string{" ", "Context", "Track", "Vol", "Offset", "Loop"}
	for col, text := range headers {
		cell := tview.NewTableCell(text).
			SetTextColor(ui.colors.highlight).
			SetBackgroundColor(ui.colors.background).
			SetSelectable(false)
		if col >= 2 {
			cell.SetExpansion(1)
		}
		ui.trackList.SetCell(0, col, cell)
	}

	for i, t := range rows {
		ui.setTrackRow(i+1, t, state)
	}
	ui.trackList.SetTitle(fmt.Sprintf("Tracks (%d)", len(rows)))
}

func (ui *UI) setTrackRow(row int, t track.Track, state orchestrator.State) {
	playIcon := " "
	if state.Playing && state.ActiveContext == t.Context {
		playIcon = "➤"
	}

	loop := " "
	if t.Loop {
		loop = "∞"
	}

	cells := []string{
		playIcon,
		t.Context.String(),
		t.DisplayName(),
		fmt.Sprintf("%3.0f%%", t.Volume*100),
		fmt.Sprintf("%4.1fs", t.StartOffset),
		loop,
	}
	for col, text := range cells {
		cell := tview.NewTableCell(text).
			SetTextColor(ui.colors.foreground)
		if col == 3 || col == 4 {
			cell.SetAlign(tview.AlignRight)
		}
		ui.trackList.SetCell(row, col, cell)
	}
}

// sortedTracks orders the registry for display: ambient, store, then
// games by ascending id.
func sortedTracks(tracks map[track.ContextID]track.Track) []track.Track {
	rows := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		rows = append(rows, t)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Context, rows[j].Context
		if a.IsGame() != b.IsGame() {
			return !a.IsGame()
		}
		if !a.IsGame() {
			// Ambient (-1) before store (-2).
			return a > b
		}
		return a < b
	})
	return rows
}
