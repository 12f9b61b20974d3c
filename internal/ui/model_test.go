// ABOUTME: Tests for the stress dashboard model
// ABOUTME: Row updates, completion, key handling and rendering
package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestNewModel(t *testing.T) {
	m := NewModel("Stress", nil)
	assert.Empty(t, m.sessions)
	assert.False(t, m.finished)
	assert.NotNil(t, m.Init())
}

func TestStatusReplacesRow(t *testing.T) {
	m := NewModel("Stress", nil)
	m = update(t, m, StatusMsg{ID: "b", State: "running", BytesIn: 10})
	m = update(t, m, StatusMsg{ID: "a", State: "running"})
	m = update(t, m, StatusMsg{ID: "b", State: "stopped", BytesIn: 20, Done: true})

	rows := m.rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, "stopped", rows[1].State)
	assert.Equal(t, int64(20), rows[1].BytesIn)
}

func TestViewShowsTotals(t *testing.T) {
	m := NewModel("Stress", nil)
	m = update(t, m, StatusMsg{ID: "s1", BytesIn: 2048, BytesOut: 4096, Done: true})
	m = update(t, m, StatusMsg{ID: "s2", Degraded: true, Err: "boom"})

	view := m.View()
	assert.Contains(t, view, "Stress")
	assert.Contains(t, view, "2 (1 done, 1 degraded)")
	assert.Contains(t, view, "2.0KB in, 4.0KB out")
	assert.Contains(t, view, "boom")
}

func TestFinishedMessage(t *testing.T) {
	m := NewModel("Stress", nil)
	m = update(t, m, FinishedMsg{})
	assert.Contains(t, m.View(), "All sessions completed")

	m = update(t, m, FinishedMsg{Err: errors.New("session 3 degraded")})
	assert.Contains(t, m.View(), "Failed: session 3 degraded")
}

func TestQuitKeySignals(t *testing.T) {
	quit := make(chan struct{}, 1)
	m := NewModel("Stress", quit)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.NotNil(t, cmd)
	assert.True(t, next.(Model).quitting)

	select {
	case <-quit:
	default:
		t.Fatal("quit not signalled")
	}
}

func TestToggleIDs(t *testing.T) {
	m := NewModel("Stress", nil)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("i")})
	assert.True(t, m.showIDs)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512B", formatBytes(512))
	assert.Equal(t, "1.5KB", formatBytes(1536))
	assert.Equal(t, "2.0MB", formatBytes(2<<20))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
