package debug

import (
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wave-portal/waveportal/internal/logging"
)

func entry(level log.Level, component, msg string) logging.Entry {
	return logging.Entry{Time: time.Unix(1700000000, 0), Level: level, Component: component, Message: msg}
}

func filled(n int) Model {
	m := New()
	for i := 0; i < n; i++ {
		m.Push(entry(log.InfoLevel, "", "msg"))
	}
	return m
}

func TestCapacity(t *testing.T) {
	m := filled(Capacity + 50)
	if m.Len() != Capacity {
		t.Errorf("expected %d entries, got %d", Capacity, m.Len())
	}
}

func TestScrolling(t *testing.T) {
	tests := []struct {
		name  string
		total int
		older int
		newer int
		want  int
	}{
		{"follows by default", 20, 0, 0, 0},
		{"older", 20, 5, 0, 5},
		{"older then newer", 20, 5, 3, 2},
		{"newer stops at tail", 20, 5, 10, 0},
		{"older stops at head", 5, 100, 0, 4},
		{"empty console", 0, 3, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := filled(tt.total)
			m.Older(tt.older)
			m.Newer(tt.newer)
			if m.Back() != tt.want {
				t.Errorf("back = %d, want %d", m.Back(), tt.want)
			}
		})
	}
}

func TestPushKeepsHistoryAnchored(t *testing.T) {
	m := filled(10)
	m.Older(3)
	m.Push(entry(log.InfoLevel, "", "new"))
	if m.Back() != 4 || m.Following() {
		t.Errorf("reading history: back = %d, following = %v", m.Back(), m.Following())
	}

	m.Newer(10)
	m.Push(entry(log.InfoLevel, "", "newer"))
	if !m.Following() {
		t.Error("console at the tail should keep following")
	}
}

func TestViewEmpty(t *testing.T) {
	if v := New().View(80, 20); !strings.Contains(v, "nothing logged yet") {
		t.Errorf("empty console missing placeholder:\n%s", v)
	}
}

func TestViewEntries(t *testing.T) {
	m := New()
	m.Push(entry(log.InfoLevel, "wallet", "Connected 0xABC"))
	m.Push(entry(log.WarnLevel, "contract", "timeout"))

	v := m.View(100, 20)
	for _, want := range []string{"CONSOLE", "wallet: Connected 0xABC", "contract: timeout", "WARN", "INFO"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}

func TestViewPaused(t *testing.T) {
	m := filled(30)
	m.Older(2)
	if v := m.View(100, 20); !strings.Contains(v, "paused, 2 newer") {
		t.Errorf("paused console should say so:\n%s", v)
	}
}
