package waves

import (
	"strings"
	"testing"
	"time"

	"github.com/wave-portal/waveportal/internal/portal"
)

func wave(sender, msg string) portal.Wave {
	return portal.Wave{Sender: sender, Timestamp: time.Unix(1700000000, 0), Message: msg}
}

func TestEmptyList(t *testing.T) {
	m := New("notty")
	m.SetSize(80, 20)
	if !strings.Contains(m.View(), "No waves yet") {
		t.Error("empty list should show placeholder")
	}
}

func TestSetWavesRendersFields(t *testing.T) {
	m := New("notty")
	m.SetSize(100, 40)
	m.SetWaves([]portal.Wave{wave("0xAAA", "hello world")})

	v := m.View()
	for _, want := range []string{"Address:", "0xAAA", "Time:", "Message:", "hello world"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	m := New("notty")
	m.SetSize(100, 200)
	m.SetWaves([]portal.Wave{wave("0x1", "first"), wave("0x2", "second")})
	m.Append(wave("0x3", "third"))
	m.Append(wave("0x3", "third"))

	if len(m.Waves) != 4 {
		t.Fatalf("expected 4 waves (no dedupe), got %d", len(m.Waves))
	}
	v := m.View()
	if strings.Index(v, "first") > strings.Index(v, "second") || strings.Index(v, "second") > strings.Index(v, "third") {
		t.Error("waves rendered out of order")
	}
}

func TestSetWavesCopies(t *testing.T) {
	src := []portal.Wave{wave("0x1", "a")}
	m := New("notty")
	m.SetWaves(src)
	src[0].Message = "mutated"
	if m.Waves[0].Message != "a" {
		t.Error("SetWaves should copy its input")
	}
}

func TestZeroTimestamp(t *testing.T) {
	if formatTime(time.Time{}) != "-" {
		t.Error("zero time should render as '-'")
	}
}
