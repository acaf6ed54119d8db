package clock

import (
	"testing"
	"time"
)

func TestTimeClocker(t *testing.T) {
	t.Run("NowIsCurrent", func(t *testing.T) {
		// Arrange
		c := New()
		before := time.Now()

		// Act
		got := c.Now()

		// Assert
		if got.Before(before) {
			t.Fatalf("expected now >= %v, got %v", before, got)
		}
	})

	t.Run("TickerTicks", func(t *testing.T) {
		// Arrange
		c := New()
		tk := c.NewTicker(time.Millisecond)
		defer tk.Stop()

		// Act & Assert
		select {
		case <-tk.C():
		case <-time.After(time.Second):
			t.Fatal("expected a tick within one second")
		}
	})
}
