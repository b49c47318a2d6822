package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTimer(t *testing.T) {
	t.Run("zero before first start", func(t *testing.T) {
		tm := New()
		assert.Equal(t, time.Duration(0), tm.Elapsed())
		assert.False(t, tm.Running())
	})

	t.Run("measures start to stop", func(t *testing.T) {
		clk := &fakeClock{t: time.Unix(1700000000, 0)}
		tm := NewWithClock(clk.now)

		tm.Start()
		clk.advance(3 * time.Second)
		assert.Equal(t, 3*time.Second, tm.Elapsed(), "live value while running")

		clk.advance(2 * time.Second)
		tm.Stop()
		clk.advance(time.Minute)
		assert.Equal(t, 5*time.Second, tm.Elapsed())
		assert.False(t, tm.Running())
	})

	t.Run("restart does not accumulate", func(t *testing.T) {
		clk := &fakeClock{t: time.Unix(1700000000, 0)}
		tm := NewWithClock(clk.now)

		tm.Start()
		clk.advance(10 * time.Second)
		tm.Start()
		clk.advance(time.Second)
		tm.Stop()
		assert.Equal(t, time.Second, tm.Elapsed())
	})

	t.Run("stop without start keeps zero", func(t *testing.T) {
		tm := New()
		tm.Stop()
		assert.Equal(t, time.Duration(0), tm.Elapsed())
	})

	t.Run("reset clears measurement", func(t *testing.T) {
		clk := &fakeClock{t: time.Unix(1700000000, 0)}
		tm := NewWithClock(clk.now)
		tm.Start()
		clk.advance(time.Second)
		tm.Stop()
		tm.Reset()
		assert.Equal(t, time.Duration(0), tm.Elapsed())
	})
}
