// Package epoch turns the network's monotonic tick counter into epoch ids.
//
// All freshness in the protocol is decided by comparing a tick against the
// registry's epoch length. There are no timers: a record simply stops being
// usable once the counter moves into the next epoch.
package epoch

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// Clock reports the current tick of the network's monotonic counter.
type Clock interface {
	Tick() uint64
}

// ManualClock is a tick counter that only moves when told to.
// Used by the CLI (--tick), the scenario harness and tests.
//
// Thread-safety: ManualClock is safe for concurrent use (atomic operations).
type ManualClock struct {
	tick atomic.Uint64
}

// NewManualClock creates a clock starting at the given tick.
func NewManualClock(start uint64) *ManualClock {
	c := &ManualClock{}
	c.tick.Store(start)
	return c
}

// Tick returns the current tick.
func (c *ManualClock) Tick() uint64 {
	return c.tick.Load()
}

// Advance moves the clock forward by n ticks and returns the new tick.
func (c *ManualClock) Advance(n uint64) uint64 {
	return c.tick.Add(n)
}

// Set moves the clock to tick. Moving backwards is ignored so the counter
// stays monotonic; the returned value is the tick in effect.
func (c *ManualClock) Set(tick uint64) uint64 {
	return raise(&c.tick, tick)
}

// raise stores v in a unless a already holds something larger, and returns
// the value in effect.
func raise(a *atomic.Uint64, v uint64) uint64 {
	for {
		cur := a.Load()
		if v <= cur {
			return cur
		}
		if a.CompareAndSwap(cur, v) {
			return v
		}
	}
}

// SlotClock derives ticks from wall time: one tick per slot since genesis.
// Before genesis the tick is 0. The tick never decreases, even when the wall
// clock is stepped back; it holds at its high-water mark until wall time
// catches up.
type SlotClock struct {
	genesis time.Time
	slot    time.Duration
	now     func() time.Time
	last    atomic.Uint64
}

// NewSlotClock creates a wall-clock tick source.
func NewSlotClock(genesis time.Time, slot time.Duration) *SlotClock {
	return NewSlotClockFunc(genesis, slot, time.Now)
}

// NewSlotClockFunc is NewSlotClock with an explicit time source.
func NewSlotClockFunc(genesis time.Time, slot time.Duration, now func() time.Time) *SlotClock {
	return &SlotClock{genesis: genesis, slot: slot, now: now}
}

// Genesis returns the instant tick 0 is counted from.
func (c *SlotClock) Genesis() time.Time {
	return c.genesis
}

// Tick returns the number of whole slots elapsed since genesis.
func (c *SlotClock) Tick() uint64 {
	if c.slot <= 0 {
		return 0
	}
	var tick uint64
	if elapsed := c.now().Sub(c.genesis); elapsed > 0 {
		tick = uint64(elapsed / c.slot)
	}
	return raise(&c.last, tick)
}

// Of returns the epoch containing tick. A zero epoch length is rejected
// with BAD_EPOCH_LEN rather than dividing by zero.
func Of(tick, epochLen uint64) (uint64, error) {
	if epochLen == 0 {
		return 0, ir.NewError(ir.ErrCodeBadEpochLen, "epoch length must be positive")
	}
	return tick / epochLen, nil
}

// Bounds returns the first tick of the epoch and the first tick of the next
// one. It fails closed with OVERFLOW when the range does not fit in uint64.
func Bounds(epochID, epochLen uint64) (start, end uint64, err error) {
	if epochLen == 0 {
		return 0, 0, ir.NewError(ir.ErrCodeBadEpochLen, "epoch length must be positive")
	}
	start, err = ir.CheckedMul(epochID, epochLen)
	if err != nil {
		return 0, 0, err
	}
	end, err = ir.CheckedAdd(start, epochLen)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Current returns the epoch containing the clock's current tick.
func Current(c Clock, epochLen uint64) (uint64, error) {
	return Of(c.Tick(), epochLen)
}

// RequireCurrent fails with WRONG_EPOCH unless epochID is the clock's
// current epoch.
func RequireCurrent(c Clock, epochLen, epochID uint64) error {
	tick := c.Tick()
	cur, err := Of(tick, epochLen)
	if err != nil {
		return err
	}
	if cur != epochID {
		return ir.NewError(ir.ErrCodeWrongEpoch, "epoch %d is not current (current epoch %d at tick %d)", epochID, cur, tick).
			WithDetail("current_epoch", strconv.FormatUint(cur, 10))
	}
	return nil
}
