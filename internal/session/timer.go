package session

import "github.com/stemsi/exstem-session/internal/model"

// countdown is a whole-second timer. A disarmed countdown never changes.
type countdown struct {
	remaining int
	armed     bool
}

func (c *countdown) arm(seconds int) {
	if seconds <= 0 {
		c.remaining = 0
		c.armed = false
		return
	}
	c.remaining = seconds
	c.armed = true
}

func (c *countdown) disarm() { c.armed = false }

// tick decrements the countdown and reports expiry exactly once.
func (c *countdown) tick() bool {
	if !c.armed {
		return false
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.armed = false
		return true
	}
	return false
}

// Expiry names the countdown that ran out on a tick.
type Expiry int

const (
	ExpiryNone Expiry = iota
	ExpiryGlobal
	ExpirySection
)

// Timers holds the global and section countdowns of one session.
type Timers struct {
	global  countdown
	section countdown
}

// Start arms the global countdown and the countdown of the first section.
func (t *Timers) Start(def *model.TestDefinition, first *model.Section) {
	t.global.arm(def.GlobalTimeLimitSeconds())
	t.ArmSection(first)
}

// ArmSection resets the section countdown to the full limit of sec.
// A section without a limit leaves the countdown inert at zero.
func (t *Timers) ArmSection(sec *model.Section) {
	t.section.arm(sec.TimeLimitSeconds())
}

// Stop disarms both countdowns, keeping the remaining values.
func (t *Timers) Stop() {
	t.global.disarm()
	t.section.disarm()
}

// Tick advances both countdowns by one second. The global countdown is
// evaluated first and wins when both run out on the same tick.
func (t *Timers) Tick() Expiry {
	if t.global.tick() {
		return ExpiryGlobal
	}
	if t.section.tick() {
		return ExpirySection
	}
	return ExpiryNone
}

func (t *Timers) GlobalRemaining() int { return t.global.remaining }
func (t *Timers) SectionRemaining() int { return t.section.remaining }
func (t *Timers) SectionArmed() bool { return t.section.armed }
