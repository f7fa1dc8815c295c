package session

import "time"

// DefaultAlarmWindow is how long the violation alarm stays up after the latest violation.
const DefaultAlarmWindow = 5 * time.Second

// Monitor counts visibility violations and owns the platform subscriptions
// and the alarm timer of one active session. It is guarded by the Controller.
type Monitor struct {
	window time.Duration
	subs   []Subscription

	count       int
	alarm       bool
	alarmGen    uint64
	cancelAlarm Cancel
}

// NewMonitor creates a Monitor whose alarm clears window after the last violation.
func NewMonitor(window time.Duration) *Monitor {
	if window <= 0 {
		window = DefaultAlarmWindow
	}
	return &Monitor{window: window}
}

// attach subscribes to the hidden-visibility and before-unload signals.
func (m *Monitor) attach(src EventSource, onHidden, onUnload Listener) {
	m.subs = append(m.subs,
		src.Subscribe(EventVisibilityHidden, onHidden),
		src.Subscribe(EventBeforeUnload, onUnload),
	)
}

// detach releases every subscription and the pending alarm timer.
func (m *Monitor) detach() {
	for _, sub := range m.subs {
		sub.Unsubscribe()
	}
	m.subs = nil
	m.stopAlarm()
	m.alarm = false
}

// attached reports whether the monitor currently holds subscriptions.
func (m *Monitor) attached() bool { return len(m.subs) > 0 }

// record counts one violation and (re)starts the alarm window. clear is
// scheduled with the alarm generation it must match to take effect.
func (m *Monitor) record(sched Scheduler, clear func(gen uint64)) int {
	m.count++
	m.alarm = true
	m.stopAlarm()
	m.alarmGen++
	gen := m.alarmGen
	m.cancelAlarm = sched.After(m.window, func() { clear(gen) })
	return m.count
}

// clearAlarm lowers the alarm if gen is still the latest window.
func (m *Monitor) clearAlarm(gen uint64) bool {
	if gen != m.alarmGen || !m.alarm {
		return false
	}
	m.alarm = false
	m.cancelAlarm = nil
	return true
}

func (m *Monitor) stopAlarm() {
	if m.cancelAlarm != nil {
		m.cancelAlarm()
		m.cancelAlarm = nil
	}
	m.alarmGen++
}

// Count is the number of violations recorded so far.
func (m *Monitor) Count() int { return m.count }

// Alarm reports whether the violation alarm is showing.
func (m *Monitor) Alarm() bool { return m.alarm }
