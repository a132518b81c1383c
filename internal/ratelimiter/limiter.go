package ratelimiter

import (
	"sync"
	"time"

	"github.com/promohub/channel-dispatch/internal/domain"
)

// Limiter enforces per-channel pacing: a minimum interval since the last
// successful send and an optional daily cap. Budget is consumed only on
// confirmed sends; a failed attempt never advances the interval clock or
// the daily count.
//
// The scheduler holds at most one reservation per channel at a time:
// TryReserve admits an attempt, then exactly one of Confirm or Release
// settles it.
type Limiter struct {
	mu    sync.Mutex
	rules map[domain.Channel]domain.ChannelRule
	state map[domain.Channel]*channelState
	now   func() time.Time
}

type channelState struct {
	lastSentAt *time.Time
	sentToday  int
	dayAnchor  time.Time // midnight local time of the day sentToday counts
	reserved   bool
}

func New(rules map[domain.Channel]domain.ChannelRule) *Limiter {
	l := &Limiter{
		rules: rules,
		state: make(map[domain.Channel]*channelState, len(domain.AllChannels)),
		now:   time.Now,
	}
	for _, ch := range domain.AllChannels {
		l.state[ch] = &channelState{}
	}
	return l
}

// WithClock replaces the time source. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Seed restores a channel's send history, typically from the database on
// startup so a restart does not forget the interval or the daily count.
func (l *Limiter) Seed(ch domain.Channel, lastSentAt *time.Time, sentToday int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.channel(ch)
	st.lastSentAt = lastSentAt
	st.sentToday = sentToday
	st.dayAnchor = dayStart(l.now())
}

// SetRules swaps the pacing rules. Reservations already held settle
// under the rules they were admitted with.
func (l *Limiter) SetRules(rules map[domain.Channel]domain.ChannelRule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules = rules
}

// Rule returns the current pacing rule for the channel.
func (l *Limiter) Rule(ch domain.Channel) domain.ChannelRule {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rules[ch]
}

// Allow reports whether the channel may send now, without reserving.
// nextAllowed is the earliest instant the interval gate opens; it is the
// zero time when the gate is already open or the block is the daily cap.
func (l *Limiter) Allow(ch domain.Channel) (allowed bool, nextAllowed time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowLocked(ch)
}

// TryReserve admits one send attempt for the channel. It fails when the
// channel is disabled, pacing blocks it, or an attempt is already in
// flight. The caller must settle with Confirm or Release.
func (l *Limiter) TryReserve(ch domain.Channel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.channel(ch)
	if st.reserved {
		return false
	}
	allowed, _ := l.allowLocked(ch)
	if !allowed {
		return false
	}
	st.reserved = true
	return true
}

// Confirm settles a reservation after a successful send: the interval
// clock restarts at sentAt and the daily budget is consumed.
func (l *Limiter) Confirm(ch domain.Channel, sentAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.channel(ch)
	l.rollDay(st)
	t := sentAt
	st.lastSentAt = &t
	st.sentToday++
	st.reserved = false
}

// Release settles a reservation without consuming budget: the attempt
// failed or the channel queue turned out to be empty.
func (l *Limiter) Release(ch domain.Channel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.channel(ch).reserved = false
}

// Snapshot returns the channel's current pacing view for the status
// endpoint: sends counted today and, if the interval gate is closed,
// when it opens.
func (l *Limiter) Snapshot(ch domain.Channel) (sentToday int, nextAllowed *time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.channel(ch)
	l.rollDay(st)
	if _, next := l.allowLocked(ch); !next.IsZero() {
		nextAllowed = &next
	}
	return st.sentToday, nextAllowed
}

func (l *Limiter) allowLocked(ch domain.Channel) (bool, time.Time) {
	rule := l.rules[ch]
	if !rule.Enabled {
		return false, time.Time{}
	}

	st := l.channel(ch)
	l.rollDay(st)

	if rule.DailyCap > 0 && st.sentToday >= rule.DailyCap {
		return false, time.Time{}
	}
	if st.lastSentAt != nil && rule.MinInterval > 0 {
		next := st.lastSentAt.Add(rule.MinInterval)
		if l.now().Before(next) {
			return false, next
		}
	}
	return true, time.Time{}
}

// rollDay resets the daily count once the local day rolls over.
func (l *Limiter) rollDay(st *channelState) {
	today := dayStart(l.now())
	if !st.dayAnchor.Equal(today) {
		st.dayAnchor = today
		st.sentToday = 0
	}
}

func (l *Limiter) channel(ch domain.Channel) *channelState {
	st, ok := l.state[ch]
	if !ok {
		st = &channelState{}
		l.state[ch] = st
	}
	return st
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
