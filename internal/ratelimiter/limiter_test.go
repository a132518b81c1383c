package ratelimiter

import (
	"testing"
	"time"

	"github.com/promohub/channel-dispatch/internal/domain"
)

func testRules(interval time.Duration, dailyCap int) map[domain.Channel]domain.ChannelRule {
	return map[domain.Channel]domain.ChannelRule{
		domain.ChannelTwitter: {MinInterval: interval, DailyCap: dailyCap, Enabled: true},
	}
}

func TestMinIntervalSinceLastSend(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := New(testRules(15*time.Minute, 0)).WithClock(func() time.Time { return now })

	if !l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected first reservation to succeed")
	}
	l.Confirm(domain.ChannelTwitter, now)

	now = now.Add(14 * time.Minute)
	if l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected reservation inside the interval to fail")
	}
	allowed, next := l.Allow(domain.ChannelTwitter)
	if allowed {
		t.Fatal("expected Allow to report blocked")
	}
	want := time.Date(2026, 3, 10, 12, 15, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("nextAllowed = %v, want %v", next, want)
	}

	now = now.Add(time.Minute)
	if !l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected reservation at interval boundary to succeed")
	}
}

func TestFailedSendConsumesNoBudget(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := New(testRules(15*time.Minute, 2)).WithClock(func() time.Time { return now })

	if !l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected reservation to succeed")
	}
	l.Release(domain.ChannelTwitter)

	// The failed attempt must not start the interval clock or count
	// against the cap.
	if !l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected immediate retry after a released reservation")
	}
	l.Confirm(domain.ChannelTwitter, now)

	sent, _ := l.Snapshot(domain.ChannelTwitter)
	if sent != 1 {
		t.Fatalf("sentToday = %d, want 1", sent)
	}
}

func TestDailyCapAndMidnightReset(t *testing.T) {
	now := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	l := New(testRules(0, 2)).WithClock(func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if !l.TryReserve(domain.ChannelTwitter) {
			t.Fatalf("expected reservation %d to succeed", i+1)
		}
		l.Confirm(domain.ChannelTwitter, now)
	}
	if l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected reservation over the daily cap to fail")
	}

	// Past midnight the count resets.
	now = time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC)
	if !l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected reservation after midnight to succeed")
	}
	l.Release(domain.ChannelTwitter)

	sent, _ := l.Snapshot(domain.ChannelTwitter)
	if sent != 0 {
		t.Fatalf("sentToday after rollover = %d, want 0", sent)
	}
}

func TestSingleReservationPerChannel(t *testing.T) {
	l := New(testRules(0, 0))

	if !l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected first reservation to succeed")
	}
	if l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected second reservation while one is in flight to fail")
	}
	l.Release(domain.ChannelTwitter)
	if !l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected reservation after release to succeed")
	}
}

func TestDisabledChannelNeverReserves(t *testing.T) {
	rules := map[domain.Channel]domain.ChannelRule{
		domain.ChannelInstagram: {MinInterval: time.Minute, DailyCap: 4, Enabled: false},
	}
	l := New(rules)

	if l.TryReserve(domain.ChannelInstagram) {
		t.Fatal("expected reservation on a disabled channel to fail")
	}
}

func TestSeedRestoresHistory(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := New(testRules(15*time.Minute, 3)).WithClock(func() time.Time { return now })

	last := now.Add(-5 * time.Minute)
	l.Seed(domain.ChannelTwitter, &last, 3)

	if l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected seeded cap to block the reservation")
	}
	sent, _ := l.Snapshot(domain.ChannelTwitter)
	if sent != 3 {
		t.Fatalf("sentToday = %d, want 3", sent)
	}
}

func TestSetRulesHotSwap(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := New(testRules(time.Hour, 0)).WithClock(func() time.Time { return now })

	if !l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected reservation to succeed")
	}
	l.Confirm(domain.ChannelTwitter, now)

	now = now.Add(10 * time.Minute)
	if l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected one-hour interval to block")
	}

	l.SetRules(testRules(5*time.Minute, 0))
	if !l.TryReserve(domain.ChannelTwitter) {
		t.Fatal("expected shorter interval to admit after hot swap")
	}
}
