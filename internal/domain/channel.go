package domain

import "time"

// Channel is a publication target. The set is closed: copy variants and
// adapter registration are keyed by this type, so an unsupported channel
// fails at construction rather than at send time.
type Channel string

const (
	ChannelTelegram  Channel = "telegram"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelTwitter   Channel = "twitter"
	ChannelInstagram Channel = "instagram"
	ChannelFacebook  Channel = "facebook"
	ChannelSite      Channel = "site"
)

// AllChannels lists every supported channel in a stable order.
var AllChannels = []Channel{
	ChannelTelegram,
	ChannelWhatsApp,
	ChannelTwitter,
	ChannelInstagram,
	ChannelFacebook,
	ChannelSite,
}

func (c Channel) IsValid() bool {
	switch c {
	case ChannelTelegram, ChannelWhatsApp, ChannelTwitter,
		ChannelInstagram, ChannelFacebook, ChannelSite:
		return true
	}
	return false
}

// Priority controls per-channel dispatch ordering. High is sent first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Rank maps a priority to its ordering weight. Lower sends first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

// ChannelRule is the pacing configuration for one channel.
// Rules are static per deployment but may be hot-reloaded from the
// rules file; the rate limiter swaps them atomically between ticks.
type ChannelRule struct {
	MinInterval time.Duration
	DailyCap    int // 0 = unlimited
	Enabled     bool
}
