package model

import "strings"

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelInApp    Channel = "inapp"
)

func (c Channel) String() string { return string(c) }

func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelWhatsApp || c == ChannelInApp
}

// ParseChannel normalizes input. Returns (value, true) if valid;
// otherwise ("", false).
func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c, true
	}
	return "", false
}

// Channels lists every delivery channel the gateway knows about.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelInApp}
}
