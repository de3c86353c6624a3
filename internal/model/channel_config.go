package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// ChannelList is a channel set stored as a comma-separated column.
type ChannelList []Channel

func (l ChannelList) Value() (driver.Value, error) {
	parts := make([]string, 0, len(l))
	for _, c := range l {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ","), nil
}

func (l *ChannelList) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("channellist: unsupported source %T", src)
	}
	if strings.TrimSpace(s) == "" {
		*l = nil
		return nil
	}
	out := make(ChannelList, 0, 4)
	for _, p := range strings.Split(s, ",") {
		if c, ok := ParseChannel(p); ok {
			out = append(out, c)
		}
	}
	*l = out
	return nil
}

func (l ChannelList) Contains(c Channel) bool {
	for _, v := range l {
		if v == c {
			return true
		}
	}
	return false
}

// TenantChannelConfig selects which channels a tenant has switched on for
// a given source type. Absence of an active row means "all channels on".
type TenantChannelConfig struct {
	TenantID        int64       `db:"tenant_id"`
	SourceTypeCode  string      `db:"source_type_code"`
	ChannelsEnabled ChannelList `db:"channels_enabled"`
	IsEnabled       bool        `db:"is_enabled"` // kill switch for the whole source
	IsActive        bool        `db:"is_active"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

// Allows reports whether the config permits delivery on the channel.
func (c TenantChannelConfig) Allows(ch Channel) bool {
	return c.IsEnabled && c.ChannelsEnabled.Contains(ch)
}
