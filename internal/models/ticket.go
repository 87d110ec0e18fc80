package models

import (
	"fmt"
	"time"

	"ms-registration/internal/prices"

	"github.com/uptrace/bun"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID         int64     `bun:"id,pk,autoincrement" json:"-"`
	OwnerID    *string   `bun:"owner_id,unique" json:"owner_id,omitempty"`
	Rate       string    `bun:"rate,notnull" json:"rate"`
	Sat        bool      `bun:"sat,notnull" json:"sat"`
	Sun        bool      `bun:"sun,notnull" json:"sun"`
	Mon        bool      `bun:"mon,notnull" json:"mon"`
	Tue        bool      `bun:"tue,notnull" json:"tue"`
	Wed        bool      `bun:"wed,notnull" json:"wed"`
	FreeReason string    `bun:"free_reason" json:"free_reason,omitempty"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	// Set on draft tickets bought for someone else.
	InviteeEmailAddr string `bun:"-" json:"-"`
	InviteeName      string `bun:"-" json:"-"`
}

func (t *Ticket) flag(key string) *bool {
	switch key {
	case "sat":
		return &t.Sat
	case "sun":
		return &t.Sun
	case "mon":
		return &t.Mon
	case "tue":
		return &t.Tue
	case "wed":
		return &t.Wed
	}
	return nil
}

// SetDays replaces the ticket's days. Unknown keys are ignored.
func (t *Ticket) SetDays(keys []string) {
	for _, k := range DayKeys {
		*t.flag(k) = false
	}
	for _, k := range keys {
		if f := t.flag(k); f != nil {
			*f = true
		}
	}
}

// DayKeys returns the ticket's days in conference order.
func (t *Ticket) DayKeys() []string {
	var keys []string
	for _, k := range DayKeys {
		if *t.flag(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (t *Ticket) NumDays() int {
	return len(t.DayKeys())
}

func (t *Ticket) DaysSentence() string {
	return DaysSentence(t.DayKeys())
}

// DescrForOrder is the order row description, eg "3-day individual-rate ticket".
func (t *Ticket) DescrForOrder() string {
	return fmt.Sprintf("%d-day %s-rate ticket", t.NumDays(), t.Rate)
}

func (t *Ticket) CostExclVAT() (int64, error) {
	return prices.CostExclVAT(t.Rate, t.NumDays())
}

func (t *Ticket) IsFree() bool {
	return t.Rate == prices.RateFree
}

type InvitationStatus string

const (
	InvitationUnclaimed InvitationStatus = "unclaimed"
	InvitationClaimed   InvitationStatus = "claimed"
)

type TicketInvitation struct {
	bun.BaseModel `bun:"table:ticket_invitations,alias:ti"`

	ID        int64            `bun:"id,pk,autoincrement" json:"-"`
	TicketID  int64            `bun:"ticket_id,notnull,unique" json:"-"`
	EmailAddr string           `bun:"email_addr,notnull,unique" json:"email_addr"`
	Token     string           `bun:"token,notnull,unique" json:"token"`
	Status    InvitationStatus `bun:"status,notnull" json:"status"`
	CreatedAt time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}
