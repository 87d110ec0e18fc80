package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the registration-side copy of an identity provider account.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	EmailAddr string    `bun:"email_addr,notnull" json:"email_addr"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
