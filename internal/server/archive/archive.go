// Package archive keeps an audit copy of referral codes that were retired or
// replaced. Archived records are never read back by the service.
package archive

import (
	"context"
	"time"
)

const (
	ReasonRetired  = "retired"
	ReasonReplaced = "replaced"
)

// Record describes a code at the moment it stopped being the owner's code.
type Record struct {
	UserID         string    `json:"user_id"`
	Code           string    `json:"code"`
	ExpirationDate time.Time `json:"expiration_date"`
	RetiredAt      time.Time `json:"retired_at"`
	Reason         string    `json:"reason"`
}

type Archiver interface {
	Archive(ctx context.Context, rec Record) error
}

// Nop discards every record. Used when no bucket is configured.
type Nop struct{}

func (Nop) Archive(context.Context, Record) error { return nil }
