package models

import "time"

// ReferralCode belongs to exactly one user. Expired rows are kept until the
// owner replaces or deletes them.
type ReferralCode struct {
	UserID         string
	Code           string
	ExpirationDate time.Time
	CreatedAt      time.Time
}

// ActiveAt reports whether the code may still be used at instant now.
// The expiration instant itself is already expired.
func (c *ReferralCode) ActiveAt(now time.Time) bool {
	return now.Before(c.ExpirationDate)
}
