// Package common contains shared constants and sentinel errors used across
// the referral service components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound internal calls.
const AccessTokenHeaderName = "access_token"

// ReferralCodeBytes is the amount of random bytes behind every referral code.
// Codes are hex encoded, so the resulting string is twice as long.
const ReferralCodeBytes = 16

// MaxReferralCodeLength is the widest code the storage column holds. Longer
// values cannot name an existing code.
const MaxReferralCodeLength = 200
