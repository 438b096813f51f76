package auth

import (
	"crypto/rand"
	"math/big"
)

// referral codes are short, unambiguous, and case-stable: no 0/O or 1/I.
const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const referralCodeLength = 8

// NewReferralCode generates a random referral code.
func NewReferralCode() (string, error) {
	code := make([]byte, referralCodeLength)
	max := big.NewInt(int64(len(referralAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = referralAlphabet[n.Int64()]
	}
	return string(code), nil
}
