package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// codeAlphabet gives 36^8 (~2.8e12) combinations at CodeLength 8.
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// CodeLength is the fixed length of every redemption code.
	CodeLength = 8

	// qrTokenBytes yields 256 bits of entropy per QR token.
	qrTokenBytes = 32

	// maxCodeAttempts bounds the per-slot collision retry loop during bulk
	// generation. At this keyspace size exhaustion is nearly impossible, but
	// it must fail loudly rather than spin.
	maxCodeAttempts = 100
)

// newCode draws one candidate code from a cryptographically strong source.
// Codes must not be guessable: they are bearer claims on currency.
func newCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("draw code character: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// newQRToken mints an opaque 256-bit hex token. The scannable image embeds
// only this token; value and expiry are looked up server-side at redemption.
func newQRToken() (string, error) {
	buf := make([]byte, qrTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("draw qr token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
