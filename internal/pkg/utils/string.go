package utils

import (
	"crypto/rand"
	"encoding/binary"
)

const randStrAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandStr generates a cryptographically secure random alphanumeric string of length n.
func RandStr(n int) string {
	if n <= 0 {
		return ""
	}

	b := make([]byte, n)
	for i := range b {
		b[i] = randStrAlphabet[cryptoRandIntn(len(randStrAlphabet))]
	}
	return string(b)
}

func cryptoRandIntn(max int) int {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return int(binary.LittleEndian.Uint64(buf[:]) % uint64(max))
}

// Truncate cuts content to at most maxLen bytes without splitting a UTF-8
// sequence, and reports whether anything was cut.
func Truncate(content string, maxLen int) (string, bool) {
	if maxLen < 0 || len(content) <= maxLen {
		return content, false
	}
	cut := maxLen
	for cut > 0 && cut < len(content) && content[cut]&0xC0 == 0x80 {
		cut--
	}
	return content[:cut], true
}
