package activation

import (
	"crypto/rand"
	"strings"
)

// Алфавит без визуально похожих символов (0/O, 1/I/L) — код вводится руками.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	codeGroups   = 3
	codeGroupLen = 4
)

// newCode — человеко-вводимый код вида XXXX-XXXX-XXXX.
func newCode() (string, error) {
	buf := make([]byte, codeGroups*codeGroupLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, c := range buf {
		if i > 0 && i%codeGroupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
