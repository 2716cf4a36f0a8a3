package wbi

import "strings"

const upperHex = "0123456789ABCDEF"

// EncodeURIComponent escapes s with JS encodeURIComponent rules: every
// UTF-8 byte outside A-Z a-z 0-9 - _ . ! ~ * ' ( ) becomes %XX, so a
// space is %20.
func EncodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

var valueStripper = strings.NewReplacer("!", "", "'", "", "(", "", ")", "", "*", "")

// cleanValue drops the characters the API filters out of values
func cleanValue(s string) string {
	return valueStripper.Replace(s)
}
