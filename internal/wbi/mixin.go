package wbi

import (
	"path"
	"strings"
	"unicode/utf16"
)

// mixinKeyTable permutes imgKey+subKey into the salt
var mixinKeyTable = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// MixinKeyLength is the length of a salt built from full-size keys
const MixinKeyLength = 32

// MixinKey builds the salt from the two WBI keys. Positions past the end
// of imgKey+subKey are skipped, matching a JS join over undefined.
// Characters are UTF-16 code units.
func MixinKey(imgKey, subKey string) string {
	orig := utf16.Encode([]rune(imgKey + subKey))

	picked := make([]uint16, 0, MixinKeyLength)
	for _, n := range mixinKeyTable {
		if len(picked) == MixinKeyLength {
			break
		}
		if n < len(orig) {
			picked = append(picked, orig[n])
		}
	}
	return string(utf16.Decode(picked))
}

// KeyFromURL extracts a WBI key from the img_url or sub_url of a
// wbi_img payload: https://i0.hdslb.com/bfs/wbi/<key>.png -> <key>
func KeyFromURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	base := path.Base(raw)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
