package cache

import (
	"strconv"
	"unicode/utf16"
)

// Fingerprint returns the cache key for a source text.
//
// It is the classic 31-multiplier string hash over UTF-16 code units, wrapped
// to 32 bits and rendered as "h<signed int>". It is fast and order-sensitive
// but NOT collision-free: two different texts can share a fingerprint, in
// which case Lookup may return the translation of the other text. That risk is
// accepted in exchange for short keys and cheap hashing. A collision can only
// produce a wrong cached string; it never touches Task state.
//
// Keys must stay stable across releases because the cache record outlives any
// single process, so the hash must not be changed casually.
func Fingerprint(text string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(text)) {
		h = h*31 + int32(c)
	}
	return "h" + strconv.FormatInt(int64(h), 10)
}
