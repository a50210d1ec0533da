// Package utils parses the numeric path and query parameters the handlers
// accept.
package utils

import "strconv"

// ClampedInt parses s as a decimal int and clamps it to [lo, hi]. A blank or
// malformed s yields def, which is clamped as well.
//
//	utils.ClampedInt("500", 10, 1, 50) // 50
//	utils.ClampedInt("", 10, 1, 50)    // 10
//	utils.ClampedInt("x", 10, 1, 50)   // 10
func ClampedInt(s string, def, lo, hi int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		n = def
	}
	return min(max(n, lo), hi)
}

// ParseID parses a positive decimal resource id. Signs, whitespace, zero and
// values that overflow uint report ok=false.
func ParseID(s string) (id uint, ok bool) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, strconv.IntSize)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
