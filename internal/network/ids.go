package network

import (
	"strconv"
	"strings"

	"github.com/nvandessel/solirona/internal/constants"
)

// FormatID returns the generated identifier for index k ("n<k>").
func FormatID(k int) string {
	return constants.NodeIDPrefix + strconv.Itoa(k)
}

// ParseIndex extracts k from a generated identifier "n<k>". ok is false for
// caller-chosen ids that do not follow the pattern.
func ParseIndex(id string) (k int, ok bool) {
	rest, found := strings.CutPrefix(id, constants.NodeIDPrefix)
	if !found || rest == "" {
		return 0, false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	k, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return k, true
}

// lessNatural orders generated ids by index, then any other ids
// lexicographically after them.
func lessNatural(a, b string) bool {
	ka, oka := ParseIndex(a)
	kb, okb := ParseIndex(b)
	switch {
	case oka && okb:
		if ka != kb {
			return ka < kb
		}
		return a < b
	case oka:
		return true
	case okb:
		return false
	default:
		return a < b
	}
}
