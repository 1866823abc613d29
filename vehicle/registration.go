package vehicle

import (
	"strings"
	"unicode"

	"github.com/warp/compliance-engine/lifecycle"
)

// NormalizeRegistration canonicalizes a registration number so that
// "cg 04 aa 1234", "CG-04-AA-1234" and "CG04AA1234" key the same chain.
// Spaces, dashes, dots and slashes are dropped and letters upper-cased.
func NormalizeRegistration(raw string) lifecycle.EntityKey {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r), r == '-', r == '.', r == '/':
			continue
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return lifecycle.EntityKey(b.String())
}
