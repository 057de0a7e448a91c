package reconstruct

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var escapeReplacer = strings.NewReplacer(`\n`, "\n", `\t`, "\t")

// normalizeText expands literal escape sequences left in backend text and
// applies NFC so composed and decomposed input render identically.
func normalizeText(s string) string {
	return norm.NFC.String(escapeReplacer.Replace(s))
}
