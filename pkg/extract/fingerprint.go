package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/wattwise/wattwise/pkg/types"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	certificateRe = regexp.MustCompile(`(?i)PUCT\s+Certificate\s+(?:#|No\.?\s*)?(\d+)`)
)

// Fingerprint derives the identity of a disclosure from its text: a sha256
// of the whitespace-normalized content plus the provider certificate number
// when one is printed. Reformatted copies of the same disclosure hash the
// same; any wording or rate change hashes differently.
func Fingerprint(eflText string) types.PlanFingerprint {
	normalized := whitespaceRe.ReplaceAllString(strings.TrimSpace(eflText), " ")
	sum := sha256.Sum256([]byte(normalized))

	fp := types.PlanFingerprint{ContentHash: hex.EncodeToString(sum[:])}
	if m := certificateRe.FindStringSubmatch(eflText); m != nil {
		fp.Certificate = m[1]
	}
	return fp
}
