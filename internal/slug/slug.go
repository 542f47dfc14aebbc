// Package slug derives URL-safe, filesystem-safe identifiers from
// arbitrary display strings.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slugify folds s down to a run of lowercase ASCII letters, digits, and
// single hyphens: Unicode is NFKD-decomposed first so accented letters
// reduce to their plain ASCII base (dropping the combining marks that
// decomposition leaves behind), then every maximal run of characters
// that isn't a letter or digit becomes exactly one hyphen, with no
// hyphen surviving at either end.
// "Ursula K. Le Guin-The Left Hand of Darkness" -> "ursula-k-le-guin-the-left-hand-of-darkness".
// Slugify is idempotent: Slugify(Slugify(x)) == Slugify(x), since its
// own output already satisfies the shape it produces.
func Slugify(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	needHyphen := false
	for _, r := range norm.NFKD.String(s) {
		if r > unicode.MaxASCII {
			// Combining marks and non-ASCII letters/digits are dropped;
			// anything else (e.g. an em dash) separates like ASCII
			// punctuation does.
			if !unicode.IsMark(r) && !unicode.IsLetter(r) && !unicode.IsDigit(r) && out.Len() > 0 {
				needHyphen = true
			}
			continue
		}
		if lower := unicode.ToLower(r); isSlugRune(lower) {
			if needHyphen && out.Len() > 0 {
				out.WriteByte('-')
			}
			needHyphen = false
			out.WriteRune(lower)
		} else if out.Len() > 0 {
			needHyphen = true
		}
	}

	return out.String()
}

func isSlugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// BookID derives a Book's stable id from its author and folder-name
// title, per the rule that the id must stay stable against tag edits.
func BookID(author, folderTitle string) string {
	return Slugify(author + "-" + folderTitle)
}
