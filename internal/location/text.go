package location

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	spaceRe = regexp.MustCompile(`\s+`)
	roadRe  = regexp.MustCompile(`כביש\s*(?:מס(?:פר)?['.]?\s*)?(?:ה-?\s*)?(\d{1,4})\b`)
	// routeRe catches "road 6" and "route 90" in mixed-language items.
	routeRe = regexp.MustCompile(`(?i)\b(?:road|route|highway)\s+(\d{1,4})\b`)
)

// cue opens the location phrase of a sentence. drop is the leading part
// removed from the phrase.
type cue struct {
	word string
	drop string
}

var cues = []cue{
	{"בצומת", "ב"},
	{"במחלף", "ב"},
	{"בכביש", "ב"},
	{"ברחוב", "ב"},
	{"בשדרות", "ב"},
	{"בכיכר", "ב"},
	{"בשכונת", "ב"},
	{"בעיר", "בעיר"},
	{"בכניסה ל", "בכניסה ל"},
	{"ביציאה מ", "ביציאה מ"},
	{"בסמוך ל", "בסמוך ל"},
	{"סמוך ל", "סמוך ל"},
	{"ליד", "ליד"},
	{"באזור", "באזור"},
	{"בקרבת", "בקרבת"},
	{"בין", ""},
}

// maxPhraseWords caps the extracted phrase.
const maxPhraseWords = 8

// junctionWords mark a junction mention.
var junctionWords = []string{"צומת", "מחלף", "כיכר"}

// Normalize strips niqqud and cantillation, folds Hebrew punctuation to
// ASCII and collapses whitespace.
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	out = strings.NewReplacer(
		"״", `"`,
		"׳", "'",
		"־", "-",
		"–", "-",
		"’", "'",
		"“", `"`,
		"”", `"`,
	).Replace(out)
	return strings.TrimSpace(spaceRe.ReplaceAllString(out, " "))
}

// ExtractRoadNumber finds a road number ("כביש 6", "כביש מס' 90").
func ExtractRoadNumber(text string) (int, bool) {
	text = Normalize(text)
	m := roadRe.FindStringSubmatch(text)
	if m == nil {
		m = routeRe.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// MentionsJunction reports whether text names a junction or interchange.
func MentionsJunction(text string) bool {
	for _, w := range junctionWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// ExtractLocationText returns the location phrase of text: from the
// earliest cue word to the end of its sentence. A short segment after the
// first comma is kept as the locality ("ברחוב הרצל, חולון"). Text with no
// cue yields "".
func ExtractLocationText(text string) string {
	text = Normalize(text)

	start := -1
	var best cue
	for _, c := range cues {
		i := indexWord(text, c.word)
		if i < 0 {
			continue
		}
		if start < 0 || i < start || (i == start && len(c.word) > len(best.word)) {
			start, best = i, c
		}
	}
	if start < 0 {
		return ""
	}

	phrase := text[start:]
	if end := strings.IndexAny(phrase, ".;\n!?"); end >= 0 {
		phrase = phrase[:end]
	}
	phrase = strings.TrimPrefix(phrase, best.drop)

	parts := strings.Split(phrase, ",")
	phrase = parts[0]
	if len(parts) > 1 {
		if next := strings.Fields(parts[1]); len(next) > 0 && len(next) <= 2 {
			phrase += ", " + strings.Join(next, " ")
		}
	}

	words := strings.Fields(phrase)
	if len(words) > maxPhraseWords {
		words = words[:maxPhraseWords]
	}
	return strings.Trim(strings.Join(words, " "), " ,-:\"'")
}

// indexWord finds w starting a word of text. Cues ending in a prefix
// letter (ל, מ) may run into the next word; others must end a word.
func indexWord(text, w string) int {
	whole := !strings.HasSuffix(w, "ל") && !strings.HasSuffix(w, "מ")
	off := 0
	for {
		i := strings.Index(text[off:], w)
		if i < 0 {
			return -1
		}
		pos := off + i
		end := pos + len(w)
		startOK := pos == 0 || strings.ContainsRune(" (,\"", rune(text[pos-1]))
		endOK := !whole || end == len(text) || strings.ContainsRune(" ,.:;)\"", rune(text[end]))
		if startOK && endOK {
			return pos
		}
		off = end
	}
}
