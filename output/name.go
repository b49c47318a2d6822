package output

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	// Suffix closes every generated file name.
	Suffix = "dreamtime"

	maxNameLength = 30
)

// latinLetters maps Latin-1 Supplement and Latin Extended-A letters to
// their basic Latin spelling.
var latinLetters = func() map[rune]string {
	groups := map[string]string{
		"ÀÁÂÃÄÅĀĂĄ":  "A",
		"àáâãäåāăą":  "a",
		"ÇĆĈĊČ":      "C",
		"çćĉċč":      "c",
		"ÐĎĐ":        "D",
		"ðďđ":        "d",
		"ÈÉÊËĒĔĖĘĚ":  "E",
		"èéêëēĕėęě":  "e",
		"ĜĞĠĢ":       "G",
		"ĝğġģ":       "g",
		"ĤĦ":         "H",
		"ĥħ":         "h",
		"ÌÍÎÏĨĪĬĮİ":  "I",
		"ìíîïĩīĭįı":  "i",
		"Ĵ":          "J",
		"ĵ":          "j",
		"Ķ":          "K",
		"ķĸ":         "k",
		"ĹĻĽĿŁ":      "L",
		"ĺļľŀł":      "l",
		"ÑŃŅŇŊ":      "N",
		"ñńņňŋ":      "n",
		"ÒÓÔÕÖØŌŎŐ":  "O",
		"òóôõöøōŏő":  "o",
		"ŔŖŘ":        "R",
		"ŕŗř":        "r",
		"ŚŜŞŠ":       "S",
		"śŝşšſ":      "s",
		"ŢŤŦ":        "T",
		"ţťŧ":        "t",
		"ÙÚÛÜŨŪŬŮŰŲ": "U",
		"ùúûüũūŭůűų": "u",
		"Ŵ":          "W",
		"ŵ":          "w",
		"ÝŶŸ":        "Y",
		"ýÿŷ":        "y",
		"ŹŻŽ":        "Z",
		"źżž":        "z",
		"Æ":          "Ae",
		"æ":          "ae",
		"Þ":          "Th",
		"þ":          "th",
		"ß":          "ss",
		"Ĳ":          "IJ",
		"ĳ":          "ij",
		"Œ":          "Oe",
		"œ":          "oe",
		"ŉ":          "'n",
	}
	m := make(map[rune]string)
	for letters, base := range groups {
		for _, r := range letters {
			m[r] = base
		}
	}
	return m
}()

// combiningMarks are the diacritical mark blocks dropped from names. Marks
// of other scripts are part of the text and stay.
var combiningMarks = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0300, Hi: 0x036f, Stride: 1},
		{Lo: 0x20d0, Hi: 0x20ff, Stride: 1},
		{Lo: 0xfe20, Hi: 0xfe2f, Stride: 1},
	},
}

// FileName builds "<name>-<id>-<unix>-dreamtime.png" from the source photo
// name. The name loses its diacritics and is cut to 30 runes.
func FileName(sourceName, id string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%d-%s.png", normalizeName(sourceName), id, now.Unix(), Suffix)
}

func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('_')
		case latinLetters[r] != "":
			b.WriteString(latinLetters[r])
		default:
			b.WriteRune(r)
		}
	}

	clean, _, err := transform.String(runes.Remove(runes.In(combiningMarks)), b.String())
	if err != nil {
		clean = b.String()
	}

	if r := []rune(clean); len(r) > maxNameLength {
		clean = string(r[:maxNameLength])
	}
	return clean
}
