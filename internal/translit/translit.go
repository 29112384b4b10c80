// Package translit converts Serbian Cyrillic text to the Latin script.
package translit

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var lower = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'ђ': "đ", 'е': "e", 'ж': "ž", 'з': "z", 'и': "i",
	'ј': "j", 'к': "k", 'л': "l", 'љ': "lj", 'м': "m", 'н': "n", 'њ': "nj", 'о': "o", 'п': "p", 'р': "r",
	'с': "s", 'т': "t", 'ћ': "ć", 'ч': "č", 'у': "u", 'ф': "f", 'х': "h", 'ц': "c", 'џ': "dž", 'ш': "š",
}

var table = func() map[rune]string {
	out := make(map[rune]string, len(lower)*2)
	for k, v := range lower {
		out[k] = v
		out[unicode.ToUpper(k)] = strings.ToUpper(v)
	}
	return out
}()

// Latin transliterates every Serbian Cyrillic letter in s. Uppercase letters
// map to fully uppercase Latin, so Љ becomes LJ and Џ becomes DŽ. Anything
// else is copied unchanged.
func Latin(s string) string {
	s = norm.NFC.String(s)

	var out strings.Builder
	out.Grow(len(s))
	for _, r := range s {
		if latin, ok := table[r]; ok {
			out.WriteString(latin)
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}
