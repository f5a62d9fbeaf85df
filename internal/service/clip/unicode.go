package clip

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// EscapeUnicode encodes every UTF-16 code unit of s as \uXXXX. The result
// is plain ASCII and survives paths, query strings and the inline parameter
// syntax.
func EscapeUnicode(s string) string {
	units := utf16.Encode([]rune(s))
	var b strings.Builder
	b.Grow(len(units) * 6)
	for _, u := range units {
		fmt.Fprintf(&b, "\\u%04x", u)
	}
	return b.String()
}

// UnescapeUnicode decodes \uXXXX sequences, joining surrogate pairs. Text
// outside escape sequences is kept as is, as are malformed sequences.
func UnescapeUnicode(s string) string {
	if !strings.Contains(s, `\u`) {
		return s
	}
	var (
		b     strings.Builder
		units []uint16
	)
	flush := func() {
		if len(units) > 0 {
			b.WriteString(string(utf16.Decode(units)))
			units = units[:0]
		}
	}
	for i := 0; i < len(s); {
		if i+6 <= len(s) && s[i] == '\\' && s[i+1] == 'u' {
			if v, err := strconv.ParseUint(s[i+2:i+6], 16, 16); err == nil {
				units = append(units, uint16(v))
				i += 6
				continue
			}
		}
		flush()
		b.WriteByte(s[i])
		i++
	}
	flush()
	return b.String()
}
