// Package template materializes container launch specifications from
// configuration documents containing {token} placeholders.
package template

import "strings"

// Render replaces every {key} span whose key is present in vars with the
// matching value. Matching is exact and case-sensitive. Unknown spans and an
// unterminated '{' are kept verbatim, and substituted values are never
// scanned again.
func Render(tmpl string, vars map[string]string) string {
	parts := strings.Split(tmpl, "{")

	var b strings.Builder
	b.Grow(len(tmpl))
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		if end := strings.IndexByte(part, '}'); end >= 0 {
			if val, ok := vars[part[:end]]; ok {
				b.WriteString(val)
				b.WriteString(part[end+1:])
				continue
			}
		}
		b.WriteByte('{')
		b.WriteString(part)
	}
	return b.String()
}
