package services

import (
	"regexp"
	"strings"
)

var templateVar = regexp.MustCompile(`\{([^{}]+)\}`)

// RenderTemplate replaces {var} placeholders with vars. Placeholders without a
// value are removed and the result is trimmed.
func RenderTemplate(body string, vars map[string]string) string {
	out := templateVar.ReplaceAllStringFunc(body, func(m string) string {
		return vars[m[1:len(m)-1]]
	})
	return strings.TrimSpace(out)
}
