package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// CollapseWhitespace trims a cell's text and folds any run of
// whitespace (including non-breaking spaces) into a single space.
func CollapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.Trim(s, " ")
}
