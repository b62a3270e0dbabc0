package aiscore

import (
	"regexp"
	"strings"
)

var codeSignals = []*regexp.Regexp{
	regexp.MustCompile(`\bfunction\s*\w*\s*\([^)]*\)\s*\{`),
	regexp.MustCompile(`\([^)]*\)\s*=>`),
	regexp.MustCompile(`\b(?:const|let|var)\s+\w+\s*=`),
	regexp.MustCompile(`\bdef\s+\w+\s*\([^)]*\)\s*:`),
	regexp.MustCompile(`\b(?:for|while|if)\s*\([^)]*\)\s*\{`),
	regexp.MustCompile(`#include\s*<`),
	regexp.MustCompile(`\breturn\s+[^;\n]+;`),
	regexp.MustCompile(`<(?:script|div|span|html|body)\b[^>]*>`),
}

// LooksLikeCode guesses whether text contains source code. It is a
// display filter only: two or more signals, or a fenced block, are
// needed for a positive answer.
func LooksLikeCode(text string) bool {
	if strings.Contains(text, "```") {
		return true
	}
	hits := 0
	for _, re := range codeSignals {
		if re.MatchString(text) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}
