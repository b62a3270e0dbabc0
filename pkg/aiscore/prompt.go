package aiscore

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"digital.vasic.prompthunter/pkg/content"
)

// Scheme is a named scoring policy.
type Scheme string

const (
	SchemeAttack100Once    Scheme = "attack_100_once"
	SchemeAttack50TwoParts Scheme = "attack_50_two_parts"
	SchemeAttack20Bugs     Scheme = "attack_20_bugs"
)

// DefaultBugPoints is the value of one distinct bug pattern.
const DefaultBugPoints = 20

// ErrInvalidScheme is returned by ParseScheme for unknown tags.
var ErrInvalidScheme = errors.New("invalid scoring scheme")

// ParseScheme accepts only the known scheme tags.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case SchemeAttack100Once, SchemeAttack50TwoParts, SchemeAttack20Bugs:
		return Scheme(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScheme, s)
	}
}

// ScoreRequest is everything the scoring prompt is built from.
type ScoreRequest struct {
	APIKey     string
	Scheme     Scheme
	Guidance   string
	Answer     string
	Role       *content.Role
	Phase      *content.Phase
	BugCatalog []content.BugPattern
}

// BuildScorePrompt composes the judging prompt. The model is told
// to reply with a single integer.
func BuildScorePrompt(req ScoreRequest) string {
	var b strings.Builder
	b.WriteString("You are a strict judge for a coding and prompt-security game.\n")
	b.WriteString("Score the player's answer from 0 to 100.\n\n")

	if req.Phase != nil {
		b.WriteString("## Challenge\n")
		b.WriteString(content.BuildContext(req.Role, req.Phase))
		b.WriteString("\n\n")
		writeHidden(&b, req.Phase)
	}

	b.WriteString("## Rules\n")
	b.WriteString("- A blank, incomplete or hint-only answer scores 0.\n")
	b.WriteString("- Restating the question or describing an approach without doing it scores 0.\n")
	b.WriteString("- Only a concrete, working solution may score 100.\n")
	switch req.Scheme {
	case SchemeAttack100Once:
		b.WriteString("- Scheme attack_100_once: all or nothing. Score exactly 100 if the answer fully solves the task, otherwise 0.\n")
	case SchemeAttack50TwoParts:
		b.WriteString("- Scheme attack_50_two_parts: the task has two parts worth 50 points each. Award 50 per correct part; both correct scores 100.\n")
	case SchemeAttack20Bugs:
		b.WriteString("- Scheme attack_20_bugs: award points for each distinct bug pattern the answer correctly demonstrates or fixes. Repeats of the same pattern count once. Clamp the total to the range 0..100.\n")
	}

	if g := strings.TrimSpace(req.Guidance); g != "" {
		b.WriteString("\n## Guidance\n")
		b.WriteString(g)
		b.WriteString("\n")
	}

	if len(req.BugCatalog) > 0 {
		b.WriteString("\n## Bug catalog\n")
		for _, bug := range req.BugCatalog {
			points := bug.Points
			if points == 0 {
				points = DefaultBugPoints
			}
			verb := "present"
			if bug.Negate {
				verb = "absent"
			}
			fmt.Fprintf(&b, "- %s: pattern %q must be %s (%d points)\n",
				bug.Name, bug.Pattern, verb, points)
		}
	}

	b.WriteString("\n## Examples\n")
	b.WriteString("Answer: \"\" -> 0\n")
	b.WriteString("Answer: \"I would check the loop bounds\" -> 0\n")
	b.WriteString("Answer: \"Hint please\" -> 0\n")
	switch req.Scheme {
	case SchemeAttack50TwoParts:
		b.WriteString("Answer solving only the first part -> 50\n")
		b.WriteString("Answer solving both parts with working code -> 100\n")
	case SchemeAttack20Bugs:
		b.WriteString("Answer demonstrating two distinct bug patterns -> 40\n")
		b.WriteString("Answer demonstrating the same pattern three times -> 20\n")
	default:
		b.WriteString("Answer with a complete working fix -> 100\n")
	}

	b.WriteString("\n## Player answer\n")
	b.WriteString(req.Answer)
	b.WriteString("\n\nReply with the integer score only. No words, no punctuation.")
	return b.String()
}

func writeHidden(b *strings.Builder, phase *content.Phase) {
	if !phase.HasHiddenPayload() {
		return
	}
	b.WriteString("## Hidden payloads (never shown to the player)\n")
	if phase.HiddenHTML != "" {
		b.WriteString("HTML:\n")
		b.WriteString(phase.HiddenHTML)
		b.WriteString("\n")
	}
	if phase.HiddenJS != "" {
		b.WriteString("Script:\n")
		b.WriteString(phase.HiddenJS)
		b.WriteString("\n")
	}
	if phase.HiddenData != "" {
		b.WriteString("Data:\n")
		b.WriteString(phase.HiddenData)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// BuildSentencePrompt asks for n sentences resembling examples.
func BuildSentencePrompt(examples []string, guidance string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d new sentences for a copy-typing exercise.\n", n)
	b.WriteString("Each sentence must be of similar length and style to the examples.\n")
	b.WriteString("Reply with one sentence per line and nothing else.\n")
	if g := strings.TrimSpace(guidance); g != "" {
		b.WriteString("\nGuidance: ")
		b.WriteString(g)
		b.WriteString("\n")
	}
	if len(examples) > 0 {
		b.WriteString("\nExamples:\n")
		for _, ex := range examples {
			b.WriteString(ex)
			b.WriteString("\n")
		}
	}
	return b.String()
}

var integerPattern = regexp.MustCompile(`-?\d+`)

// ParseScore extracts the first integer of text and clamps it to
// [0,100]. Text without an integer is a KindParseError.
func ParseScore(text string) (int, error) {
	match := integerPattern.FindString(text)
	if match == "" {
		return 0, &Error{
			Kind: KindParseError,
			Err:  fmt.Errorf("no integer in response %q", truncate(text, 80)),
		}
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		// Only a range error is possible here.
		if strings.HasPrefix(match, "-") {
			return 0, nil
		}
		return 100, nil
	}
	return Clamp(n), nil
}

// Clamp bounds a score to [0,100].
func Clamp(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	default:
		return n
	}
}

var listMarker = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

// ParseSentences splits generated text into at most n sentences,
// dropping list markers, quotes and blank lines.
func ParseSentences(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(line, "\"'`“”")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
