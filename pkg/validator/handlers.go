package validator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"digital.vasic.prompthunter/pkg/aiscore"
	"digital.vasic.prompthunter/pkg/content"
	"digital.vasic.prompthunter/pkg/logging"
	"digital.vasic.prompthunter/pkg/rotation"
)

const (
	// MysteriousMessage is returned by mysterious validators
	// whatever the outcome.
	MysteriousMessage = "The echoes have been recorded."
	// MysteriousHitScore and MysteriousMissScore are the scores of
	// a mysterious validator.
	MysteriousHitScore  = 9999
	MysteriousMissScore = 1

	// PatternTimeout bounds a single regex_count evaluation.
	PatternTimeout = 250 * time.Millisecond
)

func (d *Dispatcher) dispatch(
	ctx context.Context, phase *content.Phase, raw string, extras Extras,
) Result {
	text := strings.TrimSpace(raw)

	switch v := phase.Validator.(type) {
	case content.Equals:
		return verdict(text == v.Value, "Correct", "Not equal")
	case content.NotEquals:
		return verdict(text != v.Value, "Correct", "Should not equal")
	case content.EqualsNumber:
		return equalsNumber(v, text)
	case content.TextContains:
		return verdict(strings.Contains(text, v.Value), "Correct", "Missing text")
	case content.RegexCount:
		return regexCount(v, text)
	case content.ContainsAny:
		return verdict(containsAny(text, v.Patterns, false), "Matched", "No patterns found")
	case content.KeywordAny:
		return verdict(containsAny(text, v.Keywords, true), "Keyword matched", "No keyword")
	case content.CSVCount:
		return csvCount(v, text)
	case content.SongGuess:
		titleOK := containsAny(extras.SongTitle, v.TitleKeywords, true)
		artistOK := containsAny(extras.SongArtist, v.ArtistKeywords, true)
		return verdict(titleOK && artistOK, "Correct song", "Try again")
	case content.ManualReview:
		if v.Note != "" {
			return Result{Message: v.Note}
		}
		return Result{Message: "Manual review required"}
	case content.JSEval:
		return d.jsEval(ctx, v, text)
	case content.Keywords:
		return keywords(v, text)
	case content.AIScore:
		return d.aiScore(ctx, v, phase, text, extras)
	case content.HealExactCopy:
		return d.healExactCopy(ctx, phase, text, extras)
	case content.Mysterious:
		return mysterious(v, text)
	case content.Unknown:
		d.logger.Warn("unknown validator type",
			logging.IntField("phase", phase.Phase),
			logging.StringField("type", v.Type),
		)
		return Result{Message: MsgUnknownValidator}
	default:
		return Result{Message: MsgUnknownValidator}
	}
}

func verdict(ok bool, pass, fail string) Result {
	if ok {
		return Result{OK: true, Message: pass}
	}
	return Result{Message: fail}
}

// parseNumber accepts decimal and exponent forms. Blank input and
// non-finite values are not numbers.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func equalsNumber(v content.EqualsNumber, text string) Result {
	if !v.List {
		if len(v.Values) == 0 {
			return Result{Message: "Wrong number"}
		}
		n, ok := parseNumber(text)
		if !ok {
			return Result{Message: "Not a number"}
		}
		return verdict(n == v.Values[0], "Correct", "Wrong number")
	}

	parts := strings.Split(text, ",")
	if len(parts) != len(v.Values) {
		return Result{Message: fmt.Sprintf("Expected %d numbers, got %d", len(v.Values), len(parts))}
	}
	match := true
	for i, part := range parts {
		n, ok := parseNumber(part)
		if !ok {
			return Result{Message: "Not a number"}
		}
		if n != v.Values[i] {
			match = false
		}
	}
	return verdict(match, "Correct", "Wrong numbers")
}

// CompilePattern compiles an ECMAScript-style pattern for
// regex_count.
func CompilePattern(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = PatternTimeout
	return re, nil
}

// CountMatches counts the non-overlapping matches of re in text,
// including empty ones.
func CountMatches(re *regexp2.Regexp, text string) (int, error) {
	count := 0
	m, err := re.FindStringMatch(text)
	for m != nil && err == nil {
		count++
		m, err = re.FindNextMatch(m)
	}
	return count, err
}

func regexCount(v content.RegexCount, text string) Result {
	re, err := CompilePattern(v.Pattern)
	if err != nil {
		return Result{Message: "Invalid pattern"}
	}
	count, err := CountMatches(re, text)
	if err != nil {
		return Result{Message: "Pattern evaluation timed out"}
	}
	return Result{OK: count == v.Count, Message: fmt.Sprintf("Found %d/%d", count, v.Count)}
}

func containsAny(text string, needles []string, fold bool) bool {
	if fold {
		text = strings.ToLower(text)
	}
	for _, n := range needles {
		if fold {
			n = strings.ToLower(n)
		}
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func csvCount(v content.CSVCount, text string) Result {
	items := 0
	for _, part := range strings.Split(text, ",") {
		if strings.TrimSpace(part) != "" {
			items++
		}
	}
	return Result{OK: items == v.Count, Message: fmt.Sprintf("Got %d/%d", items, v.Count)}
}

func (d *Dispatcher) jsEval(ctx context.Context, v content.JSEval, text string) Result {
	if d.sandbox == nil {
		return Result{Message: "Sandbox unavailable"}
	}
	start := time.Now()
	out := d.sandbox.Run(ctx, v.Code, text)
	d.metrics.RecordSandboxRun(string(out.Reason), time.Since(start))

	if out.OK {
		return Result{OK: true, Message: "Passed"}
	}
	if out.Error != "" {
		return Result{Message: out.Error}
	}
	return Result{Message: "Failed"}
}

func keywords(v content.Keywords, text string) Result {
	lower := strings.ToLower(text)
	var missing, found []string
	for _, k := range v.Required {
		if !strings.Contains(lower, strings.ToLower(k)) {
			missing = append(missing, k)
		}
	}
	for _, k := range v.Optional {
		if strings.Contains(lower, strings.ToLower(k)) {
			found = append(found, k)
		}
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "Missing required keywords: "+strings.Join(missing, ", "))
	} else {
		parts = append(parts, "All required keywords present")
	}
	if len(found) > 0 {
		parts = append(parts, "Optional keywords found: "+strings.Join(found, ", "))
	}

	score := 0
	if len(missing) == 0 {
		score = 100
	}
	return Result{
		OK:      len(missing) == 0,
		Message: strings.Join(parts, "; "),
		Score:   intPtr(score),
	}
}

func (d *Dispatcher) aiScore(
	ctx context.Context, v content.AIScore, phase *content.Phase, text string, extras Extras,
) Result {
	if text == "" {
		return Result{Message: "Empty answer", Score: intPtr(0)}
	}
	scheme, err := aiscore.ParseScheme(v.Scheme)
	if err != nil {
		return Result{Message: fmt.Sprintf("Invalid scoring scheme %q", v.Scheme), Score: intPtr(0)}
	}
	if d.scorer == nil {
		return Result{Message: "AI scoring unavailable", Score: intPtr(0)}
	}

	res, err := d.scorer.Score(ctx, aiscore.ScoreRequest{
		APIKey:     extras.APIKey,
		Scheme:     scheme,
		Guidance:   v.Guidance,
		Answer:     text,
		Role:       extras.Role,
		Phase:      phase,
		BugCatalog: v.BugCatalog,
	})
	if err != nil {
		if errors.Is(err, aiscore.ErrInvalidScheme) {
			return Result{Message: fmt.Sprintf("Invalid scoring scheme %q", v.Scheme), Score: intPtr(0)}
		}
		d.logger.Warn("ai scoring failed",
			logging.IntField("phase", phase.Phase),
			logging.StringField("kind", string(aiscore.KindOf(err))),
			logging.ErrorField(err),
		)
		return Result{Message: aiscore.UserMessage(err), Score: intPtr(0)}
	}

	// Partial credit is shown but only a full score passes.
	return Result{
		OK:      res.Score == 100,
		Message: fmt.Sprintf("Score: %d/100", res.Score),
		Score:   intPtr(res.Score),
	}
}

func (d *Dispatcher) healExactCopy(
	ctx context.Context, phase *content.Phase, text string, extras Extras,
) Result {
	if d.rotation == nil {
		return Result{Message: "Sentence rotation unavailable"}
	}
	res := d.rotation.ValidateCopy(ctx, rotation.KeyFor(phase), phase, text, extras.APIKey)

	out := Result{
		OK:                 res.OK,
		Score:              intPtr(res.Score),
		TargetSentence:     res.Target,
		SentencesRemaining: intPtr(res.Remaining),
		ErrorCount:         intPtr(res.ErrorCount),
	}
	if res.OK {
		out.Message = "Perfect copy"
	} else if res.ErrorCount == 1 {
		out.Message = "1 character differs"
	} else {
		out.Message = fmt.Sprintf("%d characters differ", res.ErrorCount)
	}
	return out
}

func mysterious(v content.Mysterious, text string) Result {
	if containsAny(text, v.Keywords, true) {
		return Result{OK: true, Message: MysteriousMessage, Score: intPtr(MysteriousHitScore)}
	}
	return Result{Message: MysteriousMessage, Score: intPtr(MysteriousMissScore)}
}
