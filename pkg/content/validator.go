package content

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the discriminator tag of a validator.
type Kind string

const (
	KindEquals        Kind = "equals"
	KindNotEquals     Kind = "not_equals"
	KindEqualsNumber  Kind = "equals_number"
	KindTextContains  Kind = "text_contains"
	KindRegexCount    Kind = "regex_count"
	KindContainsAny   Kind = "contains_any"
	KindKeywordAny    Kind = "keyword_any"
	KindCSVCount      Kind = "csv_count"
	KindSongGuess     Kind = "song_guess"
	KindManualReview  Kind = "manual_review"
	KindJSEval        Kind = "js_eval"
	KindAIScore       Kind = "ai_score"
	KindHealExactCopy Kind = "heal_exact_copy"
	KindKeywords      Kind = "keywords"
	KindMysterious    Kind = "mysterious"
)

// Validator is the closed set of scoring strategies a phase may
// declare. Only types in this package implement it.
type Validator interface {
	Kind() Kind
	validator()
}

type (
	// Equals passes when the trimmed answer equals Value.
	Equals struct {
		Value string `json:"value"`
	}

	// NotEquals passes when the trimmed answer differs from Value.
	NotEquals struct {
		Value string `json:"value"`
	}

	// EqualsNumber compares one number, or a comma separated
	// list positionally when List is set.
	EqualsNumber struct {
		Values []float64
		List   bool
	}

	TextContains struct {
		Value string `json:"value"`
	}

	// RegexCount passes on exactly Count global matches.
	RegexCount struct {
		Pattern string `json:"pattern"`
		Count   int    `json:"count"`
	}

	ContainsAny struct {
		Patterns []string `json:"patterns"`
	}

	KeywordAny struct {
		Keywords []string `json:"keywords"`
	}

	CSVCount struct {
		Count int `json:"count"`
	}

	SongGuess struct {
		TitleKeywords  []string `json:"title_keywords"`
		ArtistKeywords []string `json:"artist_keywords"`
	}

	// ManualReview never passes automatically.
	ManualReview struct {
		Note string `json:"note,omitempty"`
	}

	JSEval struct {
		Code string `json:"code"`
	}

	// AIScore delegates judging to the generative model. Scheme
	// is kept verbatim so that bad content surfaces at
	// validation time.
	AIScore struct {
		Scheme     string       `json:"scheme"`
		Guidance   string       `json:"guidance"`
		BugCatalog []BugPattern `json:"bug_catalog,omitempty"`
	}

	HealExactCopy struct {
		Guidance string `json:"guidance"`
	}

	// Keywords requires every entry of Required; Optional hits
	// are only reported.
	Keywords struct {
		Required []string `json:"required"`
		Optional []string `json:"optional,omitempty"`
	}

	Mysterious struct {
		Keywords   []string `json:"keywords"`
		PromptMask string   `json:"prompt_mask,omitempty"`
		Hint       string   `json:"hint,omitempty"`
	}

	// Unknown carries the tag of a validator no variant matches.
	Unknown struct {
		Type string
	}
)

// BugPattern is one entry of an attack_20_bugs catalog.
type BugPattern struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Negate  bool   `json:"negate,omitempty"`
	Points  int    `json:"points,omitempty"`
}

func (Equals) Kind() Kind        { return KindEquals }
func (NotEquals) Kind() Kind     { return KindNotEquals }
func (EqualsNumber) Kind() Kind  { return KindEqualsNumber }
func (TextContains) Kind() Kind  { return KindTextContains }
func (RegexCount) Kind() Kind    { return KindRegexCount }
func (ContainsAny) Kind() Kind   { return KindContainsAny }
func (KeywordAny) Kind() Kind    { return KindKeywordAny }
func (CSVCount) Kind() Kind      { return KindCSVCount }
func (SongGuess) Kind() Kind     { return KindSongGuess }
func (ManualReview) Kind() Kind  { return KindManualReview }
func (JSEval) Kind() Kind        { return KindJSEval }
func (AIScore) Kind() Kind       { return KindAIScore }
func (HealExactCopy) Kind() Kind { return KindHealExactCopy }
func (Keywords) Kind() Kind      { return KindKeywords }
func (Mysterious) Kind() Kind    { return KindMysterious }
func (u Unknown) Kind() Kind     { return Kind(u.Type) }

func (Equals) validator()        {}
func (NotEquals) validator()     {}
func (EqualsNumber) validator()  {}
func (TextContains) validator()  {}
func (RegexCount) validator()    {}
func (ContainsAny) validator()   {}
func (KeywordAny) validator()    {}
func (CSVCount) validator()      {}
func (SongGuess) validator()     {}
func (ManualReview) validator()  {}
func (JSEval) validator()        {}
func (AIScore) validator()       {}
func (HealExactCopy) validator() {}
func (Keywords) validator()      {}
func (Mysterious) validator()    {}
func (Unknown) validator()       {}

// DecodeValidator reads the type discriminator of data and decodes
// only the fields of that variant. Empty input and JSON null yield
// a nil Validator.
func DecodeValidator(data []byte) (Validator, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode validator: %w", err)
	}

	var v Validator
	var err error
	switch Kind(head.Type) {
	case KindEquals:
		v, err = decodeInto[Equals](data)
	case KindNotEquals:
		v, err = decodeInto[NotEquals](data)
	case KindEqualsNumber:
		v, err = decodeEqualsNumber(data)
	case KindTextContains:
		v, err = decodeInto[TextContains](data)
	case KindRegexCount:
		v, err = decodeInto[RegexCount](data)
	case KindContainsAny:
		v, err = decodeInto[ContainsAny](data)
	case KindKeywordAny:
		v, err = decodeInto[KeywordAny](data)
	case KindCSVCount:
		v, err = decodeInto[CSVCount](data)
	case KindSongGuess:
		v, err = decodeInto[SongGuess](data)
	case KindManualReview:
		v, err = decodeInto[ManualReview](data)
	case KindJSEval:
		v, err = decodeInto[JSEval](data)
	case KindAIScore:
		v, err = decodeInto[AIScore](data)
	case KindHealExactCopy:
		v, err = decodeInto[HealExactCopy](data)
	case KindKeywords:
		v, err = decodeInto[Keywords](data)
	case KindMysterious:
		v, err = decodeInto[Mysterious](data)
	default:
		return Unknown{Type: head.Type}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s validator: %w", head.Type, err)
	}
	return v, nil
}

func decodeInto[T Validator](data []byte) (Validator, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeEqualsNumber(data []byte) (Validator, error) {
	var raw struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	value := bytes.TrimSpace(raw.Value)
	if len(value) > 0 && value[0] == '[' {
		var list []float64
		if err := json.Unmarshal(value, &list); err != nil {
			return nil, err
		}
		return EqualsNumber{Values: list, List: true}, nil
	}
	var single float64
	if err := json.Unmarshal(value, &single); err != nil {
		return nil, err
	}
	return EqualsNumber{Values: []float64{single}}, nil
}
