// Package content defines the challenge pack model: roles, their
// phases and the validator attached to each phase.
package content

import (
	"encoding/json"
	"fmt"
)

// Difficulty grades a role.
type Difficulty string

const (
	DifficultyEasy       Difficulty = "easy"
	DifficultyMedium     Difficulty = "medium"
	DifficultyHard       Difficulty = "hard"
	DifficultyImpossible Difficulty = "impossible"
)

// Phase is one combat round. It is created when a pack loads and
// never mutated afterwards.
type Phase struct {
	Phase        int      `json:"phase"`
	TaskType     string   `json:"task_type"`
	Question     string   `json:"question,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
	Assistant    string   `json:"assistant,omitempty"`
	Hint         string   `json:"hint,omitempty"`
	BuggedCode   string   `json:"bugged_code,omitempty"`
	PerfectCode  string   `json:"perfect_code,omitempty"`
	Lyric        string   `json:"lyric,omitempty"`
	Song         string   `json:"song,omitempty"`
	BaitQuestion string   `json:"bait_question,omitempty"`
	HiddenHTML   string   `json:"hidden_html,omitempty"`
	HiddenJS     string   `json:"hidden_js,omitempty"`
	HiddenData   string   `json:"hidden_data,omitempty"`
	Sentences    []string `json:"sentences,omitempty"`

	// Validator is nil when the phase declares none.
	Validator Validator `json:"-"`
}

// UnmarshalJSON decodes a phase, resolving its validator variant.
func (p *Phase) UnmarshalJSON(data []byte) error {
	type plain Phase
	var aux struct {
		plain
		Validator json.RawMessage `json:"validator"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v, err := DecodeValidator(aux.Validator)
	if err != nil {
		return fmt.Errorf("phase %d validator: %w", aux.Phase, err)
	}
	*p = Phase(aux.plain)
	p.Validator = v
	return nil
}

// HasHiddenPayload reports whether any hidden markup, script or
// data string is attached.
func (p *Phase) HasHiddenPayload() bool {
	return p.HiddenHTML != "" || p.HiddenJS != "" || p.HiddenData != ""
}

// Role is a playable character with its ordered phases.
type Role struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Difficulty   Difficulty `json:"difficulty"`
	PhasesPerRun int        `json:"phases_per_run,omitempty"`
	Description  string     `json:"description,omitempty"`
	Phases       []Phase    `json:"phases"`
}

// Phase returns the phase numbered n.
func (r *Role) Phase(n int) (*Phase, bool) {
	for i := range r.Phases {
		if r.Phases[i].Phase == n {
			return &r.Phases[i], true
		}
	}
	return nil, false
}

// Meta describes a pack as a whole.
type Meta struct {
	Name                    string   `json:"name"`
	PhasesPerRun            int      `json:"phases_per_run"`
	MonstersPerPhaseFormula string   `json:"monsters_per_phase_formula,omitempty"`
	ValidatorAPINote        string   `json:"validator_api_note,omitempty"`
	RolesIncluded           []string `json:"roles_included,omitempty"`
}

// Pack is a complete content file.
type Pack struct {
	Meta  Meta   `json:"meta"`
	Roles []Role `json:"roles"`
}

// Role returns the role with the given id.
func (p *Pack) Role(id string) (*Role, bool) {
	for i := range p.Roles {
		if p.Roles[i].ID == id {
			return &p.Roles[i], true
		}
	}
	return nil, false
}
