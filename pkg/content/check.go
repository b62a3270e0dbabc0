package content

import "fmt"

// Issue is an authoring problem found in a pack.
type Issue struct {
	Role    string
	Phase   int // 0 if not applicable
	Field   string
	Message string
}

func (i Issue) Error() string {
	if i.Phase > 0 {
		return fmt.Sprintf(
			"roles[%s].phases[%d].%s: %s",
			i.Role, i.Phase, i.Field, i.Message,
		)
	}
	if i.Role != "" {
		return fmt.Sprintf("roles[%s].%s: %s", i.Role, i.Field, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// Check reports every authoring problem in pack. Problems do not
// stop a pack from loading; phases with a missing or unknown
// validator fail at validation time instead.
func Check(pack *Pack) []Issue {
	var issues []Issue
	if pack.Meta.Name == "" {
		issues = append(issues, Issue{
			Field: "meta.name", Message: "pack name is required",
		})
	}

	ids := make(map[string]bool)
	for _, role := range pack.Roles {
		switch {
		case role.ID == "":
			issues = append(issues, Issue{
				Field: "id", Message: "role id is required",
			})
		case ids[role.ID]:
			issues = append(issues, Issue{
				Role: role.ID, Field: "id",
				Message: "duplicate role id",
			})
		default:
			ids[role.ID] = true
		}
		if role.Name == "" {
			issues = append(issues, Issue{
				Role: role.ID, Field: "name",
				Message: "role name is required",
			})
		}

		seen := make(map[int]bool)
		for _, phase := range role.Phases {
			issues = append(issues, checkPhase(role.ID, phase, seen)...)
		}
	}
	return issues
}

func checkPhase(role string, phase Phase, seen map[int]bool) []Issue {
	var issues []Issue
	add := func(field, msg string) {
		issues = append(issues, Issue{
			Role: role, Phase: phase.Phase, Field: field, Message: msg,
		})
	}

	if phase.Phase <= 0 {
		issues = append(issues, Issue{
			Role: role, Field: "phase",
			Message: fmt.Sprintf("invalid phase number %d", phase.Phase),
		})
		return issues
	}
	if seen[phase.Phase] {
		add("phase", "duplicate phase number")
	}
	seen[phase.Phase] = true

	switch v := phase.Validator.(type) {
	case nil:
		add("validator", "no validator attached")
	case Unknown:
		add("validator", fmt.Sprintf("unknown validator type %q", v.Type))
	case EqualsNumber:
		if len(v.Values) == 0 {
			add("validator.value", "no expected numbers")
		}
	case RegexCount:
		if v.Count < 0 {
			add("validator.count", "count must not be negative")
		}
	case HealExactCopy:
		if len(phase.Sentences) == 0 {
			add("sentences", "copy phase has no premade sentences")
		}
	case Keywords:
		if len(v.Required) == 0 && len(v.Optional) == 0 {
			add("validator", "keyword lists are empty")
		}
	}
	return issues
}
