package models

// RuleFlow references a Flow from inside a Rule. Name is a snapshot taken when the
// flow was attached and is not kept in sync with later renames.
type RuleFlow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Rule groups flows under a business name. At most one of its flows is active.
type Rule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Flows       []RuleFlow `json:"flows"`
}

// ActiveFlow returns the active flow reference, if any.
func (r *Rule) ActiveFlow() (RuleFlow, bool) {
	for _, flow := range r.Flows {
		if flow.Active {
			return flow, true
		}
	}

	return RuleFlow{}, false
}

// ActiveCount returns how many flows are marked active.
func (r *Rule) ActiveCount() int {
	count := 0

	for _, flow := range r.Flows {
		if flow.Active {
			count++
		}
	}

	return count
}

// HasFlow reports whether the rule references flowID.
func (r *Rule) HasFlow(flowID string) bool {
	for _, flow := range r.Flows {
		if flow.ID == flowID {
			return true
		}
	}

	return false
}
