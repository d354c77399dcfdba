package planner

import (
	"fmt"
	"strings"

	"github.com/jingkaihe/skillrouter/pkg/catalog"
	"github.com/jingkaihe/skillrouter/pkg/matcher"
)

// SessionView is the read-only slice of session state the planner consults.
// The planner never mutates session state; commits happen separately after
// the caller confirms delivery.
type SessionView interface {
	LoadedRevision(docID string) (int64, bool)
	QueryWindow() []string
}

// Plan builds a load plan for the activated skills, in activation order,
// against the given budget. Primaries are reserved for every skill first;
// only then are references considered, so one skill's references never
// crowd out a sibling's primary document.
func Plan(activated []*catalog.SkillEntry, budget int, view SessionView) *LoadPlan {
	plan := &LoadPlan{Budget: budget, NoMatch: len(activated) == 0}
	remaining := budget

	var live []*catalog.SkillEntry
	for _, skill := range activated {
		docID := skill.PrimaryDocID()

		if rev, ok := view.LoadedRevision(docID); ok && rev == skill.Revision {
			plan.Items = append(plan.Items, Item{
				DocID:    docID,
				Skill:    skill.Name,
				Reason:   ReasonAlreadyLoaded,
				Cost:     0,
				Revision: skill.Revision,
			})
			live = append(live, skill)
			continue
		}

		reason := ReasonPrimary
		if _, ok := view.LoadedRevision(docID); ok {
			reason = ReasonStaleReload
		}

		if skill.EstimatedCost > remaining {
			plan.Conditions = append(plan.Conditions, Condition{
				Kind:  ConditionBudgetInsufficient,
				Skill: skill.Name,
				Detail: fmt.Sprintf("primary document costs %d tokens but only %d remain in the budget",
					skill.EstimatedCost, remaining),
			})
			continue
		}

		remaining -= skill.EstimatedCost
		plan.TotalCost += skill.EstimatedCost
		plan.Items = append(plan.Items, Item{
			DocID:    docID,
			Skill:    skill.Name,
			Reason:   reason,
			Cost:     skill.EstimatedCost,
			Revision: skill.Revision,
		})
		live = append(live, skill)
	}

	window := view.QueryWindow()
	for _, skill := range live {
		for _, ref := range skill.References {
			if !TriggerMatches(ref.Triggers, window) {
				continue
			}
			docID := skill.ReferenceDocID(ref.Path)

			if rev, ok := view.LoadedRevision(docID); ok && rev == skill.Revision {
				plan.Items = append(plan.Items, Item{
					DocID:    docID,
					Skill:    skill.Name,
					Reason:   ReasonAlreadyLoaded,
					Cost:     0,
					Revision: skill.Revision,
				})
				continue
			}

			reason := ReasonTriggerMatch
			if _, ok := view.LoadedRevision(docID); ok {
				reason = ReasonStaleReload
			}

			if ref.EstimatedCost > remaining {
				// Matched but unfit: deferred, not dropped, so the caller
				// can request it explicitly later.
				plan.Deferred = append(plan.Deferred, Item{
					DocID:    docID,
					Skill:    skill.Name,
					Reason:   reason,
					Cost:     ref.EstimatedCost,
					Revision: skill.Revision,
				})
				continue
			}

			remaining -= ref.EstimatedCost
			plan.TotalCost += ref.EstimatedCost
			plan.Items = append(plan.Items, Item{
				DocID:    docID,
				Skill:    skill.Name,
				Reason:   reason,
				Cost:     ref.EstimatedCost,
				Revision: skill.Revision,
			})
		}
	}

	plan.Truncated = len(plan.Deferred) > 0 || plan.hasCondition(ConditionBudgetInsufficient)
	return plan
}

// TriggerMatches reports whether any trigger phrase occurs in any query of
// the window, case-insensitively on word boundaries. Deterministic given
// the same query history.
func TriggerMatches(triggers, window []string) bool {
	for _, trigger := range triggers {
		lowered := strings.ToLower(trigger)
		for _, query := range window {
			if matcher.ContainsPhrase(strings.ToLower(query), lowered) {
				return true
			}
		}
	}
	return false
}
