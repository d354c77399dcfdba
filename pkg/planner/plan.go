// Package planner turns an activation set and a token budget into an
// ordered load plan. Primary documents are reserved first and never
// silently truncated; references are included only when their trigger
// phrases match the session's query window and the budget allows.
package planner

// IncludeReason explains why a document appears in a plan.
type IncludeReason string

const (
	// ReasonPrimary marks a skill's primary document.
	ReasonPrimary IncludeReason = "primary"
	// ReasonTriggerMatch marks a reference whose trigger phrase matched the
	// session's query window.
	ReasonTriggerMatch IncludeReason = "trigger_match"
	// ReasonAlreadyLoaded marks a document the session already holds at the
	// current revision. Included at zero cost for the caller's bookkeeping.
	ReasonAlreadyLoaded IncludeReason = "already_loaded"
	// ReasonStaleReload marks a document the session holds at an outdated
	// revision; it is reloaded at full cost.
	ReasonStaleReload IncludeReason = "stale_reload"
)

// ConditionKind classifies non-fatal conditions attached to a plan.
type ConditionKind string

const (
	// ConditionBudgetInsufficient: the skill's primary document alone
	// exceeds the remaining budget, so the whole skill was excluded rather
	// than partially loaded. Fatal for that skill only.
	ConditionBudgetInsufficient ConditionKind = "budget_insufficient"
	// ConditionAmbiguousMatchTruncated: more skills matched than the
	// activation cap allows; the plan proceeds with the retained subset.
	ConditionAmbiguousMatchTruncated ConditionKind = "ambiguous_match_truncated"
)

// Item is one document in a load plan. Revision is the skill revision the
// plan was built against; commits record it, so a catalog rebuild between
// plan and delivery still forces a reload on the next query.
type Item struct {
	DocID    string        `json:"doc_id"`
	Skill    string        `json:"skill"`
	Reason   IncludeReason `json:"reason"`
	Cost     int           `json:"cost"`
	Revision int64         `json:"revision"`
}

// Condition is a warning or per-skill failure surfaced with the plan
// instead of aborting the pipeline.
type Condition struct {
	Kind   ConditionKind `json:"kind"`
	Skill  string        `json:"skill,omitempty"`
	Detail string        `json:"detail"`
}

// LoadPlan is the ordered, costed output of the resolution pipeline for one
// query. It is ephemeral: owned by the invocation that created it.
type LoadPlan struct {
	Query      string      `json:"query"`
	SessionID  string      `json:"session_id"`
	Budget     int         `json:"budget"`
	Items      []Item      `json:"items"`
	Deferred   []Item      `json:"deferred,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
	TotalCost  int         `json:"total_cost"`
	Truncated  bool        `json:"truncated"`
	NoMatch    bool        `json:"no_match"`
}

// DocIDs returns the identifiers of all included (non-deferred) documents in
// plan order, for handing to the caller's fetch step.
func (p *LoadPlan) DocIDs() []string {
	out := make([]string, 0, len(p.Items))
	for _, item := range p.Items {
		out = append(out, item.DocID)
	}
	return out
}

func (p *LoadPlan) hasCondition(kind ConditionKind) bool {
	for _, cond := range p.Conditions {
		if cond.Kind == kind {
			return true
		}
	}
	return false
}
