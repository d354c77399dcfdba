// Package router is the public entry point of the skill resolution core.
// One query runs Matcher -> Conflict Resolver -> Budget Planner against the
// current catalog snapshot and emits a LoadPlan. The caller fetches the
// listed documents itself and confirms delivery via CommitLoaded; session
// state (the loaded-set and the rolling query window) is mutated only on
// commit, so an abandoned or repeated query leaves the session exactly as
// it found it.
package router

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/skillrouter/pkg/catalog"
	"github.com/jingkaihe/skillrouter/pkg/logger"
	"github.com/jingkaihe/skillrouter/pkg/matcher"
	"github.com/jingkaihe/skillrouter/pkg/planner"
	"github.com/jingkaihe/skillrouter/pkg/resolver"
	"github.com/jingkaihe/skillrouter/pkg/session"
	"github.com/jingkaihe/skillrouter/pkg/telemetry"
)

// DefaultBudget is used by callers that do not supply a budget.
const DefaultBudget = 8000

// Router wires the catalog, matcher, resolver, planner and session store
// into the resolveLoadPlan/explain/commitLoaded surface.
type Router struct {
	catalog  *catalog.Store
	sessions session.Store

	matchCfg   matcher.Config
	resolveCfg resolver.Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Router.
type Option func(*Router)

// WithMatcherConfig overrides the scoring configuration.
func WithMatcherConfig(cfg matcher.Config) Option {
	return func(r *Router) { r.matchCfg = cfg }
}

// WithResolverConfig overrides the conflict resolution configuration.
func WithResolverConfig(cfg resolver.Config) Option {
	return func(r *Router) { r.resolveCfg = cfg }
}

// New creates a Router over a catalog store and a session store.
func New(cat *catalog.Store, sessions session.Store, opts ...Option) *Router {
	r := &Router{
		catalog:    cat,
		sessions:   sessions,
		matchCfg:   matcher.DefaultConfig(),
		resolveCfg: resolver.DefaultConfig(),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// sessionLock serializes queries per session. Independent sessions run the
// pipeline in parallel against the same snapshot.
func (r *Router) sessionLock(sessionID string) func() {
	r.mu.Lock()
	lock, ok := r.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[sessionID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// ResolveLoadPlan runs the pipeline for one query and returns the plan.
// NoMatchFound is a valid terminal plan state, not an error. Per-skill
// failures (budget insufficient) and warnings (ambiguous match truncated)
// are surfaced as plan conditions so the caller always gets a usable, if
// partial, answer. Resolving mutates nothing: re-running the same query
// without an intervening commit yields an identical plan.
func (r *Router) ResolveLoadPlan(ctx context.Context, query, sessionID string, budget int) (*planner.LoadPlan, error) {
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	if sessionID == "" {
		return nil, errors.New("session id must not be empty")
	}
	if budget <= 0 {
		return nil, errors.Errorf("budget must be positive, got %d", budget)
	}

	unlock := r.sessionLock(sessionID)
	defer unlock()

	var plan *planner.LoadPlan
	err := telemetry.WithSpan(ctx, "router.resolve_load_plan", func(ctx context.Context) error {
		snap := r.catalog.Snapshot()
		state, err := r.sessions.Get(ctx, sessionID)
		if err != nil {
			return errors.Wrap(err, "failed to load session state")
		}

		candidates := matcher.Match(query, snap, r.matchCfg)
		activation := resolver.Resolve(candidates, r.resolveCfg)

		plan = planner.Plan(activation.Skills(), budget, state.WithQuery(query))
		plan.Query = query
		plan.SessionID = sessionID
		if activation.Truncated {
			plan.Conditions = append(plan.Conditions, planner.Condition{
				Kind:   planner.ConditionAmbiguousMatchTruncated,
				Detail: "more skills matched than the activation cap allows; lowest scorers were dropped",
			})
		}

		telemetry.SetAttributes(ctx,
			attribute.Int("skillrouter.candidates", len(candidates)),
			attribute.Int("skillrouter.activated", len(activation.Activated)),
			attribute.Int("skillrouter.plan_cost", plan.TotalCost),
		)

		logger.G(ctx).WithFields(map[string]interface{}{
			"session":   sessionID,
			"activated": len(activation.Activated),
			"items":     len(plan.Items),
			"cost":      plan.TotalCost,
		}).Debug("load plan resolved")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// CommitLoaded records a delivered plan. Each document is marked loaded at
// the revision the plan was built against, not the current one: a catalog
// rebuild between plan and delivery leaves the session holding old bytes,
// and recording the plan's revision makes the next query reload them. The
// plan's query joins the session's rolling window at the same time, so
// later references can trigger off it.
func (r *Router) CommitLoaded(ctx context.Context, plan *planner.LoadPlan) error {
	if plan == nil {
		return errors.New("plan must not be nil")
	}
	if plan.SessionID == "" {
		return errors.New("plan has no session id")
	}

	unlock := r.sessionLock(plan.SessionID)
	defer unlock()

	var result *multierror.Error
	for _, item := range plan.Items {
		if err := r.sessions.MarkLoaded(ctx, plan.SessionID, item.DocID, item.Revision); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "failed to mark %q loaded", item.DocID))
		}
	}
	if plan.Query != "" {
		if err := r.sessions.RecordQuery(ctx, plan.SessionID, plan.Query); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "failed to record query in session window"))
		}
	}
	return result.ErrorOrNil()
}

// Explanation is the diagnostics view of one query: every candidate with
// any signal at all, plus the resolver's verdict over the threshold-clearing
// subset.
type Explanation struct {
	Candidates []matcher.Candidate `json:"candidates"`
	Activated  []string            `json:"activated"`
	Suppressed []string            `json:"suppressed"`
	MinScore   float64             `json:"min_score"`
}

// Explain reports why each skill was or wasn't selected for a query. It has
// no side effects: the session window is not advanced.
func (r *Router) Explain(ctx context.Context, query, sessionID string) (*Explanation, error) {
	if query == "" {
		return nil, errors.New("query must not be empty")
	}

	snap := r.catalog.Snapshot()
	all := matcher.MatchAll(query, snap, r.matchCfg)
	activation := resolver.Resolve(matcher.Match(query, snap, r.matchCfg), r.resolveCfg)

	expl := &Explanation{
		Candidates: all,
		MinScore:   r.matchCfg.MinScore,
	}
	for _, cand := range activation.Activated {
		expl.Activated = append(expl.Activated, cand.Skill.Name)
	}
	for _, cand := range activation.Suppressed {
		expl.Suppressed = append(expl.Suppressed, cand.Skill.Name)
	}

	logger.G(ctx).WithFields(map[string]interface{}{
		"session":    sessionID,
		"candidates": len(all),
		"activated":  len(expl.Activated),
	}).Debug("explained query")
	return expl, nil
}
