package router

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillrouter/pkg/catalog"
	"github.com/jingkaihe/skillrouter/pkg/planner"
	"github.com/jingkaihe/skillrouter/pkg/session"
)

const kvSkillMD = `---
name: kv-rate-limits
description: Handle KV store rate limiting and backoff
keywords:
  - KV
  - rate limit
tokens: 400
references:
  - path: references/batching.md
    triggers:
      - bulk write
    tokens: 300
---

# KV rate limits
`

const kvBasicsMD = `---
name: kv-basics
description: General purpose introduction to the KV store
keywords:
  - KV
tokens: 300
---

# KV basics
`

const workerSkillMD = `---
name: worker-deploy
description: Deploy serverless workers
keywords:
  - worker
  - deploy
tokens: 250
---

# Worker deploys
`

func writeBundle(t *testing.T, root, dirName, skillMD string, refs map[string]string) {
	t.Helper()
	bundleDir := filepath.Join(root, dirName)
	require.NoError(t, os.MkdirAll(bundleDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, catalog.SkillFileName), []byte(skillMD), 0o644))
	for relPath, content := range refs {
		fullPath := filepath.Join(bundleDir, filepath.FromSlash(relPath))
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))
	}
}

func newTestCatalog(t *testing.T) *catalog.Store {
	t.Helper()

	tmpDir := t.TempDir()
	writeBundle(t, tmpDir, "kv-rate-limits", kvSkillMD, map[string]string{
		"references/batching.md": "# Batching",
	})
	writeBundle(t, tmpDir, "kv-basics", kvBasicsMD, nil)
	writeBundle(t, tmpDir, "worker-deploy", workerSkillMD, nil)

	store, err := catalog.NewStore(catalog.WithDirs(tmpDir))
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	require.NoError(t, err)
	return store
}

func newTestRouter(t *testing.T) (*Router, *catalog.Store) {
	t.Helper()
	store := newTestCatalog(t)
	return New(store, session.NewMemoryStore(0)), store
}

func TestNoMatchFoundIsTerminalNotError(t *testing.T) {
	r, _ := newTestRouter(t)

	plan, err := r.ResolveLoadPlan(context.Background(), "completely unrelated cooking recipe", "s1", 1000)
	require.NoError(t, err)
	assert.True(t, plan.NoMatch)
	assert.Empty(t, plan.Items)
	assert.Zero(t, plan.TotalCost)
}

func TestSingleMatchLoadsPrimaryFirst(t *testing.T) {
	r, _ := newTestRouter(t)

	plan, err := r.ResolveLoadPlan(context.Background(), "deploy a worker", "s1", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Items)
	assert.Equal(t, "worker-deploy/SKILL.md", plan.Items[0].DocID)
	assert.Equal(t, planner.ReasonPrimary, plan.Items[0].Reason)
}

func TestOverlapSuppressionScenario(t *testing.T) {
	r, _ := newTestRouter(t)

	// Both kv skills match "KV", but kv-rate-limits also matches the exact
	// phrase "rate limit" and wins; the near-duplicate is suppressed.
	plan, err := r.ResolveLoadPlan(context.Background(), "rate limit exceeded KV", "s1", 1000)
	require.NoError(t, err)

	skills := make(map[string]bool)
	for _, item := range plan.Items {
		skills[item.Skill] = true
	}
	assert.True(t, skills["kv-rate-limits"])
	assert.False(t, skills["kv-basics"])
}

func TestDisjointNearTieActivatesBoth(t *testing.T) {
	r, _ := newTestRouter(t)

	// "deploy KV" is a genuine near-tie: worker-deploy at 13 is not decisive
	// over the kv skills at 10, and the matched keyword sets are disjoint, so
	// complementary skills activate together.
	plan, err := r.ResolveLoadPlan(context.Background(), "deploy KV", "s1", 1000)
	require.NoError(t, err)

	skills := make(map[string]bool)
	for _, item := range plan.Items {
		skills[item.Skill] = true
	}
	assert.True(t, skills["worker-deploy"])
	assert.True(t, skills["kv-rate-limits"])
	// kv-basics matched the same keyword as kv-rate-limits: near-duplicate,
	// suppressed.
	assert.False(t, skills["kv-basics"])
}

func TestIdempotenceWithoutCommit(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	first, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)
	second, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)

	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.Deferred, second.Deferred)
	assert.Equal(t, first.TotalCost, second.TotalCost)
	assert.Equal(t, first.Truncated, second.Truncated)
}

func TestPlansStableAcrossWindowEviction(t *testing.T) {
	// Window of one: committing a new query evicts the old one. Resolving
	// must never evict, or a reference triggered by the evicted query would
	// appear in the first plan and vanish from an identical re-resolve.
	store := newTestCatalog(t)
	r := New(store, session.NewMemoryStore(1))
	ctx := context.Background()

	seed, err := r.ResolveLoadPlan(ctx, "how do I bulk write entries", "s1", 1000)
	require.NoError(t, err)
	require.NoError(t, r.CommitLoaded(ctx, seed))

	first, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)
	second, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"kv-rate-limits/SKILL.md",
		"kv-rate-limits/references/batching.md",
	}, first.DocIDs())
	assert.Equal(t, first.Items, second.Items)
}

func TestCommitDedupsSubsequentPlans(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	plan, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Items)
	require.NoError(t, r.CommitLoaded(ctx, plan))

	second, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, second.Items)
	assert.Equal(t, planner.ReasonAlreadyLoaded, second.Items[0].Reason)
	assert.Zero(t, second.Items[0].Cost)
	assert.Zero(t, second.TotalCost)

	// A different session sees no dedup.
	other, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s2", 1000)
	require.NoError(t, err)
	assert.Equal(t, planner.ReasonPrimary, other.Items[0].Reason)
}

func TestRevisionBumpForcesReload(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := context.Background()

	plan, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)
	require.NoError(t, r.CommitLoaded(ctx, plan))

	store.Invalidate("kv-rate-limits")

	second, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, second.Items)
	assert.Equal(t, planner.ReasonStaleReload, second.Items[0].Reason)
	assert.Equal(t, 400, second.Items[0].Cost)
}

func TestCommitRecordsPlanRevision(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := context.Background()

	plan, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)

	// Catalog rebuild between plan and delivery: the session received the
	// old bytes, so the commit must record the plan's revision, not the
	// current one, and the next query must reload.
	store.Invalidate("kv-rate-limits")
	require.NoError(t, r.CommitLoaded(ctx, plan))

	second, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, second.Items)
	assert.Equal(t, planner.ReasonStaleReload, second.Items[0].Reason)
	assert.Equal(t, 400, second.Items[0].Cost)
}

func TestReferenceTriggersOffPriorQueryInWindow(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	// First query matches no skill; committing its (empty) plan still
	// enters it into the session's query window.
	seed, err := r.ResolveLoadPlan(ctx, "how do I bulk write entries", "s1", 1000)
	require.NoError(t, err)
	require.True(t, seed.NoMatch)
	require.NoError(t, r.CommitLoaded(ctx, seed))

	plan, err := r.ResolveLoadPlan(ctx, "KV rate limit", "s1", 1000)
	require.NoError(t, err)

	var refIncluded bool
	for _, item := range plan.Items {
		if item.DocID == "kv-rate-limits/references/batching.md" {
			refIncluded = true
		}
	}
	assert.True(t, refIncluded)
}

func TestExactBudgetDefersAllReferences(t *testing.T) {
	r, _ := newTestRouter(t)

	plan, err := r.ResolveLoadPlan(context.Background(), "bulk write KV rate limit", "s1", 400)
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, "kv-rate-limits/SKILL.md", plan.Items[0].DocID)
	assert.Equal(t, 400, plan.TotalCost)
	assert.True(t, plan.Truncated)
	require.Len(t, plan.Deferred, 1)
	assert.Equal(t, "kv-rate-limits/references/batching.md", plan.Deferred[0].DocID)
}

func TestBudgetInsufficientForPrimary(t *testing.T) {
	r, _ := newTestRouter(t)

	plan, err := r.ResolveLoadPlan(context.Background(), "KV rate limit", "s1", 100)
	require.NoError(t, err)

	assert.Empty(t, plan.Items)
	require.NotEmpty(t, plan.Conditions)
	assert.Equal(t, planner.ConditionBudgetInsufficient, plan.Conditions[0].Kind)
	assert.Equal(t, "kv-rate-limits", plan.Conditions[0].Skill)
}

func TestResolveValidatesArguments(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := r.ResolveLoadPlan(ctx, "", "s1", 1000)
	assert.Error(t, err)
	_, err = r.ResolveLoadPlan(ctx, "KV", "", 1000)
	assert.Error(t, err)
	_, err = r.ResolveLoadPlan(ctx, "KV", "s1", 0)
	assert.Error(t, err)
}

func TestCommitValidatesPlan(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	assert.Error(t, r.CommitLoaded(ctx, nil))
	assert.Error(t, r.CommitLoaded(ctx, &planner.LoadPlan{}))
}

func TestExplainListsBelowThresholdCandidates(t *testing.T) {
	r, _ := newTestRouter(t)

	// "serverless" only hits worker-deploy's description: below threshold,
	// but still visible in diagnostics.
	expl, err := r.Explain(context.Background(), "serverless pricing", "s1")
	require.NoError(t, err)
	require.Len(t, expl.Candidates, 1)
	assert.Equal(t, "worker-deploy", expl.Candidates[0].Skill.Name)
	assert.Less(t, expl.Candidates[0].Score, expl.MinScore)
	assert.Empty(t, expl.Activated)
}

func TestExplainReportsSuppressedAlternates(t *testing.T) {
	r, _ := newTestRouter(t)

	expl, err := r.Explain(context.Background(), "rate limit exceeded KV", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"kv-rate-limits"}, expl.Activated)
	assert.Contains(t, expl.Suppressed, "kv-basics")
}

func TestParallelSessionsShareSnapshot(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		sessionID := session.NewSessionID()
		go func() {
			for j := 0; j < 10; j++ {
				if _, err := r.ResolveLoadPlan(ctx, "KV rate limit", sessionID, 1000); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}
}
