package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, root, dirName, skillMD string, refs map[string]string) string {
	t.Helper()

	bundleDir := filepath.Join(root, dirName)
	require.NoError(t, os.MkdirAll(bundleDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, SkillFileName), []byte(skillMD), 0o644))

	for relPath, content := range refs {
		fullPath := filepath.Join(bundleDir, filepath.FromSlash(relPath))
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))
	}
	return bundleDir
}

const kvSkillMD = `---
name: kv-rate-limits
description: Handle KV store rate limiting and backoff
keywords:
  - KV
  - rate limit
error_signatures:
  - "429 Too Many Requests"
tokens: 400
references:
  - path: references/batching.md
    triggers:
      - bulk write
    tokens: 300
---

# KV rate limits

Back off exponentially and batch writes.
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

Use the deploy command.
`

func TestLoadCatalog(t *testing.T) {
	tmpDir := t.TempDir()
	writeSkill(t, tmpDir, "kv-rate-limits", kvSkillMD, map[string]string{
		"references/batching.md": "# Batching\n\nWrite in batches of 100.",
	})
	writeSkill(t, tmpDir, "worker-deploy", workerSkillMD, nil)

	store, err := NewStore(WithDirs(tmpDir))
	require.NoError(t, err)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())
	assert.Empty(t, snap.ParseErrors())
	assert.Equal(t, []string{"kv-rate-limits", "worker-deploy"}, snap.Names())

	kv := snap.Lookup("kv-rate-limits")
	require.NotNil(t, kv)
	assert.Equal(t, "Handle KV store rate limiting and backoff", kv.Description)
	assert.Equal(t, []string{"KV", "rate limit"}, kv.Keywords)
	assert.Equal(t, []string{"429 Too Many Requests"}, kv.ErrorSignatures)
	assert.Equal(t, 400, kv.EstimatedCost)
	assert.Equal(t, int64(1), kv.Revision)

	require.Len(t, kv.References, 1)
	assert.Equal(t, "references/batching.md", kv.References[0].Path)
	assert.Equal(t, []string{"bulk write"}, kv.References[0].Triggers)
	assert.Equal(t, 300, kv.References[0].EstimatedCost)
	assert.Equal(t, 300, kv.ReferenceCost())

	assert.Equal(t, "kv-rate-limits/SKILL.md", kv.PrimaryDocID())
	assert.Equal(t, "kv-rate-limits/references/batching.md", kv.ReferenceDocID(kv.References[0].Path))

	assert.Nil(t, snap.Lookup("absent"))
	assert.Equal(t, int64(1), snap.Revision("kv-rate-limits"))
	assert.Zero(t, snap.Revision("absent"))
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	tmpDir := t.TempDir()
	writeSkill(t, tmpDir, "worker-deploy", workerSkillMD, nil)

	writeSkill(t, tmpDir, "no-name", `---
description: Missing a name
keywords:
  - orphan
---

Body.
`, nil)

	writeSkill(t, tmpDir, "no-keywords", `---
name: no-keywords
description: No keywords at all
---

Body.
`, nil)

	writeSkill(t, tmpDir, "bad-tokens", `---
name: bad-tokens
description: Negative token cost
keywords:
  - bad
tokens: -5
---

Body.
`, nil)

	writeSkill(t, tmpDir, "missing-ref", `---
name: missing-ref
description: References a file that does not exist
keywords:
  - ghost
references:
  - path: references/ghost.md
    triggers:
      - ghost
---

Body.
`, nil)

	writeSkill(t, tmpDir, "no-frontmatter", "# Just markdown\n\nNo header here.\n", nil)

	store, err := NewStore(WithDirs(tmpDir))
	require.NoError(t, err)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	// The well-formed entry loads; every malformed one is reported.
	assert.Equal(t, []string{"worker-deploy"}, snap.Names())
	assert.Len(t, snap.ParseErrors(), 5)
	assert.Error(t, snap.ParseErr())
}

func TestLoadSkipsMissingDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	writeSkill(t, tmpDir, "worker-deploy", workerSkillMD, nil)

	store, err := NewStore(WithDirs(filepath.Join(tmpDir, "does-not-exist"), tmpDir))
	require.NoError(t, err)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"worker-deploy"}, snap.Names())
}

func TestLoadFailsOnUnreadableDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	notADir := filepath.Join(tmpDir, "corpus")
	require.NoError(t, os.WriteFile(notADir, []byte("plain file"), 0o644))

	store, err := NewStore(WithDirs(notADir))
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read catalog directory")
}

func TestLoadReportsDuplicateNames(t *testing.T) {
	tmpDir := t.TempDir()
	writeSkill(t, tmpDir, "first", workerSkillMD, nil)
	writeSkill(t, tmpDir, "second", workerSkillMD, nil)

	store, err := NewStore(WithDirs(tmpDir))
	require.NoError(t, err)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Len())
	require.Len(t, snap.ParseErrors(), 1)
	assert.Equal(t, "worker-deploy", snap.ParseErrors()[0].Name)
	assert.Contains(t, snap.ParseErrors()[0].Error(), "duplicate skill name")
}

func TestLoadEstimatesMissingTokenCost(t *testing.T) {
	tmpDir := t.TempDir()
	content := `---
name: estimated
description: Cost comes from the document size
keywords:
  - estimate
---

Some body content to size the estimate from.
`
	writeSkill(t, tmpDir, "estimated", content, nil)

	store, err := NewStore(WithDirs(tmpDir))
	require.NoError(t, err)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	skill := snap.Lookup("estimated")
	require.NotNil(t, skill)
	assert.Equal(t, (len(content)+3)/4, skill.EstimatedCost)
	assert.Positive(t, skill.EstimatedCost)
}

func TestAllowlistFiltersByGlob(t *testing.T) {
	tmpDir := t.TempDir()
	writeSkill(t, tmpDir, "kv-rate-limits", kvSkillMD, map[string]string{
		"references/batching.md": "# Batching",
	})
	writeSkill(t, tmpDir, "worker-deploy", workerSkillMD, nil)

	store, err := NewStore(WithDirs(tmpDir), WithAllowlist("kv-*"))
	require.NoError(t, err)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kv-rate-limits"}, snap.Names())
}

func TestReloadBumpsRevisionOnContentChange(t *testing.T) {
	tmpDir := t.TempDir()
	bundleDir := writeSkill(t, tmpDir, "worker-deploy", workerSkillMD, nil)
	writeSkill(t, tmpDir, "kv-rate-limits", kvSkillMD, map[string]string{
		"references/batching.md": "# Batching",
	})

	store, err := NewStore(WithDirs(tmpDir))
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(bundleDir, SkillFileName),
		[]byte(workerSkillMD+"\nMore content.\n"), 0o644))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), snap.Lookup("worker-deploy").Revision)
	// Unchanged sibling keeps its revision.
	assert.Equal(t, int64(1), snap.Lookup("kv-rate-limits").Revision)
}

func TestInvalidateRepublishesSnapshot(t *testing.T) {
	tmpDir := t.TempDir()
	writeSkill(t, tmpDir, "worker-deploy", workerSkillMD, nil)

	store, err := NewStore(WithDirs(tmpDir))
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	require.NoError(t, err)

	before := store.Snapshot()
	store.Invalidate("worker-deploy")
	after := store.Snapshot()

	// Old snapshot stays valid for in-flight queries.
	assert.Equal(t, int64(1), before.Lookup("worker-deploy").Revision)
	assert.Equal(t, int64(2), after.Lookup("worker-deploy").Revision)

	// Unknown names are a no-op.
	store.Invalidate("absent")
	assert.Same(t, after, store.Snapshot())
}

func TestSkillNameFromDocID(t *testing.T) {
	assert.Equal(t, "kv-rate-limits", SkillNameFromDocID("kv-rate-limits/SKILL.md"))
	assert.Equal(t, "kv-rate-limits", SkillNameFromDocID("kv-rate-limits/references/batching.md"))
	assert.Equal(t, "bare", SkillNameFromDocID("bare"))
}
