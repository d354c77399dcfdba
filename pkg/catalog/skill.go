// Package catalog parses skill bundles into an immutable, atomically
// swappable snapshot. A skill bundle is a directory containing a SKILL.md
// file with YAML frontmatter describing the skill's discovery keywords,
// token cost, and secondary reference documents with their load triggers.
package catalog

import "path"

// SkillFileName is the primary document of every skill bundle.
const SkillFileName = "SKILL.md"

// SkillEntry is one discoverable documentation bundle.
type SkillEntry struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Keywords        []string         `json:"keywords"`
	ErrorSignatures []string         `json:"error_signatures,omitempty"`
	EstimatedCost   int              `json:"estimated_cost"`
	References      []ReferenceEntry `json:"references,omitempty"`
	Directory       string           `json:"directory"`
	Revision        int64            `json:"revision"`
}

// ReferenceEntry is a secondary document nested under a skill. It is never
// loaded before its parent skill is activated, and only when one of its
// trigger phrases matches the session's query window.
type ReferenceEntry struct {
	Path          string   `json:"path"`
	Triggers      []string `json:"triggers"`
	EstimatedCost int      `json:"estimated_cost"`
}

// PrimaryDocID returns the document identifier of the skill's primary file.
func (s *SkillEntry) PrimaryDocID() string {
	return path.Join(s.Name, SkillFileName)
}

// ReferenceDocID returns the document identifier for one of the skill's
// reference documents.
func (s *SkillEntry) ReferenceDocID(refPath string) string {
	return path.Join(s.Name, refPath)
}

// ReferenceCost returns the summed cost of all reference documents, tracked
// separately from the primary document's cost.
func (s *SkillEntry) ReferenceCost() int {
	total := 0
	for _, ref := range s.References {
		total += ref.EstimatedCost
	}
	return total
}

// SkillNameFromDocID extracts the owning skill name from a document
// identifier such as "kv-store/references/advanced.md".
func SkillNameFromDocID(docID string) string {
	for i := 0; i < len(docID); i++ {
		if docID[i] == '/' {
			return docID[:i]
		}
	}
	return docID
}
