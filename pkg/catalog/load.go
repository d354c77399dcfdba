package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// frontmatter mirrors the YAML header of a SKILL.md file.
type frontmatter struct {
	Name            string                 `mapstructure:"name"`
	Description     string                 `mapstructure:"description"`
	Keywords        []string               `mapstructure:"keywords"`
	ErrorSignatures []string               `mapstructure:"error_signatures"`
	Tokens          int                    `mapstructure:"tokens"`
	References      []referenceFrontmatter `mapstructure:"references"`
}

type referenceFrontmatter struct {
	Path     string   `mapstructure:"path"`
	Triggers []string `mapstructure:"triggers"`
	Tokens   int      `mapstructure:"tokens"`
}

// parseSkillDir loads one skill bundle from its directory. The returned hash
// covers the primary document and every reference document, so a content
// change anywhere in the bundle advances the skill's revision.
func parseSkillDir(dir string) (*SkillEntry, string, error) {
	skillPath := filepath.Join(dir, SkillFileName)
	content, err := os.ReadFile(skillPath)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to read skill file")
	}

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))
	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, "", errors.Wrap(err, "failed to parse markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, "", errors.New("missing frontmatter")
	}

	var fm frontmatter
	if err := mapstructure.Decode(metaData, &fm); err != nil {
		return nil, "", errors.Wrap(err, "invalid frontmatter")
	}

	if fm.Name == "" {
		return nil, "", errors.New("skill name is required in frontmatter")
	}
	if strings.ContainsAny(fm.Name, "/\\") {
		return nil, "", errors.Errorf("skill name %q must not contain path separators", fm.Name)
	}
	if fm.Description == "" {
		return nil, "", errors.New("skill description is required in frontmatter")
	}
	if len(fm.Keywords) == 0 {
		return nil, "", errors.New("at least one keyword is required in frontmatter")
	}

	cost := fm.Tokens
	if cost < 0 {
		return nil, "", errors.Errorf("tokens must be positive, got %d", cost)
	}
	if cost == 0 {
		cost = estimateTokens(len(content))
	}
	if cost <= 0 {
		return nil, "", errors.New("skill has no content to estimate a token cost from")
	}

	hash := sha256.New()
	hash.Write(content)

	entry := &SkillEntry{
		Name:            fm.Name,
		Description:     fm.Description,
		Keywords:        fm.Keywords,
		ErrorSignatures: fm.ErrorSignatures,
		EstimatedCost:   cost,
		Directory:       dir,
	}

	seen := make(map[string]bool, len(fm.References))
	for _, ref := range fm.References {
		if ref.Path == "" {
			return nil, "", errors.New("reference path is required")
		}
		if seen[ref.Path] {
			return nil, "", errors.Errorf("duplicate reference path %q", ref.Path)
		}
		seen[ref.Path] = true

		refBytes, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(ref.Path)))
		if err != nil {
			return nil, "", errors.Wrapf(err, "reference %q is not readable", ref.Path)
		}
		hash.Write(refBytes)

		refCost := ref.Tokens
		if refCost < 0 {
			return nil, "", errors.Errorf("reference %q tokens must be positive, got %d", ref.Path, refCost)
		}
		if refCost == 0 {
			refCost = estimateTokens(len(refBytes))
		}
		if refCost <= 0 {
			return nil, "", errors.Errorf("reference %q is empty", ref.Path)
		}

		entry.References = append(entry.References, ReferenceEntry{
			Path:          ref.Path,
			Triggers:      ref.Triggers,
			EstimatedCost: refCost,
		})
	}

	return entry, hex.EncodeToString(hash.Sum(nil)), nil
}

// estimateTokens approximates the token count of a document from its byte
// size. Used when the frontmatter does not declare an explicit cost.
func estimateTokens(byteLen int) int {
	return (byteLen + 3) / 4
}
