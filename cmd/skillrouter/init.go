package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/skillrouter/pkg/catalog"
	"github.com/jingkaihe/skillrouter/pkg/presenter"
)

type skillScaffold struct {
	Name            string              `yaml:"name"`
	Description     string              `yaml:"description"`
	Keywords        []string            `yaml:"keywords"`
	ErrorSignatures []string            `yaml:"error_signatures,omitempty"`
	References      []referenceScaffold `yaml:"references,omitempty"`
}

type referenceScaffold struct {
	Path     string   `yaml:"path"`
	Triggers []string `yaml:"triggers"`
}

var initCmd = &cobra.Command{
	Use:   "init <skill-name>",
	Short: "Scaffold a new skill bundle",
	Long: `Create a skill bundle directory with a SKILL.md template: YAML frontmatter
for keywords and references, and a body section for the instructions.

Examples:
  skillrouter init kv-rate-limits
  skillrouter init kv-rate-limits --dir ./skills --description "Handle KV rate limiting"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		description, _ := cmd.Flags().GetString("description")

		path, err := scaffoldSkill(dir, args[0], description)
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("created %s", path))
		presenter.Info("Fill in the keywords and instructions, then run `skillrouter validate`.")
		return nil
	},
}

func init() {
	initCmd.Flags().String("dir", "./skills", "Corpus directory to create the bundle in")
	initCmd.Flags().String("description", "", "One-line description used as a matching signal")
	rootCmd.AddCommand(initCmd)
}

// scaffoldSkill creates <dir>/<name>/SKILL.md and a references/ directory.
func scaffoldSkill(dir, name, description string) (string, error) {
	bundleDir := filepath.Join(dir, name)
	skillPath := filepath.Join(bundleDir, catalog.SkillFileName)

	if _, err := os.Stat(skillPath); err == nil {
		return "", errors.Errorf("skill bundle already exists at %s", skillPath)
	}
	if err := os.MkdirAll(filepath.Join(bundleDir, "references"), 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create bundle directory")
	}

	if description == "" {
		description = "TODO: one-line summary used as a secondary matching signal"
	}
	front, err := yaml.Marshal(skillScaffold{
		Name:        name,
		Description: description,
		Keywords:    []string{name},
		References: []referenceScaffold{{
			Path:     "references/advanced.md",
			Triggers: []string{"advanced"},
		}},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to render frontmatter")
	}

	content := fmt.Sprintf("---\n%s---\n\n# %s\n\n## Instructions\n\nDescribe when and how to apply this skill.\n", front, name)
	if err := os.WriteFile(skillPath, []byte(content), 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write SKILL.md")
	}

	refPath := filepath.Join(bundleDir, "references", "advanced.md")
	refContent := fmt.Sprintf("# %s: advanced reference\n\nLoaded when the session mentions one of the trigger phrases.\n", name)
	if err := os.WriteFile(refPath, []byte(refContent), 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write reference template")
	}

	return skillPath, nil
}
