package catalog

import "fmt"

// ParseError describes a malformed skill bundle. It is fatal for that entry
// only: the entry is skipped and reported, the rest of the catalog loads.
type ParseError struct {
	Path string // path to the offending SKILL.md
	Name string // skill name when known, empty otherwise
	Err  error
}

func (e *ParseError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("skill %q (%s): %v", e.Name, e.Path, e.Err)
	}
	return fmt.Sprintf("skill at %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
