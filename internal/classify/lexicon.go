package classify

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Lexicon is the set of text signals the classifier counts. Patterns are
// RE2 expressions matched case-insensitively.
type Lexicon struct {
	Decision    []string `yaml:"decision"`
	Speculative []string `yaml:"speculative"`
	Active      []string `yaml:"active"`
}

// DefaultLexicon returns the built-in signals.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Decision: []string{
			`\bdecided\b`,
			`\bdecision:`,
			`\blocked\b`,
			`\bchose\b`,
			`\bgoing with\b`,
			`\bconfirmed\b`,
			`\bfinal\b`,
			`\bcommitted to\b`,
			`\bwe will\b`,
			`\bwon't\b`,
			`\brejected\b`,
		},
		Speculative: []string{
			`\bconsidering\b`,
			`\bmight\b`,
			`\bmaybe\b`,
			`\bopen question\b`,
			`\bbrainstorm`,
			`\bsuggested\b`,
			`\bcould\b`,
			`\bexploring\b`,
			`\bwhat if\b`,
			`\btrade-?off`,
			`\balternative`,
			`\bpossibly\b`,
		},
		Active: []string{
			`\bin progress\b`,
			`\bcontinuation\b`,
			`\bnext step`,
		},
	}
}

// LoadLexicon reads a YAML lexicon file. Lists missing from the file keep
// their built-in defaults.
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("classify: read lexicon: %w", err)
	}
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return Lexicon{}, fmt.Errorf("classify: parse lexicon %s: %w", path, err)
	}
	def := DefaultLexicon()
	if len(lex.Decision) == 0 {
		lex.Decision = def.Decision
	}
	if len(lex.Speculative) == 0 {
		lex.Speculative = def.Speculative
	}
	if len(lex.Active) == 0 {
		lex.Active = def.Active
	}
	return lex, nil
}

type compiled struct {
	decision    []*regexp.Regexp
	speculative []*regexp.Regexp
	active      []*regexp.Regexp
}

func compileAll(kind string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("classify: %s pattern %q: %w", kind, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (l Lexicon) compile() (*compiled, error) {
	var (
		c   compiled
		err error
	)
	if c.decision, err = compileAll("decision", l.Decision); err != nil {
		return nil, err
	}
	if c.speculative, err = compileAll("speculative", l.Speculative); err != nil {
		return nil, err
	}
	if c.active, err = compileAll("active", l.Active); err != nil {
		return nil, err
	}
	return &c, nil
}
