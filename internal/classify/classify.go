// Package classify labels entry text as decision, active, speculative or
// informational from literal lexicon signals.
package classify

import (
	"regexp"
	"sync/atomic"
)

// Class is the content class of a piece of text.
type Class string

const (
	Decision      Class = "decision"
	Active        Class = "active"
	Speculative   Class = "speculative"
	Informational Class = "informational"
)

// Classifier scores text against a Lexicon. The lexicon can be replaced at
// runtime; each Classify call sees one consistent lexicon.
type Classifier struct {
	lex atomic.Pointer[compiled]
}

// New compiles lex into a Classifier.
func New(lex Lexicon) (*Classifier, error) {
	c := &Classifier{}
	if err := c.Swap(lex); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns a Classifier over DefaultLexicon.
func Default() *Classifier {
	c, err := New(DefaultLexicon())
	if err != nil {
		panic(err)
	}
	return c
}

// Swap replaces the lexicon. On error the current lexicon stays in place.
func (c *Classifier) Swap(lex Lexicon) error {
	cl, err := lex.compile()
	if err != nil {
		return err
	}
	c.lex.Store(cl)
	return nil
}

func count(res []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range res {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}

// Scores returns the decision and speculative signal counts of text.
func (c *Classifier) Scores(text string) (decision, speculative int) {
	cl := c.lex.Load()
	return count(cl.decision, text), count(cl.speculative, text)
}

// Classify labels text. Decision wins ties with speculative; active and
// informational are only considered when neither scores higher.
func (c *Classifier) Classify(text string) Class {
	cl := c.lex.Load()
	decision := count(cl.decision, text)
	speculative := count(cl.speculative, text)

	switch {
	case decision > 0 && decision >= speculative:
		return Decision
	case speculative > 0 && speculative > decision:
		return Speculative
	}
	for _, re := range cl.active {
		if re.MatchString(text) {
			return Active
		}
	}
	return Informational
}
