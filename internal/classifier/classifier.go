// Package classifier maps a decoded notification onto a single order
// status.
//
// Matching runs in two phases. The subject is tested first; if exactly one
// status matches, it wins outright. Otherwise the body is tested too and
// the highest-priority status among all matches is returned.
package classifier

import (
	"fmt"
	"regexp"

	"github.com/tracyhatemice/orderwatch/internal/message"
	"github.com/tracyhatemice/orderwatch/internal/order"
	"github.com/tracyhatemice/orderwatch/internal/textnorm"
)

// Phase tells which pass decided a classification.
type Phase string

const (
	PhaseNone    Phase = "none"
	PhaseSubject Phase = "subject"
	PhaseBody    Phase = "body"
)

// Match is one status that fired, with the rule that made it fire.
type Match struct {
	Status order.Status
	Field  string // "subject" or "body"
	Rule   Rule
}

// Result is the outcome of ClassifyDetail.
type Result struct {
	Status  order.Status
	Phase   Phase
	Matches []Match
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

type ruleSet struct {
	masks []*regexp.Regexp
	rules []compiledRule
}

// Classifier is safe for concurrent use.
type Classifier struct {
	sets map[order.Status]ruleSet
}

// New compiles a rule table. Statuses without rules never match.
func New(t Table) (*Classifier, error) {
	c := &Classifier{sets: make(map[order.Status]ruleSet, len(t.Rules))}

	for st, rules := range t.Rules {
		if !st.Valid() {
			return nil, fmt.Errorf("rules for unknown status %d", int(st))
		}
		set := ruleSet{}
		for _, r := range rules {
			re, err := compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %q for %s: %w", r.Pattern, st, err)
			}
			set.rules = append(set.rules, compiledRule{Rule: r, re: re})
		}
		for _, m := range t.Masks[st] {
			re, err := compile(m)
			if err != nil {
				return nil, fmt.Errorf("mask %q for %s: %w", m, st, err)
			}
			set.masks = append(set.masks, re)
		}
		c.sets[st] = set
	}

	for st := range t.Masks {
		if _, ok := t.Rules[st]; !ok {
			return nil, fmt.Errorf("masks for %s without rules", st)
		}
	}

	return c, nil
}

// Default returns a classifier built from DefaultTable.
func Default() *Classifier {
	c, err := New(DefaultTable())
	if err != nil {
		panic(err)
	}
	return c
}

func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`\b` + pattern)
}

// Classify returns the status of d, or order.Unclassified.
func (c *Classifier) Classify(d *message.Decoded) order.Status {
	return c.ClassifyDetail(d).Status
}

// ClassifyDetail is Classify with the evidence attached.
func (c *Classifier) ClassifyDetail(d *message.Decoded) Result {
	subject := c.match("subject", d.Subject)
	if len(subject) == 1 {
		return Result{Status: subject[0].Status, Phase: PhaseSubject, Matches: subject}
	}

	all := append(subject, c.match("body", d.Body)...)
	if len(all) == 0 {
		return Result{Status: order.Unclassified, Phase: PhaseNone}
	}

	candidates := make([]order.Status, len(all))
	for i, m := range all {
		candidates[i] = m.Status
	}
	return Result{Status: order.Highest(candidates), Phase: PhaseBody, Matches: all}
}

// match tests every status, in priority order, against the folded text.
// At most one Match is reported per status.
func (c *Classifier) match(field, text string) []Match {
	if text == "" {
		return nil
	}
	folded := textnorm.Fold(text)

	var out []Match
	for _, st := range order.Statuses() {
		set, ok := c.sets[st]
		if !ok {
			continue
		}
		if r, ok := set.first(folded); ok {
			out = append(out, Match{Status: st, Field: field, Rule: r})
		}
	}
	return out
}

func (s ruleSet) first(text string) (Rule, bool) {
	for _, m := range s.masks {
		text = m.ReplaceAllString(text, " ")
	}
	for _, r := range s.rules {
		if r.re.MatchString(text) {
			return r.Rule, true
		}
	}
	return Rule{}, false
}
