// Package rules interprets validation-rule condition trees against lazily
// resolved facts. Evaluation is pure and fails closed: anything the
// interpreter does not understand or cannot resolve makes the rule
// unsatisfied, even beneath a NOT.
package rules

import (
	"sort"

	"github.com/utafrali/redeemables/internal/domain"
)

// Resolver supplies fact values. ok is false when the fact cannot be resolved.
type Resolver interface {
	Resolve(f Fact) (Value, bool)
}

// Facts is a static Resolver.
type Facts map[Fact]Value

// Resolve implements Resolver.
func (f Facts) Resolve(fact Fact) (Value, bool) {
	v, ok := f[fact]
	return v, ok
}

// Options tune evaluation.
type Options struct {
	// AudienceOnly skips order-dependent conditions: they neither pass nor
	// fail the rule.
	AudienceOnly bool
}

// Condition is one parsed comparison: fact op operand.
type Condition struct {
	Fact    Fact
	Op      Operator
	Operand Value
}

// clause is one rule id's conditions. A nil clause is malformed.
type clause []Condition

// Rule is a parsed validation rule, ready to evaluate.
type Rule struct {
	ID      string
	Error   *domain.RuleError
	clauses map[string]clause
	expr    node
	invalid bool
}

// Parse compiles a stored validation rule. Malformed parts are kept as
// unsatisfiable rather than rejected so the owning voucher fails closed.
func Parse(vr *domain.ValidationRule) *Rule {
	r := &Rule{
		ID:      vr.ID,
		Error:   vr.Error,
		clauses: make(map[string]clause, len(vr.Rules)),
	}
	for id, rc := range vr.Rules {
		r.clauses[id] = parseClause(rc)
	}

	if vr.Logic == "" {
		ids := make([]string, 0, len(vr.Rules))
		for id := range vr.Rules {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		var expr node
		for _, id := range ids {
			if expr == nil {
				expr = refNode{id: id}
				continue
			}
			expr = andNode{expr, refNode{id: id}}
		}
		r.expr = expr
		return r
	}

	expr, refs, err := parseLogic(vr.Logic)
	if err != nil {
		r.invalid = true
		return r
	}
	for _, id := range refs {
		if _, ok := r.clauses[id]; !ok {
			r.invalid = true
			return r
		}
	}
	r.expr = expr
	return r
}

func parseClause(rc domain.RuleCondition) clause {
	if len(rc.Conditions) == 0 {
		return nil
	}
	fact := Fact(rc.Fact)
	out := make(clause, 0, len(rc.Conditions))
	for op, raw := range rc.Conditions {
		v, err := ParseValue(raw)
		if err != nil {
			return nil
		}
		out = append(out, Condition{Fact: fact, Op: Operator(op), Operand: v})
	}
	return out
}

// Evaluate reports whether the rule is satisfied. A rule without conditions is
// satisfied, as is one whose conditions were all skipped. A condition on an
// unknown or unresolvable fact leaves the whole rule unsatisfied, whatever
// operators surround it.
func (r *Rule) Evaluate(res Resolver, opts Options) bool {
	if r.invalid {
		return false
	}
	if r.expr == nil {
		return true
	}
	v := r.expr.eval(func(id string) verdict {
		return r.clauses[id].verdict(res, opts)
	})
	return v == satisfied || v == skipped
}

func (c clause) verdict(res Resolver, opts Options) verdict {
	if c == nil {
		return unknown
	}
	out := skipped
	for _, cond := range c {
		out = combine(out, cond.verdict(res, opts), func(a, b bool) bool { return a && b })
	}
	return out
}

func (c Condition) verdict(res Resolver, opts Options) verdict {
	if !c.Fact.Known() || !c.Op.Known() {
		return unknown
	}
	if opts.AudienceOnly && c.Fact.OrderDependent() {
		return skipped
	}
	v, ok := res.Resolve(c.Fact)
	if !ok {
		return unknown
	}
	return verdictOf(Match(c.Op, v, c.Operand))
}
