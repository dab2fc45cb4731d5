package workflow

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// RuleKind enumerates the primitive and composite rule forms.
type RuleKind string

const (
	RuleFieldExists      RuleKind = "field_exists"
	RuleFieldEquals      RuleKind = "field_equals"
	RuleFieldGreaterThan RuleKind = "field_greater_than"
	RuleFieldLessThan    RuleKind = "field_less_than"
	RuleAnd              RuleKind = "and"
	RuleOr               RuleKind = "or"
	RuleNot              RuleKind = "not"
)

// Rule is a boolean predicate tree over a resource's data/metadata.
// Primitive rules carry a dotted Path and, where relevant, a Value to
// compare against; composite rules carry Children. Rules are pure and
// side-effect-free: evaluate is a referentially transparent function of
// (rule, resource_data).
type Rule struct {
	Kind     RuleKind        `json:"kind" bson:"kind"`
	Path     string          `json:"path,omitempty" bson:"path,omitempty"`
	Value    json.RawMessage `json:"value,omitempty" bson:"value,omitempty"`
	Children []Rule          `json:"children,omitempty" bson:"children,omitempty"`
}

// RuleResult is the outcome of evaluating a Rule.
type RuleResult struct {
	Passed  bool            `json:"passed"`
	Reason  string          `json:"reason"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Evaluate runs rule against the given JSON document (typically a
// resource's marshaled data+metadata). Field paths are dotted; unknown
// paths evaluate to absent, which makes field_exists false, field_equals
// false, and the numeric comparisons false. Numeric comparisons coerce
// only between JSON numbers — never from strings.
func Evaluate(rule Rule, document []byte) RuleResult {
	switch rule.Kind {
	case RuleFieldExists:
		res := gjson.GetBytes(document, rule.Path)
		if res.Exists() {
			return RuleResult{Passed: true, Reason: rule.Path + " exists"}
		}
		return RuleResult{Passed: false, Reason: rule.Path + " does not exist"}

	case RuleFieldEquals:
		res := gjson.GetBytes(document, rule.Path)
		if !res.Exists() {
			return RuleResult{Passed: false, Reason: rule.Path + " does not exist"}
		}
		var want any
		_ = json.Unmarshal(rule.Value, &want)
		if equalJSON(res.Value(), want) {
			return RuleResult{Passed: true, Reason: rule.Path + " equals expected value"}
		}
		return RuleResult{Passed: false, Reason: rule.Path + " does not equal expected value"}

	case RuleFieldGreaterThan, RuleFieldLessThan:
		res := gjson.GetBytes(document, rule.Path)
		if !res.Exists() || res.Type != gjson.Number {
			return RuleResult{Passed: false, Reason: rule.Path + " is not a number"}
		}
		var want float64
		if err := json.Unmarshal(rule.Value, &want); err != nil {
			return RuleResult{Passed: false, Reason: "comparison value is not a number"}
		}
		got := res.Float()
		if rule.Kind == RuleFieldGreaterThan {
			if got > want {
				return RuleResult{Passed: true, Reason: rule.Path + " > threshold"}
			}
			return RuleResult{Passed: false, Reason: rule.Path + " <= threshold"}
		}
		if got < want {
			return RuleResult{Passed: true, Reason: rule.Path + " < threshold"}
		}
		return RuleResult{Passed: false, Reason: rule.Path + " >= threshold"}

	case RuleAnd:
		for _, child := range rule.Children {
			if r := Evaluate(child, document); !r.Passed {
				return RuleResult{Passed: false, Reason: "and short-circuited: " + r.Reason}
			}
		}
		return RuleResult{Passed: true, Reason: "all children passed"}

	case RuleOr:
		for _, child := range rule.Children {
			if r := Evaluate(child, document); r.Passed {
				return RuleResult{Passed: true, Reason: "or short-circuited: " + r.Reason}
			}
		}
		return RuleResult{Passed: false, Reason: "no child passed"}

	case RuleNot:
		if len(rule.Children) != 1 {
			return RuleResult{Passed: false, Reason: "not requires exactly one child"}
		}
		r := Evaluate(rule.Children[0], document)
		return RuleResult{Passed: !r.Passed, Reason: "negated: " + r.Reason}

	default:
		return RuleResult{Passed: false, Reason: "unknown rule kind: " + string(rule.Kind)}
	}
}

// EvaluateAll runs an ordered list of guard rules against a resource's
// document, short-circuiting on the first failure (B4: an empty list is
// always enabled).
func EvaluateAll(rules []Rule, document []byte) RuleResult {
	for _, r := range rules {
		res := Evaluate(r, document)
		if !res.Passed {
			return res
		}
	}
	return RuleResult{Passed: true, Reason: "no rules, or all rules passed"}
}

func equalJSON(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	return a == b
}
