package coupon

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// ClaimRule says how a coupon with a given scope may be claimed. It is a
// closed set: Claim, ChooseCategory, Unavailable and Removed.
type ClaimRule interface {
	claimRule()
}

// Match selects which coupon field a Claim compares with the target.
type Match string

const (
	MatchAny      Match = "any"      // applies to every product
	MatchCategory Match = "category" // product category must equal coupon.Category
	MatchProduct  Match = "product"  // product id must equal coupon.ProductID
)

// ClaimSpec parameterizes a Claim.
type ClaimSpec struct {
	Match Match
}

// Claim is a directly claimable scope.
type Claim struct {
	Spec ClaimSpec
}

// ChooseCategory applies to products in any of Options.
type ChooseCategory struct {
	Options []string
}

// Unavailable is a known scope that cannot be claimed right now.
type Unavailable struct {
	Reason string
}

// Removed is a retired scope kept so old coupons resolve deterministically.
type Removed struct{}

func (Claim) claimRule()          {}
func (ChooseCategory) claimRule() {}
func (Unavailable) claimRule()    {}
func (Removed) claimRule()        {}

// ClaimRules is the lookup table from normalized scope to rule.
type ClaimRules struct {
	rules map[string]ClaimRule
}

// DefaultClaimRules holds the built-in scopes and their common aliases.
func DefaultClaimRules() *ClaimRules {
	global := Claim{Spec: ClaimSpec{Match: MatchAny}}
	return &ClaimRules{rules: map[string]ClaimRule{
		ScopeGlobal:   global,
		"all":         global,
		"sitewide":    global,
		ScopeCategory: Claim{Spec: ClaimSpec{Match: MatchCategory}},
		ScopeProduct:  Claim{Spec: ClaimSpec{Match: MatchProduct}},
	}}
}

// Resolve returns the rule for scope. Unknown scopes are Unavailable.
func (r *ClaimRules) Resolve(scope string) ClaimRule {
	if rule, ok := r.rules[NormalizeScope(scope)]; ok {
		return rule
	}
	return Unavailable{Reason: "unknown scope"}
}

// Scopes lists the configured scope keys in sorted order.
func (r *ClaimRules) Scopes() []string {
	return slices.Sorted(maps.Keys(r.rules))
}

// With returns a copy of r with scope bound to rule.
func (r *ClaimRules) With(scope string, rule ClaimRule) *ClaimRules {
	next := &ClaimRules{rules: maps.Clone(r.rules)}
	next.rules[NormalizeScope(scope)] = rule
	return next
}

type claimRuleFile struct {
	Rules []claimRuleEntry `yaml:"rules"`
}

type claimRuleEntry struct {
	Scope          string   `yaml:"scope"`
	Claim          string   `yaml:"claim"`
	ChooseCategory []string `yaml:"choose_category"`
	Unavailable    string   `yaml:"unavailable"`
	Removed        bool     `yaml:"removed"`
}

// LoadClaimRules reads business scopes from YAML and layers them over the
// defaults. Each entry names exactly one rule kind:
//
//	rules:
//	  - scope: streaming
//	    choose_category: [video, music]
//	  - scope: partner-launch
//	    claim: product
//	  - scope: gaming
//	    unavailable: catalog paused
//	  - scope: legacy_bundle
//	    removed: true
func LoadClaimRules(r io.Reader) (*ClaimRules, error) {
	var file claimRuleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidClaimRules, err)
	}

	rules := DefaultClaimRules()
	for i, e := range file.Rules {
		rule, err := e.rule()
		if err != nil {
			return nil, errors.Join(ErrInvalidClaimRules, fmt.Errorf("rules[%d] %q: %w", i, e.Scope, err))
		}
		rules.rules[NormalizeScope(e.Scope)] = rule
	}
	return rules, nil
}

func (e claimRuleEntry) rule() (ClaimRule, error) {
	if NormalizeScope(e.Scope) == "" {
		return nil, errors.New("scope is required")
	}

	var out []ClaimRule
	if e.Claim != "" {
		switch m := Match(e.Claim); m {
		case MatchAny, MatchCategory, MatchProduct:
			out = append(out, Claim{Spec: ClaimSpec{Match: m}})
		case ScopeGlobal:
			out = append(out, Claim{Spec: ClaimSpec{Match: MatchAny}})
		default:
			return nil, fmt.Errorf("unknown claim match %q", e.Claim)
		}
	}
	if len(e.ChooseCategory) > 0 {
		opts := make([]string, 0, len(e.ChooseCategory))
		for _, c := range e.ChooseCategory {
			opts = append(opts, NormalizeScope(c))
		}
		out = append(out, ChooseCategory{Options: opts})
	}
	if e.Unavailable != "" {
		out = append(out, Unavailable{Reason: e.Unavailable})
	}
	if e.Removed {
		out = append(out, Removed{})
	}

	if len(out) != 1 {
		return nil, errors.New("exactly one of claim, choose_category, unavailable, removed is required")
	}
	return out[0], nil
}

// check applies a resolved rule to a coupon and target.
func check(rule ClaimRule, c *Coupon, t Target) *Rejection {
	switch r := rule.(type) {
	case Claim:
		switch r.Spec.Match {
		case MatchAny:
			return nil
		case MatchCategory:
			if c.Category != nil && NormalizeScope(*c.Category) == NormalizeScope(t.Category) {
				return nil
			}
			return reject(ReasonScopeMismatch, "category")
		case MatchProduct:
			if c.ProductID != nil && *c.ProductID == t.ProductID {
				return nil
			}
			return reject(ReasonScopeMismatch, "product")
		}
		return reject(ReasonCouponInvalid, "unsupported claim")
	case ChooseCategory:
		if slices.Contains(r.Options, NormalizeScope(t.Category)) {
			return nil
		}
		return reject(ReasonScopeMismatch, "category not offered")
	case Unavailable:
		return reject(ReasonCouponInvalid, r.Reason)
	case Removed:
		return reject(ReasonCouponInvalid, "scope removed")
	}
	return reject(ReasonCouponInvalid, "unknown claim rule")
}
