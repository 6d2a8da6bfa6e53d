// Package policy decides whether a customer may re-run the redirect step for
// an order. Rules are govaluate expressions evaluated in priority order; the
// first matching rule's decision wins and the default is to allow.
package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/checkout-gateway/internal/order"
)

// RePostGracePeriod is the minimum order age before the redirect step may be
// repeated.
const RePostGracePeriod = 5 * time.Second

// Expression parameters available to rules.
const (
	ParamSecondsSinceCreated = "seconds_since_created"
	ParamPaymentStatus       = "payment_status"
	ParamAmount              = "amount"
	ParamGateway             = "gateway"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	AllowRePost bool
	RuleID      string // matching rule, empty for the default decision
}

// Rule is a single policy rule.
type Rule struct {
	ID         string
	Expression string // govaluate expression, must yield a boolean
	Priority   int    // lower runs first
	Decision   Decision
}

type compiledRule struct {
	Rule
	expr *govaluate.EvaluableExpression
}

// RetryPolicy evaluates re-post rules.
type RetryPolicy struct {
	rules []compiledRule
}

// DefaultRules deny re-posting inside the grace period and for paid orders.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:         "already_paid",
			Expression: ParamPaymentStatus + " == '" + string(order.PaymentStatusPaid) + "'",
			Priority:   1,
			Decision:   Decision{AllowRePost: false},
		},
		{
			ID:         "grace_period",
			Expression: fmt.Sprintf("%s < %g", ParamSecondsSinceCreated, RePostGracePeriod.Seconds()),
			Priority:   2,
			Decision:   Decision{AllowRePost: false},
		},
	}
}

// NewRetryPolicy compiles rules. It fails on the first rule that is empty or
// does not parse.
func NewRetryPolicy(rules []Rule) (*RetryPolicy, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Expression == "" {
			return nil, fmt.Errorf("policy rule ID '%s' has an empty expression", r.ID)
		}
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule ID '%s': %w", r.ID, err)
		}
		cr := compiledRule{Rule: r, expr: expr}
		cr.Decision.RuleID = r.ID
		compiled = append(compiled, cr)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority < compiled[j].Priority
	})
	return &RetryPolicy{rules: compiled}, nil
}

// MustDefault returns the policy built from DefaultRules.
func MustDefault() *RetryPolicy {
	p, err := NewRetryPolicy(DefaultRules())
	if err != nil {
		panic(err)
	}
	return p
}

// Params builds the expression parameters for an order at a given time.
func Params(o *order.Order, gatewayName string, now time.Time) map[string]interface{} {
	amount, _ := o.OrderTotal.Float64()
	return map[string]interface{}{
		ParamSecondsSinceCreated: now.Sub(o.CreatedOnUTC).Seconds(),
		ParamPaymentStatus:       string(o.PaymentStatus),
		ParamAmount:              amount,
		ParamGateway:             gatewayName,
	}
}

// Evaluate returns the decision of the first matching rule.
func (p *RetryPolicy) Evaluate(params map[string]interface{}) (Decision, error) {
	for _, r := range p.rules {
		res, err := r.expr.Evaluate(params)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to evaluate rule ID '%s': %w", r.ID, err)
		}
		matched, ok := res.(bool)
		if !ok {
			return Decision{}, fmt.Errorf("rule ID '%s' did not evaluate to a boolean, got %T", r.ID, res)
		}
		if matched {
			return r.Decision, nil
		}
	}
	return Decision{AllowRePost: true}, nil
}

// CanRePost evaluates the policy for an order.
func (p *RetryPolicy) CanRePost(o *order.Order, gatewayName string, now time.Time) (Decision, error) {
	return p.Evaluate(Params(o, gatewayName, now))
}
