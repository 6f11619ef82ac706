// Built-in policies.

package capability

import "context"

// Unsafe allows insert:all for everyone when enabled and abstains otherwise.
func Unsafe(enabled bool) Policy {
	return PolicyFunc(func(_ context.Context, q Query) Decision {
		if enabled && q.Action == ActionAll {
			return Allow
		}
		return Abstain
	})
}

// AllowBlock decides insert:all with an allow block.
//
// configured reports whether a block is present at all; without one the
// policy abstains, so a nil allow with configured set allows everyone.
func AllowBlock(allow any, configured bool) Policy {
	return PolicyFunc(func(_ context.Context, q Query) Decision {
		if !configured || q.Action != ActionAll {
			return Abstain
		}
		if ActorMatchesAllow(q.Actor, allow) {
			return Allow
		}
		return Deny
	})
}

// Rule grants an action to the actors matching Allow.
//
// Database and Table narrow the rule's scope; empty means any. A rule with a
// Table never matches database scoped actions.
type Rule struct {
	Action   Action `json:"action" yaml:"action" jsonschema:"enum=insert:all,enum=insert:insert-update,enum=insert:create-table,enum=insert:alter-table"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	Table    string `json:"table,omitempty" yaml:"table,omitempty"`
	Allow    any    `json:"allow,omitempty" yaml:"allow,omitempty"`
}

func (r *Rule) matches(q Query) bool {
	if r.Action != q.Action {
		return false
	}
	if r.Database != "" && r.Database != q.Database {
		return false
	}
	return r.Table == "" || r.Table == q.Table
}

// Rules decides with the first rule whose scope matches the query: Allow when
// the actor matches the rule's allow block, Deny otherwise.
func Rules(rules []Rule) Policy {
	return PolicyFunc(func(_ context.Context, q Query) Decision {
		for i := range rules {
			if !rules[i].matches(q) {
				continue
			}
			if ActorMatchesAllow(q.Actor, rules[i].Allow) {
				return Allow
			}
			return Deny
		}
		return Abstain
	})
}

// Static returns fixed decisions per action and abstains on the others.
func Static(decisions map[Action]bool) Policy {
	return PolicyFunc(func(_ context.Context, q Query) Decision {
		allowed, ok := decisions[q.Action]
		switch {
		case !ok:
			return Abstain
		case allowed:
			return Allow
		default:
			return Deny
		}
	})
}
