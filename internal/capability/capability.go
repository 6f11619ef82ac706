// Package capability decides what an actor may do to a table.
//
// A write needs up to three capabilities: writing rows into an existing table,
// creating a missing table and widening a table's schema. Each maps to an
// action queried through an ordered pipeline of policies. The first policy
// that does not abstain decides; when all abstain the action is denied.
//
// The coarse action insert:all grants all three at once. Only when it is not
// allowed are the fine-grained actions queried individually.
package capability

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Action names a permission that policies decide on.
type Action string

const (
	// ActionAll grants every capability on every table of a database.
	ActionAll Action = "insert:all"
	// ActionInsertUpdate allows writing rows into an existing table.
	ActionInsertUpdate Action = "insert:insert-update"
	// ActionCreateTable allows creating a table in a database.
	ActionCreateTable Action = "insert:create-table"
	// ActionAlterTable allows adding columns to an existing table.
	ActionAlterTable Action = "insert:alter-table"
)

// Actions lists every known action.
var Actions = []Action{ActionAll, ActionInsertUpdate, ActionCreateTable, ActionAlterTable}

// Capabilities is what a caller may do to one table, resolved per request.
type Capabilities struct {
	WriteExisting bool
	CreateTable   bool
	WidenSchema   bool
}

// All returns capabilities with everything allowed.
func All() Capabilities {
	return Capabilities{WriteExisting: true, CreateTable: true, WidenSchema: true}
}

// Query is one permission question.
//
// Table is empty for database scoped actions (insert:all and
// insert:create-table).
type Query struct {
	Actor    Actor
	Action   Action
	Database string
	Table    string
}

// Decision is a policy's answer to a Query.
type Decision int

const (
	// Abstain defers to the next policy.
	Abstain Decision = iota
	// Allow grants the action.
	Allow
	// Deny refuses the action.
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "abstain"
	}
}

// Policy answers permission queries.
type Policy interface {
	Decide(ctx context.Context, q Query) Decision
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, q Query) Decision

// Decide implements Policy.
func (f PolicyFunc) Decide(ctx context.Context, q Query) Decision {
	return f(ctx, q)
}

// Pipeline is an ordered list of policies.
type Pipeline []Policy

// Decide returns the first non-abstaining decision, or Abstain.
func (p Pipeline) Decide(ctx context.Context, q Query) Decision {
	for _, policy := range p {
		if d := policy.Decide(ctx, q); d != Abstain {
			return d
		}
	}
	return Abstain
}

// Allowed reports whether the pipeline allows q. Abstention is a denial.
func (p Pipeline) Allowed(ctx context.Context, q Query) bool {
	return p.Decide(ctx, q) == Allow
}

// Gate resolves capabilities against a pipeline that can be replaced while
// requests are in flight.
type Gate struct {
	pipeline atomic.Pointer[Pipeline]
}

// NewGate returns a Gate consulting policies in order.
func NewGate(policies ...Policy) *Gate {
	g := &Gate{}
	g.Swap(policies...)
	return g
}

// Swap replaces the pipeline. Requests already resolving keep the old one.
func (g *Gate) Swap(policies ...Policy) {
	p := Pipeline(policies)
	g.pipeline.Store(&p)
}

// Resolve returns what actor may do to table in database.
func (g *Gate) Resolve(ctx context.Context, actor Actor, database, table string) Capabilities {
	p := *g.pipeline.Load()
	if p.Allowed(ctx, Query{Actor: actor, Action: ActionAll, Database: database}) {
		return All()
	}
	c := Capabilities{
		WriteExisting: p.Allowed(ctx, Query{Actor: actor, Action: ActionInsertUpdate, Database: database, Table: table}),
		CreateTable:   p.Allowed(ctx, Query{Actor: actor, Action: ActionCreateTable, Database: database}),
		WidenSchema:   p.Allowed(ctx, Query{Actor: actor, Action: ActionAlterTable, Database: database, Table: table}),
	}
	slog.DebugContext(ctx, "Resolved capabilities", "actor", actor.ID(), "db", database, "table", table,
		"write", c.WriteExisting, "create", c.CreateTable, "alter", c.WidenSchema)
	return c
}
