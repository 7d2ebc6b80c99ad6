// Package lock parses and evaluates boolean permission expressions that gate
// player actions. Evaluation is pure: a Subject is only ever read, and any
// parse or evaluation failure denies access rather than propagating.
package lock

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeniedMessage is the generic denial shown when a lock check fails and no
// custom message is configured for the access type.
const DeniedMessage = "You can't do that."

// Subject is the read-only view of a character a lock is evaluated against.
type Subject interface {
	Role() string
	HasItem(key string) bool
	HasItemCategory(category string) bool
	ItemCount() int
	InRoom(key string) bool
}

// Lock is a permission declaration on a prototype. Content may declare it as
// a single expression string (applies to every access type) or as a mapping
// from access type to expression with an optional "default" fallback.
type Lock struct {
	Expr     string            // plain-string form; empty if ByAccess is used
	ByAccess map[string]string // per-access-type form
	Messages map[string]string // optional denial message per access type
}

// IsZero reports whether no restriction is declared at all.
func (l *Lock) IsZero() bool {
	return l == nil || (l.Expr == "" && len(l.ByAccess) == 0)
}

// UnmarshalYAML accepts both the plain-string and the mapping form.
func (l *Lock) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&l.Expr)
	case yaml.MappingNode:
		return value.Decode(&l.ByAccess)
	default:
		return fmt.Errorf("lock must be a string or a mapping")
	}
}

// resolve picks the expression for an access type: exact key, then "default",
// then the plain-string form, else empty (no restriction).
func (l *Lock) resolve(accessType string) string {
	if l == nil {
		return ""
	}
	if len(l.ByAccess) > 0 {
		if expr, ok := l.ByAccess[accessType]; ok {
			return expr
		}
		if expr, ok := l.ByAccess["default"]; ok {
			return expr
		}
	}
	return l.Expr
}

// denialFor returns the configured denial message for an access type, or the
// generic message.
func (l *Lock) denialFor(accessType string) string {
	if l != nil {
		if msg, ok := l.Messages[accessType]; ok && msg != "" {
			return msg
		}
		if msg, ok := l.Messages["default"]; ok && msg != "" {
			return msg
		}
	}
	return DeniedMessage
}

// Evaluator evaluates lock expressions against subjects using a fixed role
// hierarchy and a closed predicate set. It never executes content as code.
type Evaluator struct {
	roles *Roles
}

// NewEvaluator creates an evaluator over the given role hierarchy.
func NewEvaluator(roles *Roles) *Evaluator {
	if roles == nil {
		roles = DefaultRoles()
	}
	return &Evaluator{roles: roles}
}

// Roles returns the evaluator's role hierarchy.
func (e *Evaluator) Roles() *Roles { return e.roles }

// Evaluate checks whether subject passes the lock for the given access type.
// An empty or absent expression always allows. Malformed expressions, unknown
// predicates, and evaluation failures fail closed: (false, message), never a
// panic or an error to the caller.
func (e *Evaluator) Evaluate(subject Subject, l *Lock, accessType string) (bool, string) {
	if accessType == "" {
		accessType = "default"
	}
	expr := l.resolve(accessType)
	if strings.TrimSpace(expr) == "" {
		return true, ""
	}

	tree, err := Parse(expr)
	if err != nil {
		log.Printf("LOCK: malformed expression %q: %v", expr, err)
		return false, l.denialFor(accessType)
	}
	ok, err := e.eval(subject, tree)
	if err != nil {
		log.Printf("LOCK: evaluating %q: %v", expr, err)
		return false, l.denialFor(accessType)
	}
	if !ok {
		return false, l.denialFor(accessType)
	}
	return true, ""
}

// Check is Evaluate for a bare expression string with no per-access plumbing.
func (e *Evaluator) Check(subject Subject, expr string) bool {
	ok, _ := e.Evaluate(subject, &Lock{Expr: expr}, "default")
	return ok
}

// Validate parses every expression in the lock, for boot-time content checks.
func (l *Lock) Validate() error {
	if l == nil {
		return nil
	}
	if l.Expr != "" {
		if _, err := Parse(l.Expr); err != nil {
			return fmt.Errorf("lock expression %q: %w", l.Expr, err)
		}
	}
	for access, expr := range l.ByAccess {
		if _, err := Parse(expr); err != nil {
			return fmt.Errorf("lock expression for %q (%q): %w", access, expr, err)
		}
	}
	return nil
}

func (e *Evaluator) eval(subject Subject, n *node) (bool, error) {
	if n == nil {
		return true, nil
	}
	switch n.op {
	case opAnd:
		left, err := e.eval(subject, n.left)
		if err != nil || !left {
			return false, err
		}
		return e.eval(subject, n.right)
	case opOr:
		left, err := e.eval(subject, n.left)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return e.eval(subject, n.right)
	case opNot:
		sub, err := e.eval(subject, n.left)
		if err != nil {
			return false, err
		}
		return !sub, nil
	case opCall:
		return e.predicate(subject, n.name, n.arg)
	}
	return false, fmt.Errorf("bad node op %d", n.op)
}

// predicate dispatches one call against the closed predicate set.
func (e *Evaluator) predicate(subject Subject, name, arg string) (bool, error) {
	switch name {
	case "role":
		return e.roles.Satisfies(subject.Role(), arg)
	case "has_item":
		if arg == "" {
			return false, fmt.Errorf("has_item requires an item key")
		}
		return subject.HasItem(arg), nil
	case "has_item_category":
		if arg == "" {
			return false, fmt.Errorf("has_item_category requires a category")
		}
		return subject.HasItemCategory(arg), nil
	case "item_count":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("item_count argument %q is not a number", arg)
		}
		return subject.ItemCount() >= n, nil
	case "in_room":
		if arg == "" {
			return false, fmt.Errorf("in_room requires a room key")
		}
		return subject.InRoom(arg), nil
	}
	return false, fmt.Errorf("unknown predicate %q", name)
}
