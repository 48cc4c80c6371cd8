// Package symtab implements the block-structured symbol table. Scopes are
// kept in an arena and addressed by ScopeID; the active stack holds IDs, so
// a scope that has been left stays inspectable without taking part in
// lookup.
package symtab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xplshn/awc/pkg/token"
	"github.com/xplshn/awc/pkg/types"
)

// Allocator hands out frame offsets for declared variables.
type Allocator interface {
	Alloc() int
}

// Variable is a declared name together with its static type and frame slot.
type Variable struct {
	token.Token
	Type   types.Type
	Offset int
}

func (v *Variable) Name() string { return v.Value }

func (v *Variable) String() string {
	return fmt.Sprintf("%s %s %d", v.Type, v.Value, v.Offset)
}

type ScopeID int

type Scope struct {
	ID    ScopeID
	Level int
	Names []string // declaration order
	Vars  map[string]*Variable
}

func (s *Scope) Lookup(name string) (*Variable, bool) {
	v, ok := s.Vars[fold(name)]
	return v, ok
}

func (s *Scope) Len() int { return len(s.Names) }

type RedeclarationError struct {
	Name     string
	Scope    ScopeID
	Previous *Variable
}

func (e *RedeclarationError) Error() string {
	return fmt.Sprintf("'%s' already declared in scope %d", e.Name, e.Scope)
}

type UndeclaredNameError struct {
	Name string
}

func (e *UndeclaredNameError) Error() string {
	return fmt.Sprintf("'%s' not declared", e.Name)
}

type Table struct {
	arena   []*Scope
	active  []ScopeID
	retired []ScopeID
	frame   Allocator
}

// New creates a table whose outermost scope is already active.
func New(frame Allocator) *Table {
	t := &Table{frame: frame}
	t.EnterScope()
	return t
}

func fold(name string) string { return strings.ToLower(name) }

func (t *Table) current() *Scope { return t.arena[t.active[len(t.active)-1]] }

// EnterScope pushes a fresh empty scope and returns its ID.
func (t *Table) EnterScope() ScopeID {
	id := ScopeID(len(t.arena))
	t.arena = append(t.arena, &Scope{ID: id, Level: len(t.active), Vars: make(map[string]*Variable)})
	t.active = append(t.active, id)
	return id
}

// LeaveScope retires the innermost scope. Leaving the outermost scope is a
// no-op.
func (t *Table) LeaveScope() {
	if len(t.active) <= 1 {
		return
	}
	last := len(t.active) - 1
	t.retired = append(t.retired, t.active[last])
	t.active = t.active[:last]
}

// Depth is the number of active scopes, the outermost included.
func (t *Table) Depth() int { return len(t.active) }

// CurrentID is the ID of the innermost active scope.
func (t *Table) CurrentID() ScopeID { return t.active[len(t.active)-1] }

// Declare binds tok's name in the innermost scope. The frame slot is only
// allocated when the declaration succeeds.
func (t *Table) Declare(tok token.Token, typ types.Type) (*Variable, error) {
	scope := t.current()
	name := fold(tok.Value)
	if prev, ok := scope.Vars[name]; ok {
		return nil, &RedeclarationError{Name: name, Scope: scope.ID, Previous: prev}
	}
	tok.Value = name
	v := &Variable{Token: tok, Type: typ, Offset: t.frame.Alloc()}
	scope.Vars[name] = v
	scope.Names = append(scope.Names, name)
	return v, nil
}

// Resolve searches the active scopes from innermost to outermost.
func (t *Table) Resolve(name string) (*Variable, error) {
	if v, _, ok := t.lookupFrom(len(t.active)-1, name); ok {
		return v, nil
	}
	return nil, &UndeclaredNameError{Name: fold(name)}
}

// Shadows returns the binding in an enclosing scope that a declaration of
// name in the innermost scope would hide.
func (t *Table) Shadows(name string) (*Variable, bool) {
	v, _, ok := t.lookupFrom(len(t.active)-2, name)
	return v, ok
}

func (t *Table) lookupFrom(level int, name string) (*Variable, ScopeID, bool) {
	key := fold(name)
	for i := level; i >= 0; i-- {
		s := t.arena[t.active[i]]
		if v, ok := s.Vars[key]; ok {
			return v, s.ID, true
		}
	}
	return nil, 0, false
}

func (t *Table) Scope(id ScopeID) *Scope {
	if id < 0 || int(id) >= len(t.arena) {
		return nil
	}
	return t.arena[id]
}

// Active returns the active scopes, outermost first.
func (t *Table) Active() []*Scope { return t.collect(t.active) }

// Retired returns left scopes in the order they were left.
func (t *Table) Retired() []*Scope { return t.collect(t.retired) }

func (t *Table) collect(ids []ScopeID) []*Scope {
	out := make([]*Scope, len(ids))
	for i, id := range ids {
		out[i] = t.arena[id]
	}
	return out
}

// String lists the outermost scope followed by every non-empty retired scope.
func (t *Table) String() string {
	var sb strings.Builder
	writeScope := func(n int, s *Scope) {
		fmt.Fprintf(&sb, "Scope %d:\n", n)
		vars := make([]*Variable, 0, len(s.Vars))
		for _, name := range s.Names {
			vars = append(vars, s.Vars[name])
		}
		sort.SliceStable(vars, func(i, j int) bool { return vars[i].Offset > vars[j].Offset })
		for _, v := range vars {
			fmt.Fprintf(&sb, "    %s\n", v)
		}
	}
	writeScope(0, t.arena[t.active[0]])
	for i, s := range t.Retired() {
		if s.Len() > 0 {
			writeScope(i+1, s)
		}
	}
	return sb.String()
}
