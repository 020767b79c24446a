package operators

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// Registry stores registered operators by intent kind
type Registry struct {
	operators map[schemas.IntentKind]Operator
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		operators: make(map[schemas.IntentKind]Operator),
	}
}

// Register registers an operator in this registry
func (r *Registry) Register(op Operator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-registration replaces the previous operator
	r.operators[op.Kind()] = op
}

// Get retrieves the operator for an intent kind
func (r *Registry) Get(kind schemas.IntentKind) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operators[kind]
	if !ok {
		return nil, fmt.Errorf("no operator for intent '%s'", kind)
	}

	return op, nil
}

// Compile validates the intent and compiles it with the matching operator
func (r *Registry) Compile(ctx *CompileContext, intent schemas.Intent) (*Spec, error) {
	op, err := r.Get(intent.Kind)
	if err != nil {
		return nil, schemas.InvalidInputf("%v", err)
	}
	if err := op.Validate(intent); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = &CompileContext{}
	}
	return op.Compile(ctx, intent)
}

// Validate checks the intent against its operator, and the resources it
// needs against ctx, without compiling
func (r *Registry) Validate(ctx *CompileContext, intent schemas.Intent) error {
	op, err := r.Get(intent.Kind)
	if err != nil {
		return schemas.InvalidInputf("%v", err)
	}
	if err := op.Validate(intent); err != nil {
		return err
	}
	res, ok := op.(Resolver)
	if !ok {
		return nil
	}
	if ctx == nil {
		ctx = &CompileContext{}
	}
	return res.Resolve(ctx, intent)
}

// List returns all registered operators ordered by kind
func (r *Registry) List() []Operator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Operator, 0, len(r.operators))
	for _, op := range r.operators {
		result = append(result, op)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Kind() < result[j].Kind()
	})

	return result
}

// ListByCategory returns operators in a specific category
func (r *Registry) ListByCategory(category Category) []Operator {
	all := r.List()
	result := []Operator{}

	for _, op := range all {
		if op.Category() == category {
			result = append(result, op)
		}
	}

	return result
}
