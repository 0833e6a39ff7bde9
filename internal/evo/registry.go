package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"sinevox/internal/genotype"
)

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
)

// OperatorFactory binds a mutation operator to the run's bounds.
type OperatorFactory func(bounds genotype.Bounds) Operator

var operatorRegistry = struct {
	mu sync.RWMutex
	m  map[string]OperatorFactory
}{
	m: builtinOperators(),
}

func builtinOperators() map[string]OperatorFactory {
	return map[string]OperatorFactory{
		OperatorAddGene: func(b genotype.Bounds) Operator {
			return AddGene{Bounds: b}
		},
		OperatorPerturbFrequency: func(b genotype.Bounds) Operator {
			return PerturbFrequency{Bounds: b}
		},
	}
}

// RegisterOperator makes an operator available to ResolveOperator.
func RegisterOperator(name string, factory OperatorFactory) error {
	if name == "" {
		return errors.New("operator name is required")
	}
	if factory == nil {
		return errors.New("operator factory is required")
	}

	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()

	if _, exists := operatorRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, name)
	}
	operatorRegistry.m[name] = factory
	return nil
}

// ResolveOperator returns the named operator bound to bounds. An empty name
// resolves to add_gene.
func ResolveOperator(name string, bounds genotype.Bounds) (Operator, error) {
	if name == "" {
		name = OperatorAddGene
	}

	operatorRegistry.mu.RLock()
	factory, ok := operatorRegistry.m[name]
	operatorRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	return factory(bounds), nil
}

func ListOperators() []string {
	operatorRegistry.mu.RLock()
	defer operatorRegistry.mu.RUnlock()

	names := make([]string, 0, len(operatorRegistry.m))
	for name := range operatorRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetOperatorRegistryForTests() {
	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()
	operatorRegistry.m = builtinOperators()
}
