package evo

import (
	"errors"
	"math/rand"
	"testing"

	"sinevox/internal/genotype"
	"sinevox/internal/waveform"
)

type noopOperator struct{}

func (noopOperator) Name() string { return "noop" }

func (noopOperator) Apply(_ *rand.Rand, _ *genotype.Individual, _ float64) bool {
	return false
}

func TestRegisterAndResolveOperator(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator("noop", func(genotype.Bounds) Operator { return noopOperator{} }); err != nil {
		t.Fatalf("register: %v", err)
	}

	op, err := ResolveOperator("noop", genotype.DefaultBounds(waveform.DefaultFormat()))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if op.Name() != "noop" {
		t.Fatalf("unexpected operator: %s", op.Name())
	}
}

func TestRegisterOperatorDuplicate(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	factory := func(genotype.Bounds) Operator { return noopOperator{} }
	if err := RegisterOperator(OperatorAddGene, factory); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists for builtin, got: %v", err)
	}
	if err := RegisterOperator("noop", factory); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := RegisterOperator("noop", factory); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists, got: %v", err)
	}
}

func TestRegisterOperatorValidation(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator("", func(genotype.Bounds) Operator { return noopOperator{} }); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterOperator("nil", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
}

func TestResolveOperatorDefaultsAndMissing(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	bounds := genotype.DefaultBounds(waveform.DefaultFormat())

	op, err := ResolveOperator("", bounds)
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if op.Name() != OperatorAddGene {
		t.Fatalf("expected default add_gene, got %s", op.Name())
	}

	if _, err := ResolveOperator("missing", bounds); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got: %v", err)
	}

	names := ListOperators()
	if len(names) != 2 || names[0] != OperatorAddGene || names[1] != OperatorPerturbFrequency {
		t.Fatalf("unexpected operator list: %v", names)
	}
}
