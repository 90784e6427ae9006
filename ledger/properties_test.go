package ledger

import (
	"errors"
	"testing"
)

func TestPropertyIDAssignmentPerEcosystem(t *testing.T) {
	p := NewProperties()
	mainID, err := p.Create(EcosystemMain, PropertyMetadata{Name: "Main Coin", Issuer: alice})
	if err != nil {
		t.Fatalf("create main: %v", err)
	}
	if mainID != 1 {
		t.Fatalf("first main id = %d", mainID)
	}
	testID, err := p.Create(EcosystemTest, PropertyMetadata{Name: "Test Coin", Issuer: alice})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	if testID != TestEcosystemFirstProperty {
		t.Fatalf("first test id = %d", testID)
	}
	second, err := p.Create(EcosystemMain, PropertyMetadata{Name: "Main Two", Issuer: alice})
	if err != nil {
		t.Fatalf("create second main: %v", err)
	}
	if second != 2 {
		t.Fatalf("second main id = %d", second)
	}
}

func TestEcosystemOf(t *testing.T) {
	if EcosystemOf(1) != EcosystemMain {
		t.Fatalf("property 1 not in main ecosystem")
	}
	if EcosystemOf(TestEcosystemFirstProperty) != EcosystemTest {
		t.Fatalf("first test property not in test ecosystem")
	}
}

func TestGetMissingProperty(t *testing.T) {
	p := NewProperties()
	if _, err := p.Get(42); !errors.Is(err, ErrPropertyNotFound) {
		t.Fatalf("expected ErrPropertyNotFound, got %v", err)
	}
}

func TestAddTotalRejectsNegativeSupply(t *testing.T) {
	p := NewProperties()
	id, err := p.Create(EcosystemMain, PropertyMetadata{Name: "Managed", Issuer: alice, Managed: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := p.AddTotal(id, 100); err != nil {
		t.Fatalf("grant supply: %v", err)
	}
	if err := p.AddTotal(id, -101); !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("expected ErrAmountOutOfRange, got %v", err)
	}
}

func TestPropertyRollbackUndoesCreationAndReusesID(t *testing.T) {
	p := NewProperties()
	p.BeginBlock(5)
	id, err := p.Create(EcosystemMain, PropertyMetadata{Name: "Doomed", Issuer: alice})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := p.RollbackTo(5); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if p.Exists(id) {
		t.Fatalf("property survived rollback")
	}
	p.BeginBlock(5)
	again, err := p.Create(EcosystemMain, PropertyMetadata{Name: "Replacement", Issuer: alice})
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if again != id {
		t.Fatalf("id not reused after rollback: %d vs %d", again, id)
	}
}

func TestPropertyRollbackRestoresMetadata(t *testing.T) {
	p := NewProperties()
	id, err := p.Create(EcosystemMain, PropertyMetadata{Name: "Stable", Issuer: alice})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p.BeginBlock(9)
	meta, _ := p.Get(id)
	meta.Issuer = bob
	if err := p.Update(meta); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := p.RollbackTo(9); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	restored, _ := p.Get(id)
	if restored.Issuer != alice {
		t.Fatalf("issuer not restored: %s", restored.Issuer)
	}
}
