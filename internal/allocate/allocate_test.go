package allocate

import (
	"context"
	"errors"
	"testing"

	"github.com/printworks/relay/internal/supplier"
)

type fakeValidator struct {
	known map[string]bool
}

func (f *fakeValidator) ValidateUser(_ context.Context, username string) error {
	if f.known[username] {
		return nil
	}
	return errors.New("unknown user")
}

func TestAllocateStudents(t *testing.T) {
	entries := []supplier.BillingEntry{
		{Username: "A", Role: RoleStudent, Group: "X", Copies: 1, Extra: 2},
		{Username: "B", Role: RoleStudent, Group: "X", Copies: 2, Extra: 2},
	}
	validate := &fakeValidator{known: map[string]bool{"A": true, "B": true}}

	r := Allocate(context.Background(), entries, true, validate)

	if r.Total != 7 {
		t.Errorf("expected total 7, got %d", r.Total)
	}
	if r.GroupCopies["X"] != 7 {
		t.Errorf("expected group X copies 7, got %d", r.GroupCopies["X"])
	}
	if r.UserCopies["A"] != 3 {
		t.Errorf("expected user A copies 3, got %d", r.UserCopies["A"])
	}
	if r.UserCopies["B"] != 4 {
		t.Errorf("expected user B copies 4, got %d", r.UserCopies["B"])
	}
	if r.UserGroup["A"] != "X" || r.UserGroup["B"] != "X" {
		t.Errorf("expected both students mapped to group X, got %v", r.UserGroup)
	}
}

func TestAllocateChargeToGroupOnly(t *testing.T) {
	entries := []supplier.BillingEntry{
		{Username: "A", Role: RoleStudent, Group: "X", Copies: 2, Extra: 0},
	}

	// chargeToStudents off: the student's copies land on the group account
	// only, and the user is never validated.
	r := Allocate(context.Background(), entries, false, &fakeValidator{})

	if r.Total != 2 {
		t.Errorf("expected total 2, got %d", r.Total)
	}
	if len(r.UserCopies) != 0 {
		t.Errorf("expected no user copies, got %v", r.UserCopies)
	}
	if r.GroupCopies["X"] != 2 {
		t.Errorf("expected group X copies 2, got %d", r.GroupCopies["X"])
	}
}

func TestAllocateRejectsInvalidEntries(t *testing.T) {
	entries := []supplier.BillingEntry{
		{Username: "", Role: RoleStudent, Group: "X", Copies: 1},
		{Username: "A", Role: "", Group: "X", Copies: 1},
		{Username: "A", Role: "janitor", Group: "X", Copies: 1},
		{Username: "A", Role: RoleStudent, Group: "", Copies: 1},
	}

	r := Allocate(context.Background(), entries, true, &fakeValidator{known: map[string]bool{"A": true}})

	if r.Total != 0 {
		t.Errorf("expected total 0, got %d", r.Total)
	}
	if len(r.Skipped) != 4 {
		t.Errorf("expected 4 skipped entries, got %d: %v", len(r.Skipped), r.Skipped)
	}
	if specs := r.Transactions(1.0, "test"); specs != nil {
		t.Errorf("expected no transactions for zero total, got %d", len(specs))
	}
}

func TestAllocateUnknownUsersYieldZeroTotal(t *testing.T) {
	entries := []supplier.BillingEntry{
		{Username: "ghost1", Role: RoleTeacher, Copies: 1},
		{Username: "ghost2", Role: RoleStudent, Group: "X", Copies: 2},
	}

	r := Allocate(context.Background(), entries, true, &fakeValidator{})

	if r.Total != 0 {
		t.Errorf("expected total 0 for unknown users, got %d", r.Total)
	}
}

func TestAllocateSkipsZeroCopyEntries(t *testing.T) {
	entries := []supplier.BillingEntry{
		{Username: "A", Role: RoleTeacher, Copies: 0, Extra: 0},
		{Username: "B", Role: RoleTeacher, Copies: 1, Extra: 0},
	}
	validate := &fakeValidator{known: map[string]bool{"A": true, "B": true}}

	r := Allocate(context.Background(), entries, false, validate)

	if r.Total != 1 {
		t.Errorf("expected total 1, got %d", r.Total)
	}
	if _, ok := r.UserCopies["A"]; ok {
		t.Errorf("zero-copy entry must not appear in user copies")
	}
}

func TestTransactionsWeights(t *testing.T) {
	entries := []supplier.BillingEntry{
		{Username: "A", Role: RoleStudent, Group: "X", Copies: 1, Extra: 2},
		{Username: "B", Role: RoleStudent, Group: "X", Copies: 2, Extra: 2},
	}
	validate := &fakeValidator{known: map[string]bool{"A": true, "B": true}}
	r := Allocate(context.Background(), entries, true, validate)

	specs := r.Transactions(7.0, "doc")
	if len(specs) != 2 {
		t.Fatalf("expected 2 user transactions and no group remainder, got %d", len(specs))
	}
	for _, spec := range specs {
		if spec.WeightUnit != 7 {
			t.Errorf("expected weight unit 7, got %d", spec.WeightUnit)
		}
		wantAmount := -float64(spec.Weight)
		if spec.Amount != wantAmount {
			t.Errorf("account %s: expected amount %f, got %f", spec.AccountName, wantAmount, spec.Amount)
		}
	}
}

func TestTransactionsGroupRemainder(t *testing.T) {
	entries := []supplier.BillingEntry{
		{Username: "A", Role: RoleStudent, Group: "X", Copies: 3, Extra: 0},
		{Username: "T", Role: RoleTeacher, Copies: 1, Extra: 0},
	}
	validate := &fakeValidator{known: map[string]bool{"T": true}}

	// Students charged to the group: group X gets the full 3 copies, the
	// teacher is charged individually.
	r := Allocate(context.Background(), entries, false, validate)

	specs := r.Transactions(4.0, "doc")
	if len(specs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(specs))
	}

	var groupWeight, userWeight int
	for _, spec := range specs {
		switch spec.AccountName {
		case "X":
			groupWeight = spec.Weight
		case "T":
			userWeight = spec.Weight
		}
	}
	if groupWeight != 3 {
		t.Errorf("expected group weight 3, got %d", groupWeight)
	}
	if userWeight != 1 {
		t.Errorf("expected user weight 1, got %d", userWeight)
	}
}
