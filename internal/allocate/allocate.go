// Package allocate turns a document's billing entries into validated copy
// sums and weighted ledger transaction descriptors.
package allocate

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/ledger"
	"github.com/printworks/relay/internal/supplier"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleStaff   = "staff"
)

// isIndividualRole reports whether the role is always charged to the person
// rather than to a shared group account.
func isIndividualRole(role string) bool {
	return role == RoleTeacher || role == RoleStaff
}

func isKnownRole(role string) bool {
	return role == RoleStudent || isIndividualRole(role)
}

// UserValidator confirms that a charged user can be billed: present in the
// local ledger (or lazily provisioned) and, when quota integration is
// active, known to the quota backend.
type UserValidator interface {
	ValidateUser(ctx context.Context, username string) error
}

// Result is the validated allocation for one document. Total is zero when
// every entry failed validation; the caller must then abort the job.
type Result struct {
	Total       int               `json:"total"`
	UserCopies  map[string]int    `json:"user_copies"`
	GroupCopies map[string]int    `json:"group_copies"`
	UserGroup   map[string]string `json:"user_group"`

	// Skipped collects one reason per rejected entry for the admin feed.
	Skipped []string `json:"skipped,omitempty"`
}

// Allocate walks the billing entries in document order, applying the
// validation rules per entry and accumulating copy sums.
func Allocate(ctx context.Context, entries []supplier.BillingEntry, chargeToStudents bool, validate UserValidator) *Result {
	r := &Result{
		UserCopies:  make(map[string]int),
		GroupCopies: make(map[string]int),
		UserGroup:   make(map[string]string),
	}

	for i, entry := range entries {
		if reason := rejectEntry(entry); reason != "" {
			r.skip(i, entry.Username, reason)
			continue
		}

		chargeToUser := isIndividualRole(entry.Role) || chargeToStudents

		if chargeToUser && validate != nil {
			if err := validate.ValidateUser(ctx, entry.Username); err != nil {
				r.skip(i, entry.Username, err.Error())
				continue
			}
		}

		n := entry.Copies + entry.Extra
		if n == 0 {
			continue
		}

		r.Total += n
		if chargeToUser {
			r.UserCopies[entry.Username] += n
		}
		if strings.TrimSpace(entry.Group) != "" {
			r.GroupCopies[entry.Group] += n
			if entry.Role == RoleStudent {
				r.UserGroup[entry.Username] = entry.Group
			}
		}
	}

	return r
}

func rejectEntry(entry supplier.BillingEntry) string {
	if strings.TrimSpace(entry.Username) == "" {
		return "blank username"
	}
	if strings.TrimSpace(entry.Role) == "" {
		return "blank role"
	}
	if !isKnownRole(entry.Role) {
		return fmt.Sprintf("unknown role %q", entry.Role)
	}
	if entry.Role == RoleStudent && strings.TrimSpace(entry.Group) == "" {
		return "student entry without group"
	}
	if entry.Copies < 0 || entry.Extra < 0 {
		return "negative copy count"
	}
	return ""
}

func (r *Result) skip(index int, username, reason string) {
	msg := fmt.Sprintf("billing entry %d (%s): %s", index, username, reason)
	log.Printf("[allocate] skipped %s", msg)
	r.Skipped = append(r.Skipped, msg)
}

// Transactions produces the weighted ledger transaction set for this
// allocation: one per charged user, and one per group for the copies not
// attributable to an individual. Weight is the entity's copies; weight unit
// is the document total, so weight/unit yields the per-copy share of cost.
func (r *Result) Transactions(totalCost float64, narrative string) []ledger.TxSpec {
	if r.Total == 0 {
		return nil
	}

	var specs []ledger.TxSpec
	perCopy := totalCost / float64(r.Total)

	attributed := make(map[string]int)
	for user, copies := range r.UserCopies {
		specs = append(specs, ledger.TxSpec{
			AccountName: user,
			Kind:        db.AccountUser,
			Amount:      -perCopy * float64(copies),
			Weight:      copies,
			WeightUnit:  r.Total,
			Narrative:   narrative,
		})
		if group, ok := r.UserGroup[user]; ok {
			attributed[group] += copies
		}
	}

	for group, copies := range r.GroupCopies {
		remainder := copies - attributed[group]
		if remainder <= 0 {
			continue
		}
		specs = append(specs, ledger.TxSpec{
			AccountName: group,
			Kind:        db.AccountGroup,
			Amount:      -perCopy * float64(remainder),
			Weight:      remainder,
			WeightUnit:  r.Total,
			Narrative:   narrative,
		})
	}

	return specs
}
