// Package policy holds the authorization predicates governing expense and
// user resources. Predicates are pure and never fail; callers map a false
// result to a Forbidden outcome.
package policy

import "github.com/expense-track/apiserver/types"

// OwnerOrAdminCollection decides access to an expense sub-collection
// addressed by owner username. Superusers bypass all scoping; everyone
// else may only address their own collection.
func OwnerOrAdminCollection(actor types.User, ownerUsername string) bool {
	if actor.IsSuperuser {
		return true
	}
	return actor.Username == ownerUsername
}

// OwnerOrAdminObject decides access to a single expense record.
// Superusers bypass ownership; everyone else must own the record.
func OwnerOrAdminObject(actor types.User, expense types.Expense) bool {
	if actor.IsSuperuser {
		return true
	}
	return expense.UserID == actor.ID
}

// ManagerOrAdmin decides access to user-account management. Staff and
// superusers may act on any user; regular users on none. The target
// identity is irrelevant to this predicate.
func ManagerOrAdmin(actor types.User) bool {
	if actor.IsSuperuser {
		return true
	}
	return actor.IsStaff
}
