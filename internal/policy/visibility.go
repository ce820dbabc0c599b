// Package policy decides which tickets and comments an actor may see or
// change. Every function is a pure predicate over snapshots.
package policy

import "github.com/spec-kit/ticket-tracker/internal/domain"

// Scope is the set of tickets an actor may list. A nil OwnerID means every
// ticket.
type Scope struct {
	OwnerID *int64
}

// Unrestricted reports whether the scope covers all tickets.
func (s Scope) Unrestricted() bool {
	return s.OwnerID == nil
}

// Includes reports whether the ticket falls inside the scope.
func (s Scope) Includes(ticket *domain.Ticket) bool {
	return s.OwnerID == nil || ticket.OwnerID == *s.OwnerID
}

// ListingScope returns the visibility scope for an actor: everything for
// staff, owned tickets otherwise.
func ListingScope(actor domain.Actor) Scope {
	if actor.IsStaff {
		return Scope{}
	}
	id := actor.ID
	return Scope{OwnerID: &id}
}

// CanList reports whether the ticket appears in the actor's listings.
func CanList(actor domain.Actor, ticket *domain.Ticket) bool {
	return ListingScope(actor).Includes(ticket)
}

// CanMutate reports whether the actor may update or delete the ticket.
func CanMutate(actor domain.Actor, ticket *domain.Ticket) bool {
	return actor.IsStaff || ticket.OwnerID == actor.ID
}

// SeesInternalComments reports whether internal comments are visible to the
// actor on any ticket they can reach.
func SeesInternalComments(actor domain.Actor) bool {
	return actor.IsStaff
}

// CanSeeComment reports whether the comment is visible to the actor.
func CanSeeComment(actor domain.Actor, comment *domain.Comment) bool {
	return !comment.IsInternal || SeesInternalComments(actor)
}

// CanCreateInternalComment is true only for staff.
func CanCreateInternalComment(actor domain.Actor) bool {
	return actor.IsStaff
}

// EffectiveInternal resolves the stored internal flag for a new comment.
// Requests from non-staff actors are downgraded rather than rejected.
func EffectiveInternal(actor domain.Actor, requested bool) bool {
	return requested && CanCreateInternalComment(actor)
}

// CanDeleteComment allows staff to delete any comment and other actors to
// delete their own visible comments on tickets they can list.
func CanDeleteComment(actor domain.Actor, ticket *domain.Ticket, comment *domain.Comment) bool {
	if actor.IsStaff {
		return true
	}
	return CanList(actor, ticket) && CanSeeComment(actor, comment) && comment.AuthorID == actor.ID
}
