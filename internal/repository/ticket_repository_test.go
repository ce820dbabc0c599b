package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/policy"
	"github.com/spec-kit/ticket-tracker/internal/ticketview"
)

func TestBuildWhere_ScopeAndFilters(t *testing.T) {
	owner := int64(7)
	assignee := int64(3)
	category := domain.CategoryBilling
	status := domain.StatusOpen

	where, args := buildWhere(policy.Scope{OwnerID: &owner}, ticketview.Params{
		Category:   &category,
		Status:     &status,
		AssigneeID: &assignee,
		Search:     "  Disk_Full%  ",
	})

	assert.Equal(t, "1=1 AND t.owner_id=$1 AND t.category=$2 AND t.status=$3 AND t.assigned_to_id=$4 AND "+
		"(LOWER(t.title) LIKE $5 OR LOWER(t.description) LIKE $5)", where)
	assert.Equal(t, []any{int64(7), "billing", "open", int64(3), `%disk\_full\%%`}, args)
}

func TestBuildWhere_StaffScopeHasNoOwnerClause(t *testing.T) {
	where, args := buildWhere(policy.Scope{}, ticketview.Params{})
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)
}

func TestOrderBy(t *testing.T) {
	assert.Contains(t, orderBy(ticketview.SortPriority), "WHEN 'critical' THEN 0")
	assert.Equal(t, "t.created_at ASC, t.id ASC", orderBy(ticketview.SortOldest))
	assert.Equal(t, "t.due_date ASC NULLS LAST, t.created_at DESC, t.id DESC", orderBy(ticketview.SortDueDate))
	assert.Equal(t, "t.created_at DESC, t.id DESC", orderBy(ticketview.SortDefault))
}

func TestBuildBulkUpdate(t *testing.T) {
	owner := int64(2)
	status := domain.StatusClosed
	ids := []int64{1, 2}

	query, args := buildBulkUpdate(policy.Scope{OwnerID: &owner}, ids, BulkFields{Status: &status, ClearAssignee: true})
	assert.Equal(t, "UPDATE tickets SET status=$1, assigned_to_id=NULL, updated_at=NOW() WHERE id = ANY($2) AND owner_id=$3", query)
	assert.Equal(t, []any{"closed", ids, int64(2)}, args)

	assignee := int64(9)
	query, args = buildBulkUpdate(policy.Scope{}, ids, BulkFields{AssigneeID: &assignee})
	assert.Equal(t, "UPDATE tickets SET assigned_to_id=$1, updated_at=NOW() WHERE id = ANY($2)", query)
	assert.Equal(t, []any{int64(9), ids}, args)
}

func TestBulkFields_Empty(t *testing.T) {
	assert.True(t, BulkFields{}.Empty())
	assert.False(t, BulkFields{ClearAssignee: true}.Empty())
}
