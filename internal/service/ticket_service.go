package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/classifier"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/policy"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/stats"
	"github.com/spec-kit/ticket-tracker/internal/ticketview"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

const maxTitleLength = 200

// BulkUpdateFields are the only keys a bulk update may carry.
var BulkUpdateFields = []string{"status", "priority", "category", "assigned_to"}

// CSVHeader is the first row of a ticket export.
var CSVHeader = []string{"ID", "Title", "Category", "Priority", "Status", "Owner", "Created", "Due Date"}

// Metrics receives service level counters.
type Metrics interface {
	RecordBulkUpdate(count int64)
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	users      repository.UserRepository
	classifier *classifier.Bridge
	dispatcher events.Dispatcher
	metrics    Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	UserRepo    repository.UserRepository
	Classifier  *classifier.Bridge
	Dispatcher  events.Dispatcher
	Metrics     Metrics
	Logger      *zap.Logger
	Clock       func() time.Time
}

// TicketRecord is a ticket plus the values derived for the caller.
type TicketRecord struct {
	domain.Ticket
	IsOverdue    bool
	CommentCount int
}

// TicketDetail adds the comments visible to the caller.
type TicketDetail struct {
	TicketRecord
	Comments []domain.Comment
}

// TicketCreateInput describes ticket creation payload. Empty enum fields take
// their defaults.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    string
	Priority    string
	Status      string
	AssigneeID  *int64
	DueDate     *string
	Attachment  *string
}

// TicketPatch carries a partial update. Nil pointers are left unchanged; the
// *Set flags distinguish an explicit null from an absent field.
type TicketPatch struct {
	Title         *string
	Description   *string
	Category      *string
	Priority      *string
	Status        *string
	AssigneeSet   bool
	AssigneeID    *int64
	DueDateSet    bool
	DueDate       *string
	AttachmentSet bool
	Attachment    *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		users:      deps.UserRepo,
		classifier: deps.Classifier,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// List returns the actor's view of tickets.
func (s *TicketService) List(ctx context.Context, actor domain.Actor, params ticketview.Params) ([]TicketRecord, error) {
	tickets, err := s.tickets.List(ctx, policy.ListingScope(actor), params)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].ID
	}
	counts, err := s.comments.CountByTickets(ctx, ids, policy.SeesInternalComments(actor))
	if err != nil {
		return nil, err
	}
	now := s.now()
	records := make([]TicketRecord, len(tickets))
	for i := range tickets {
		records[i] = TicketRecord{
			Ticket:       tickets[i],
			IsOverdue:    tickets[i].IsOverdue(now),
			CommentCount: counts[tickets[i].ID],
		}
	}
	return records, nil
}

// Get returns a ticket with its visible comments.
func (s *TicketService) Get(ctx context.Context, actor domain.Actor, id int64) (*TicketDetail, error) {
	ticket, err := s.visibleTicket(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, actor, ticket)
}

// Create opens a ticket owned by the actor.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*TicketDetail, error) {
	fieldErrors := map[string]any{}
	ticket := &domain.Ticket{
		OwnerID:     actor.ID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Category:    domain.CategoryGeneral,
		Priority:    domain.PriorityMedium,
		Status:      domain.StatusOpen,
		Attachment:  input.Attachment,
	}

	validateTitle(ticket.Title, fieldErrors)
	if ticket.Description == "" {
		fieldErrors["description"] = "This field is required."
	}
	if input.Category != "" {
		ticket.Category = parseField(fieldErrors, "category", input.Category, domain.ParseCategory)
	}
	if input.Priority != "" {
		ticket.Priority = parseField(fieldErrors, "priority", input.Priority, domain.ParsePriority)
	}
	if input.Status != "" {
		ticket.Status = parseField(fieldErrors, "status", input.Status, domain.ParseStatus)
	}
	ticket.DueDate = parseDueDate(fieldErrors, input.DueDate)
	if input.AssigneeID != nil {
		if err := s.checkAssignee(ctx, fieldErrors, *input.AssigneeID); err != nil {
			return nil, err
		}
		ticket.AssigneeID = input.AssigneeID
	}
	if len(fieldErrors) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", fieldErrors)
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.New(events.EventTicketCreated, ticket.ID, actor, s.now(), events.TicketCreatedPayload{
		Category: ticket.Category,
		Priority: ticket.Priority,
		Title:    ticket.Title,
	}))
	return s.detail(ctx, actor, ticket)
}

// Update applies a partial update. The owner never changes.
func (s *TicketService) Update(ctx context.Context, actor domain.Actor, id int64, patch TicketPatch) (*TicketDetail, error) {
	ticket, err := s.mutableTicket(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	oldStatus := ticket.Status
	fieldErrors := map[string]any{}
	changed := []string{}

	if patch.Title != nil {
		ticket.Title = strings.TrimSpace(*patch.Title)
		validateTitle(ticket.Title, fieldErrors)
		changed = append(changed, "title")
	}
	if patch.Description != nil {
		ticket.Description = strings.TrimSpace(*patch.Description)
		if ticket.Description == "" {
			fieldErrors["description"] = "This field may not be blank."
		}
		changed = append(changed, "description")
	}
	if patch.Category != nil {
		ticket.Category = parseField(fieldErrors, "category", *patch.Category, domain.ParseCategory)
		changed = append(changed, "category")
	}
	if patch.Priority != nil {
		ticket.Priority = parseField(fieldErrors, "priority", *patch.Priority, domain.ParsePriority)
		changed = append(changed, "priority")
	}
	if patch.Status != nil {
		ticket.Status = parseField(fieldErrors, "status", *patch.Status, domain.ParseStatus)
		changed = append(changed, "status")
	}
	if patch.AssigneeSet {
		if patch.AssigneeID != nil {
			if err := s.checkAssignee(ctx, fieldErrors, *patch.AssigneeID); err != nil {
				return nil, err
			}
		}
		ticket.AssigneeID = patch.AssigneeID
		changed = append(changed, "assigned_to")
	}
	if patch.DueDateSet {
		ticket.DueDate = parseDueDate(fieldErrors, patch.DueDate)
		changed = append(changed, "due_date")
	}
	if patch.AttachmentSet {
		ticket.Attachment = patch.Attachment
		changed = append(changed, "attachment")
	}
	if len(fieldErrors) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", fieldErrors)
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, notFound("ticket", err)
	}
	payload := events.TicketUpdatedPayload{Fields: changed}
	if ticket.Status != oldStatus {
		newStatus := ticket.Status
		payload.OldStatus = &oldStatus
		payload.NewStatus = &newStatus
	}
	s.publishEvent(ctx, events.New(events.EventTicketUpdated, ticket.ID, actor, s.now(), payload))
	return s.detail(ctx, actor, ticket)
}

// Delete removes a ticket and, through the store, its comments.
func (s *TicketService) Delete(ctx context.Context, actor domain.Actor, id int64) error {
	ticket, err := s.mutableTicket(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		return notFound("ticket", err)
	}
	s.publishEvent(ctx, events.New(events.EventTicketDeleted, ticket.ID, actor, s.now(), events.TicketDeletedPayload{
		Title: ticket.Title,
	}))
	return nil
}

// Stats aggregates the actor's filtered view at call time.
func (s *TicketService) Stats(ctx context.Context, actor domain.Actor, params ticketview.Params) (stats.Report, error) {
	params.Sort = ticketview.SortDefault
	tickets, err := s.tickets.List(ctx, policy.ListingScope(actor), params)
	if err != nil {
		return stats.Report{}, err
	}
	return stats.Compute(tickets, s.now()), nil
}

// BulkUpdate applies whitelisted fields to the tickets in ids that the actor
// can list. Unknown keys in updates are dropped.
func (s *TicketService) BulkUpdate(ctx context.Context, actor domain.Actor, ids []int64, updates map[string]any) (int64, error) {
	filtered := make(map[string]any, len(updates))
	for _, key := range BulkUpdateFields {
		if v, ok := updates[key]; ok {
			filtered[key] = v
		}
	}
	if len(ids) == 0 || len(filtered) == 0 {
		return 0, apperrors.NewValidationError("ids and updates required", nil)
	}

	fields, fieldErrors, err := s.bulkFields(ctx, filtered)
	if err != nil {
		return 0, err
	}
	if len(fieldErrors) > 0 {
		return 0, apperrors.NewValidationError("invalid updates", fieldErrors)
	}

	updated, err := s.tickets.BulkUpdate(ctx, policy.ListingScope(actor), dedupeIDs(ids), fields)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.RecordBulkUpdate(updated)
	}

	keys := make([]string, 0, len(filtered))
	for _, key := range BulkUpdateFields {
		if _, ok := filtered[key]; ok {
			keys = append(keys, key)
		}
	}
	s.publishEvent(ctx, events.New(events.EventTicketsBulkUpdated, 0, actor, s.now(), events.TicketsBulkUpdatedPayload{
		RequestedIDs: ids,
		Fields:       keys,
		Updated:      updated,
	}))
	return updated, nil
}

// ExportCSV writes the actor's view as CSV. Created timestamps use the
// service clock's location.
func (s *TicketService) ExportCSV(ctx context.Context, actor domain.Actor, params ticketview.Params, w io.Writer) error {
	tickets, err := s.tickets.List(ctx, policy.ListingScope(actor), params)
	if err != nil {
		return err
	}
	loc := s.now().Location()

	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, t := range tickets {
		dueDate := ""
		if t.DueDate != nil {
			dueDate = t.DueDate.Format(domain.DateLayout)
		}
		if err := writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			t.Title,
			string(t.Category),
			string(t.Priority),
			string(t.Status),
			t.OwnerUsername,
			t.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			dueDate,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Classify suggests a category and priority for a description.
func (s *TicketService) Classify(ctx context.Context, description string) (classifier.Classification, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return classifier.Classification{}, apperrors.NewValidationError("description is required", map[string]any{
			"description": "This field is required.",
		})
	}
	result, ok := s.classifier.Classify(ctx, description)
	if !ok {
		return classifier.Classification{}, apperrors.NewServiceUnavailable("classification unavailable")
	}
	return result, nil
}

// SuggestReply drafts a reply for a ticket the actor can see.
func (s *TicketService) SuggestReply(ctx context.Context, actor domain.Actor, id int64) (string, error) {
	ticket, err := s.visibleTicket(ctx, actor, id)
	if err != nil {
		return "", err
	}
	reply, ok := s.classifier.SuggestReply(ctx, ticket.Title, ticket.Description, string(ticket.Category))
	if !ok {
		return "", apperrors.NewServiceUnavailable("suggestion unavailable")
	}
	return reply, nil
}

func (s *TicketService) visibleTicket(ctx context.Context, actor domain.Actor, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("ticket", err)
	}
	if !policy.CanList(actor, ticket) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	return ticket, nil
}

func (s *TicketService) mutableTicket(ctx context.Context, actor domain.Actor, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("ticket", err)
	}
	if !policy.CanMutate(actor, ticket) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	return ticket, nil
}

func (s *TicketService) detail(ctx context.Context, actor domain.Actor, ticket *domain.Ticket) (*TicketDetail, error) {
	comments, err := s.comments.ListByTicket(ctx, ticket.ID, policy.SeesInternalComments(actor))
	if err != nil {
		return nil, err
	}
	return &TicketDetail{
		TicketRecord: TicketRecord{
			Ticket:       *ticket,
			IsOverdue:    ticket.IsOverdue(s.now()),
			CommentCount: len(comments),
		},
		Comments: comments,
	}, nil
}

// checkAssignee records a field error for an unknown user. Storage failures
// are returned as is.
func (s *TicketService) checkAssignee(ctx context.Context, fieldErrors map[string]any, id int64) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			fieldErrors["assigned_to"] = fmt.Sprintf("user %d does not exist", id)
			return nil
		}
		s.logger.Warn("assignee lookup failed", zap.Int64("user_id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *TicketService) bulkFields(ctx context.Context, updates map[string]any) (repository.BulkFields, map[string]any, error) {
	var fields repository.BulkFields
	fieldErrors := map[string]any{}

	if raw, ok := updates["status"]; ok {
		if v, ok := parseAny(raw, domain.ParseStatus); ok {
			fields.Status = &v
		} else {
			fieldErrors["status"] = fmt.Sprintf("%v is not a valid choice", raw)
		}
	}
	if raw, ok := updates["priority"]; ok {
		if v, ok := parseAny(raw, domain.ParsePriority); ok {
			fields.Priority = &v
		} else {
			fieldErrors["priority"] = fmt.Sprintf("%v is not a valid choice", raw)
		}
	}
	if raw, ok := updates["category"]; ok {
		if v, ok := parseAny(raw, domain.ParseCategory); ok {
			fields.Category = &v
		} else {
			fieldErrors["category"] = fmt.Sprintf("%v is not a valid choice", raw)
		}
	}
	if raw, ok := updates["assigned_to"]; ok {
		if raw == nil {
			fields.ClearAssignee = true
		} else if id, ok := userIDValue(raw); ok {
			if err := s.checkAssignee(ctx, fieldErrors, id); err != nil {
				return fields, nil, err
			}
			fields.AssigneeID = &id
		} else {
			fieldErrors["assigned_to"] = fmt.Sprintf("%v is not a valid user id", raw)
		}
	}
	return fields, fieldErrors, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func validateTitle(title string, fieldErrors map[string]any) {
	switch {
	case title == "":
		fieldErrors["title"] = "This field is required."
	case utf8.RuneCountInString(title) > maxTitleLength:
		fieldErrors["title"] = fmt.Sprintf("Ensure this field has no more than %d characters.", maxTitleLength)
	}
}

func parseField[T ~string](fieldErrors map[string]any, name, raw string, parse func(string) (T, bool)) T {
	v, ok := parse(strings.TrimSpace(raw))
	if !ok {
		fieldErrors[name] = fmt.Sprintf("%q is not a valid choice", raw)
	}
	return v
}

func parseAny[T ~string](raw any, parse func(string) (T, bool)) (T, bool) {
	s, ok := raw.(string)
	if !ok {
		var zero T
		return zero, false
	}
	return parse(strings.TrimSpace(s))
}

func parseDueDate(fieldErrors map[string]any, raw *string) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	d, err := time.Parse(domain.DateLayout, strings.TrimSpace(*raw))
	if err != nil {
		fieldErrors["due_date"] = "Date has wrong format. Use YYYY-MM-DD."
		return nil
	}
	return &d
}

// userIDValue accepts the shapes a decoded JSON id can take.
func userIDValue(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || v < 1 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	case json.Number:
		id, err := v.Int64()
		return id, err == nil && id > 0
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil && id > 0
	default:
		return 0, false
	}
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func notFound(resource string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, nil)
	}
	return err
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
