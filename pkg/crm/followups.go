package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/query"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/storage"
)

// FollowupListOptions narrows a follow-up listing
type FollowupListOptions struct {
	Page       int
	Limit      int
	CustomerID string
}

// FollowupInput carries follow-up fields from a create or update request
type FollowupInput struct {
	CustomerID  string     `json:"customerId"`
	Channel     *string    `json:"channel"`
	Notes       *string    `json:"notes"`
	Outcome     *string    `json:"outcome"`
	NextDueAt   *time.Time `json:"nextDueAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// FollowupService manages follow-ups within the caller's scope
type FollowupService struct {
	deps     Deps
	settings *SettingsService
}

// List returns the page of follow-ups visible to id, newest first
func (s *FollowupService) List(ctx context.Context, id *auth.Identity, opts FollowupListOptions) (*Page[models.Followup], error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.FollowupViewAll, rbac.FollowupViewOwn); err != nil {
		return nil, err
	}

	filter := rbac.BuildFollowupQuery(id.Role, id.UserID)
	if opts.CustomerID != "" {
		filter = query.And(filter, query.Eq("customerId", opts.CustomerID))
	}

	page, limit := normalizePage(opts.Page, opts.Limit)
	total, err := s.deps.Store.CountDocuments(ctx, models.CollectionFollowups, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count followups: %w", err)
	}

	followups := []models.Followup{}
	err = s.deps.Store.Find(ctx, models.CollectionFollowups, filter, storage.FindOptions{
		Sort:  []storage.SortField{{Field: rbac.FieldCreatedAt, Descending: true}},
		Skip:  skip(page, limit),
		Limit: int64(limit),
	}, &followups)
	if err != nil {
		return nil, fmt.Errorf("failed to list followups: %w", err)
	}
	return &Page[models.Followup]{Items: followups, Total: total, Page: page, Limit: limit}, nil
}

// Get returns one follow-up within the caller's scope
func (s *FollowupService) Get(ctx context.Context, id *auth.Identity, followupID string) (*models.Followup, error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.FollowupViewAll, rbac.FollowupViewOwn); err != nil {
		return nil, err
	}
	return s.load(ctx, id, followupID)
}

func (s *FollowupService) load(ctx context.Context, id *auth.Identity, followupID string) (*models.Followup, error) {
	var f models.Followup
	filter := query.And(storage.ByID(followupID), rbac.BuildFollowupQuery(id.Role, id.UserID))
	if err := s.deps.Store.FindOne(ctx, models.CollectionFollowups, filter, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Create logs a follow-up by the caller against a customer the caller can see.
// Without an explicit due date the next follow-up is scheduled using the
// agency default.
func (s *FollowupService) Create(ctx context.Context, id *auth.Identity, in FollowupInput) (*models.Followup, error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.FollowupCreate); err != nil {
		return nil, err
	}
	if in.CustomerID == "" {
		return nil, invalid("customerId is required")
	}
	if in.Notes == nil || strings.TrimSpace(*in.Notes) == "" {
		return nil, invalid("notes are required")
	}

	var customer models.Customer
	err := s.deps.Store.FindOne(ctx, models.CollectionCustomers,
		query.And(storage.ByID(in.CustomerID), rbac.BuildCustomerQuery(id.Role, id.UserID)), &customer)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, invalid("customer %s not found", in.CustomerID)
	}
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now().UTC()
	f := &models.Followup{
		ID:          uuid.NewString(),
		CustomerID:  customer.ID,
		AgentID:     id.UserID,
		Notes:       strings.TrimSpace(*in.Notes),
		NextDueAt:   in.NextDueAt,
		CompletedAt: in.CompletedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Channel != nil {
		f.Channel = strings.TrimSpace(*in.Channel)
	}
	if in.Outcome != nil {
		f.Outcome = strings.TrimSpace(*in.Outcome)
	}
	if f.NextDueAt == nil && f.CompletedAt == nil {
		settings, err := s.settings.current(ctx)
		if err != nil {
			return nil, err
		}
		due := now.AddDate(0, 0, settings.DefaultFollowupDays)
		f.NextDueAt = &due
	}

	if err := s.deps.Store.InsertOne(ctx, models.CollectionFollowups, f); err != nil {
		return nil, fmt.Errorf("failed to create followup: %w", err)
	}

	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionCreate,
		EntityType:  audit.EntityFollowup,
		EntityID:    f.ID,
		EntityName:  customer.FullName,
		Description: "Logged follow-up for " + customer.FullName,
		Changes:     audit.Diff(nil, f),
	})
	return f, nil
}

// Update edits a follow-up. Agents may edit only their own; edit_all covers every record.
func (s *FollowupService) Update(ctx context.Context, id *auth.Identity, followupID string, in FollowupInput) (*models.Followup, error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.FollowupEditAll, rbac.FollowupEditOwn); err != nil {
		return nil, err
	}
	before, err := s.load(ctx, id, followupID)
	if err != nil {
		return nil, err
	}

	filter := query.And(storage.ByID(followupID), rbac.BuildFollowupQuery(id.Role, id.UserID))
	if !s.deps.Matrix.Allows(id.Role, rbac.FollowupEditAll) {
		if before.AgentID != id.UserID {
			return nil, rbac.Deny(rbac.ReasonNotOwner, "you can only edit your own follow-ups")
		}
		filter = query.And(filter, query.Eq(rbac.FieldAgentID, id.UserID))
	}

	set := map[string]interface{}{}
	if in.Notes != nil {
		notes := strings.TrimSpace(*in.Notes)
		if notes == "" {
			return nil, invalid("notes cannot be empty")
		}
		set["notes"] = notes
	}
	if in.Channel != nil {
		set["channel"] = strings.TrimSpace(*in.Channel)
	}
	if in.Outcome != nil {
		set["outcome"] = strings.TrimSpace(*in.Outcome)
	}
	if in.NextDueAt != nil {
		set["nextDueAt"] = in.NextDueAt.UTC()
	}
	if in.CompletedAt != nil {
		set["completedAt"] = in.CompletedAt.UTC()
	}
	if len(set) == 0 {
		return nil, invalid("no fields to update")
	}
	set[fieldUpdatedAt] = s.deps.Clock.Now().UTC()

	var after models.Followup
	if err := s.deps.Store.FindOneAndUpdate(ctx, models.CollectionFollowups, filter,
		storage.Update{Set: set}, &after); err != nil {
		return nil, err
	}

	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionUpdate,
		EntityType:  audit.EntityFollowup,
		EntityID:    after.ID,
		Description: "Updated follow-up",
		Changes:     audit.Diff(before, &after),
	})
	return &after, nil
}

// Delete removes a follow-up permanently
func (s *FollowupService) Delete(ctx context.Context, id *auth.Identity, followupID string) error {
	if err := requirePermission(s.deps.Matrix, id, rbac.FollowupDelete); err != nil {
		return err
	}
	before, err := s.load(ctx, id, followupID)
	if err != nil {
		return err
	}
	if err := s.deps.Store.DeleteOne(ctx, models.CollectionFollowups, followupID); err != nil {
		return err
	}

	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionDelete,
		EntityType:  audit.EntityFollowup,
		EntityID:    before.ID,
		Description: "Deleted follow-up",
		Changes:     audit.Diff(before, nil),
	})
	return nil
}
