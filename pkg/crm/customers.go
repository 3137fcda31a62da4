package crm

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
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

const (
	fieldPrimaryAgent   = rbac.FieldAssignedAgentID
	fieldAgents         = rbac.FieldAssignedAgents
	fieldAgentsAgentID  = rbac.FieldAssignedAgents + "." + rbac.FieldAgentID
	fieldSalesStatus    = "evaluation.salesStatus"
	fieldAssignedAt     = "assignment.assignedAt"
	fieldUpdatedAt      = "updatedAt"
	fieldUpdatedBy      = "updatedBy"
	fieldDeletedAt      = "deletedAt"
	fieldDeletedBy      = "deletedBy"
	fieldSessionVersion = "sessionVersion"
)

var customerSearchFields = []string{"fullName", "email", "phone"}

// ListOptions narrows a customer listing
type ListOptions struct {
	Page        int
	Limit       int
	Search      string
	SalesStatus string
}

// CustomerInput carries customer fields from a create or update request.
// Nil fields are left unchanged on update.
type CustomerInput struct {
	FullName    *string `json:"fullName"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	Source      *string `json:"source"`
	Destination *string `json:"destination"`
	SalesStatus *string `json:"salesStatus"`
	Priority    *string `json:"priority"`
	Notes       *string `json:"notes"`
}

// CustomerService manages customers within the caller's scope
type CustomerService struct {
	deps     Deps
	rules    *rbac.Rules
	settings *SettingsService
}

// List returns the page of customers visible to id
func (s *CustomerService) List(ctx context.Context, id *auth.Identity, opts ListOptions) (*Page[models.Customer], error) {
	if err := requirePermission(s.deps.Matrix, id,
		rbac.CustomerViewAll, rbac.CustomerViewOwn, rbac.CustomerViewAssigned); err != nil {
		return nil, err
	}
	if opts.SalesStatus != "" && !models.ValidSalesStatus(opts.SalesStatus) {
		return nil, invalid("unknown sales status %q", opts.SalesStatus)
	}

	filter := query.And(
		rbac.BuildCustomerQuery(id.Role, id.UserID),
		query.Contains(opts.Search, customerSearchFields...),
	)
	if opts.SalesStatus != "" {
		filter = query.And(filter, query.Eq(fieldSalesStatus, opts.SalesStatus))
	}

	page, limit := normalizePage(opts.Page, opts.Limit)
	total, err := s.deps.Store.CountDocuments(ctx, models.CollectionCustomers, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}

	customers := []models.Customer{}
	err = s.deps.Store.Find(ctx, models.CollectionCustomers, filter, storage.FindOptions{
		Sort:  []storage.SortField{{Field: rbac.FieldCreatedAt, Descending: true}},
		Skip:  skip(page, limit),
		Limit: int64(limit),
	}, &customers)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	return &Page[models.Customer]{Items: customers, Total: total, Page: page, Limit: limit}, nil
}

// Get returns one customer. Customers outside the caller's scope are reported
// as not found.
func (s *CustomerService) Get(ctx context.Context, id *auth.Identity, customerID string) (*models.Customer, error) {
	if err := requirePermission(s.deps.Matrix, id,
		rbac.CustomerViewAll, rbac.CustomerViewOwn, rbac.CustomerViewAssigned); err != nil {
		return nil, err
	}
	return s.load(ctx, id, customerID)
}

func (s *CustomerService) load(ctx context.Context, id *auth.Identity, customerID string) (*models.Customer, error) {
	var c models.Customer
	filter := query.And(storage.ByID(customerID), rbac.BuildCustomerQuery(id.Role, id.UserID))
	if err := s.deps.Store.FindOne(ctx, models.CollectionCustomers, filter, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a customer owned by the caller
func (s *CustomerService) Create(ctx context.Context, id *auth.Identity, in CustomerInput) (*models.Customer, error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.CustomerCreate); err != nil {
		return nil, err
	}
	if in.FullName == nil || strings.TrimSpace(*in.FullName) == "" {
		return nil, invalid("fullName is required")
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now().UTC()
	c := &models.Customer{
		ID:         uuid.NewString(),
		Evaluation: models.Evaluation{SalesStatus: models.SalesStatusNew},
		Assignment: models.Assignment{AssignedAgents: []models.AgentAssignee{}},
		CreatedBy:  id.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for field, v := range in.fields() {
		applyCustomerField(c, field, v)
	}

	if err := s.deps.Store.InsertOne(ctx, models.CollectionCustomers, c); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, conflict("customer already exists")
		}
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionCreate,
		EntityType:  audit.EntityCustomer,
		EntityID:    c.ID,
		EntityName:  c.FullName,
		Description: "Created customer " + c.FullName,
		Changes:     audit.Diff(nil, c),
	})
	return c, nil
}

// Update changes customer fields. Data-entry users may only edit customers
// they created, and only within the edit window; the window is re-checked in
// the update filter so an expiring window cannot race the write.
func (s *CustomerService) Update(ctx context.Context, id *auth.Identity, customerID string, in CustomerInput) (*models.Customer, error) {
	if err := requirePermission(s.deps.Matrix, id,
		rbac.CustomerEditAll, rbac.CustomerEditOwn15Min, rbac.CustomerEditAssigned); err != nil {
		return nil, err
	}
	before, err := s.load(ctx, id, customerID)
	if err != nil {
		return nil, err
	}
	if err := s.rules.EvaluateCustomerEdit(id.Role, id.UserID, before.AccessFacts()); err != nil {
		return nil, err
	}

	fields := in.fields()
	if len(fields) == 0 {
		return nil, invalid("no fields to update")
	}
	if in.FullName != nil && strings.TrimSpace(*in.FullName) == "" {
		return nil, invalid("fullName cannot be empty")
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	set := map[string]interface{}{
		fieldUpdatedAt: s.deps.Clock.Now().UTC(),
		fieldUpdatedBy: id.UserID,
	}
	for field, v := range fields {
		set[field] = v
	}

	filter := query.And(storage.ByID(customerID), rbac.BuildCustomerQuery(id.Role, id.UserID))
	if id.Role == rbac.RoleDataEntry {
		filter = query.And(filter, query.Gte(rbac.FieldCreatedAt, s.rules.EditWindowCutoff()))
	}

	var after models.Customer
	err = s.deps.Store.FindOneAndUpdate(ctx, models.CollectionCustomers, filter, storage.Update{Set: set}, &after)
	if errors.Is(err, storage.ErrNotFound) && id.Role == rbac.RoleDataEntry {
		return nil, rbac.Deny(rbac.ReasonEditWindowExpired, "the 15 minute edit window has expired")
	}
	if err != nil {
		return nil, err
	}

	changes := audit.Diff(before, &after)
	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionUpdate,
		EntityType:  audit.EntityCustomer,
		EntityID:    after.ID,
		EntityName:  after.FullName,
		Description: fmt.Sprintf("Updated customer %s (%d fields)", after.FullName, len(fields)),
		Changes:     changes,
	})
	return &after, nil
}

// Delete soft-deletes a customer
func (s *CustomerService) Delete(ctx context.Context, id *auth.Identity, customerID string) error {
	if err := requirePermission(s.deps.Matrix, id, rbac.CustomerDelete); err != nil {
		return err
	}
	before, err := s.load(ctx, id, customerID)
	if err != nil {
		return err
	}

	now := s.deps.Clock.Now().UTC()
	var after models.Customer
	err = s.deps.Store.FindOneAndUpdate(ctx, models.CollectionCustomers,
		query.And(storage.ByID(customerID), rbac.NotDeleted()),
		storage.Update{Set: map[string]interface{}{
			rbac.FieldIsDeleted: true,
			fieldDeletedAt:      now,
			fieldDeletedBy:      id.UserID,
			fieldUpdatedAt:      now,
			fieldUpdatedBy:      id.UserID,
		}}, &after)
	if err != nil {
		return err
	}

	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionDelete,
		EntityType:  audit.EntityCustomer,
		EntityID:    before.ID,
		EntityName:  before.FullName,
		Description: "Deleted customer " + before.FullName,
		Changes:     audit.Diff(before, &after),
	})
	return nil
}

// AssignAgent adds agentID to the customer's agents. The first agent assigned
// becomes the primary agent.
func (s *CustomerService) AssignAgent(ctx context.Context, id *auth.Identity, customerID, agentID string) (*models.Customer, error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.CustomerAssign); err != nil {
		return nil, err
	}
	if agentID == "" {
		return nil, invalid("agentId is required")
	}
	agent, err := s.assignableAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agentID == id.UserID && id.Role == rbac.RoleSuperAgent {
		settings, err := s.settings.current(ctx)
		if err != nil {
			return nil, err
		}
		if !settings.AllowSelfAssignment {
			return nil, rbac.Deny(rbac.ReasonRoleDenied, "self assignment is disabled")
		}
	}

	before, err := s.load(ctx, id, customerID)
	if err != nil {
		return nil, err
	}
	if before.AccessFacts().IsAssignedTo(agentID) {
		return nil, conflict("agent is already assigned to this customer")
	}

	now := s.deps.Clock.Now().UTC()
	update := storage.Update{Set: map[string]interface{}{
		fieldUpdatedAt: now,
		fieldUpdatedBy: id.UserID,
	}}
	if before.Assignment.AssignedAgentID == "" {
		update.Set[fieldPrimaryAgent] = agentID
		update.Set[fieldAssignedAt] = now
	}

	filter := query.And(storage.ByID(customerID), rbac.NotDeleted(), query.Ne(fieldPrimaryAgent, agentID))
	if hasAgentEntry(before, agentID) {
		// Reactivate the previous entry, provided it is still inactive.
		update.Set[fieldAgents] = reactivate(before.Assignment.AssignedAgents, agentID, id.UserID, now)
		filter = query.And(filter, query.ElemMatch(fieldAgents,
			query.Eq(rbac.FieldAgentID, agentID),
			query.Eq(rbac.FieldIsActive, false),
		))
	} else {
		update.Push = map[string]interface{}{fieldAgents: models.AgentAssignee{
			AgentID:    agentID,
			IsActive:   true,
			AssignedAt: now,
			AssignedBy: id.UserID,
		}}
		filter = query.And(filter, query.Ne(fieldAgentsAgentID, agentID))
	}

	var after models.Customer
	err = s.deps.Store.FindOneAndUpdate(ctx, models.CollectionCustomers, filter, update, &after)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, conflict("agent is already assigned to this customer")
	}
	if err != nil {
		return nil, err
	}

	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionAssign,
		EntityType:  audit.EntityCustomer,
		EntityID:    after.ID,
		EntityName:  after.FullName,
		Description: fmt.Sprintf("Assigned %s to customer %s", agent.Name, after.FullName),
		Changes:     audit.Diff(before, &after),
	})
	return &after, nil
}

// UnassignAgent removes agentID from the customer. When the primary agent is
// removed the next active agent, if any, is promoted.
func (s *CustomerService) UnassignAgent(ctx context.Context, id *auth.Identity, customerID, agentID string) (*models.Customer, error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.CustomerAssign); err != nil {
		return nil, err
	}
	before, err := s.load(ctx, id, customerID)
	if err != nil {
		return nil, err
	}
	if before.Assignment.AssignedAgentID != agentID && !hasAgentEntry(before, agentID) {
		return nil, storage.ErrNotFound
	}

	now := s.deps.Clock.Now().UTC()
	update := storage.Update{
		Set: map[string]interface{}{
			fieldUpdatedAt: now,
			fieldUpdatedBy: id.UserID,
		},
		Pull: map[string]query.Filter{fieldAgents: query.Eq(rbac.FieldAgentID, agentID)},
	}
	if before.Assignment.AssignedAgentID == agentID {
		update.Set[fieldPrimaryAgent] = nextPrimary(before, agentID)
	}

	filter := query.And(
		storage.ByID(customerID),
		rbac.NotDeleted(),
		query.Or(query.Eq(fieldPrimaryAgent, agentID), query.Eq(fieldAgentsAgentID, agentID)),
	)
	var after models.Customer
	err = s.deps.Store.FindOneAndUpdate(ctx, models.CollectionCustomers, filter, update, &after)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, conflict("agent was unassigned concurrently")
	}
	if err != nil {
		return nil, err
	}

	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionUnassign,
		EntityType:  audit.EntityCustomer,
		EntityID:    after.ID,
		EntityName:  after.FullName,
		Description: fmt.Sprintf("Unassigned agent %s from customer %s", agentID, after.FullName),
		Changes:     audit.Diff(before, &after),
	})
	return &after, nil
}

// EditWindow reports whether the caller can still edit the customer and, for
// data-entry users, how much of the window remains
func (s *CustomerService) EditWindow(ctx context.Context, id *auth.Identity, customerID string) (rbac.EditWindow, error) {
	c, err := s.Get(ctx, id, customerID)
	if err != nil {
		return rbac.EditWindow{}, err
	}
	facts := c.AccessFacts()
	if id.Role == rbac.RoleDataEntry {
		return s.rules.EditWindowRemaining(facts), nil
	}
	return rbac.EditWindow{CanEdit: s.rules.CanEditCustomer(id.Role, id.UserID, facts)}, nil
}

func (s *CustomerService) assignableAgent(ctx context.Context, agentID string) (*models.User, error) {
	var agent models.User
	err := s.deps.Store.FindOne(ctx, models.CollectionUsers,
		query.And(storage.ByID(agentID), rbac.NotDeleted()), &agent)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, invalid("agent %s does not exist", agentID)
	}
	if err != nil {
		return nil, err
	}
	if !agent.IsActive {
		return nil, invalid("agent %s is inactive", agentID)
	}
	if agent.Role != rbac.RoleAgent && agent.Role != rbac.RoleSuperAgent {
		return nil, invalid("user %s is not an agent", agentID)
	}
	return &agent, nil
}

func (s *CustomerService) validate(ctx context.Context, in CustomerInput) error {
	if in.Email != nil && *in.Email != "" {
		if _, err := mail.ParseAddress(*in.Email); err != nil {
			return invalid("invalid email %q", *in.Email)
		}
	}
	if in.SalesStatus != nil && !models.ValidSalesStatus(*in.SalesStatus) {
		return invalid("unknown sales status %q", *in.SalesStatus)
	}
	if in.Source != nil && *in.Source != "" {
		settings, err := s.settings.current(ctx)
		if err != nil {
			return err
		}
		if len(settings.LeadSources) > 0 && !slices.Contains(settings.LeadSources, *in.Source) {
			return invalid("unknown lead source %q", *in.Source)
		}
	}
	return nil
}

// fields maps the set input fields to their document paths
func (in CustomerInput) fields() map[string]interface{} {
	out := map[string]interface{}{}
	add := func(path string, v *string) {
		if v != nil {
			out[path] = strings.TrimSpace(*v)
		}
	}
	add("fullName", in.FullName)
	if in.Email != nil {
		out["email"] = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	add("phone", in.Phone)
	add("source", in.Source)
	add("destination", in.Destination)
	add(fieldSalesStatus, in.SalesStatus)
	add("evaluation.priority", in.Priority)
	add("evaluation.notes", in.Notes)
	return out
}

func applyCustomerField(c *models.Customer, path string, v interface{}) {
	s, _ := v.(string)
	switch path {
	case "fullName":
		c.FullName = s
	case "email":
		c.Email = s
	case "phone":
		c.Phone = s
	case "source":
		c.Source = s
	case "destination":
		c.Destination = s
	case fieldSalesStatus:
		c.Evaluation.SalesStatus = s
	case "evaluation.priority":
		c.Evaluation.Priority = s
	case "evaluation.notes":
		c.Evaluation.Notes = s
	}
}

func hasAgentEntry(c *models.Customer, agentID string) bool {
	for _, a := range c.Assignment.AssignedAgents {
		if a.AgentID == agentID {
			return true
		}
	}
	return false
}

func reactivate(agents []models.AgentAssignee, agentID, by string, now time.Time) []models.AgentAssignee {
	out := make([]models.AgentAssignee, len(agents))
	copy(out, agents)
	for i := range out {
		if out[i].AgentID == agentID {
			out[i].IsActive = true
			out[i].AssignedAt = now
			out[i].AssignedBy = by
		}
	}
	return out
}

func nextPrimary(c *models.Customer, removed string) string {
	for _, a := range c.Assignment.AssignedAgents {
		if a.IsActive && a.AgentID != removed {
			return a.AgentID
		}
	}
	return ""
}
