package crm

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/query"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/storage"
)

// UserListOptions narrows a user listing
type UserListOptions struct {
	Page   int
	Limit  int
	Search string
	Role   rbac.Role
}

// CreateUserInput is a new staff account
type CreateUserInput struct {
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     rbac.Role `json:"role"`
	Password string    `json:"password"`
}

// UpdateUserInput carries a partial account update
type UpdateUserInput struct {
	Name     *string    `json:"name"`
	Email    *string    `json:"email"`
	Role     *rbac.Role `json:"role"`
	IsActive *bool      `json:"isActive"`
}

// PasswordChange sets a new password. CurrentPassword is required when
// users change their own password.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UserService manages staff accounts
type UserService struct {
	deps Deps
}

// List returns the page of non-deleted accounts
func (s *UserService) List(ctx context.Context, id *auth.Identity, opts UserListOptions) (*Page[models.User], error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.UserViewAll); err != nil {
		return nil, err
	}

	filter := query.And(rbac.NotDeleted(), query.Contains(opts.Search, "name", "email"))
	if opts.Role != "" {
		if !opts.Role.IsValid() {
			return nil, invalid("unknown role %q", opts.Role)
		}
		filter = query.And(filter, query.Eq("role", string(opts.Role)))
	}

	page, limit := normalizePage(opts.Page, opts.Limit)
	total, err := s.deps.Store.CountDocuments(ctx, models.CollectionUsers, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	users := []models.User{}
	err = s.deps.Store.Find(ctx, models.CollectionUsers, filter, storage.FindOptions{
		Sort:  []storage.SortField{{Field: "name"}},
		Skip:  skip(page, limit),
		Limit: int64(limit),
	}, &users)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return &Page[models.User]{Items: users, Total: total, Page: page, Limit: limit}, nil
}

// Get returns one non-deleted account
func (s *UserService) Get(ctx context.Context, id *auth.Identity, userID string) (*models.User, error) {
	if id == nil {
		return nil, rbac.Deny(rbac.ReasonRoleDenied, "authentication required")
	}
	if userID != id.UserID {
		if err := requirePermission(s.deps.Matrix, id, rbac.UserViewAll); err != nil {
			return nil, err
		}
	}
	return s.load(ctx, userID)
}

func (s *UserService) load(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	filter := query.And(storage.ByID(userID), rbac.NotDeleted())
	if err := s.deps.Store.FindOne(ctx, models.CollectionUsers, filter, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create adds an account. The caller must be allowed to grant the requested role.
func (s *UserService) Create(ctx context.Context, id *auth.Identity, in CreateUserInput) (*models.User, error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.UserCreate); err != nil {
		return nil, err
	}
	if !in.Role.IsValid() {
		return nil, invalid("unknown role %q", in.Role)
	}
	if !rbac.CanAssignRole(id.Role, in.Role) {
		return nil, rbac.Deny(rbac.ReasonRoleNotAssignable, "you cannot assign the "+string(in.Role)+" role")
	}

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, invalid("password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now().UTC()
	u := &models.User{
		ID:             uuid.NewString(),
		Email:          email,
		Name:           name,
		Role:           in.Role,
		PasswordHash:   hash,
		IsActive:       true,
		SessionVersion: 1,
		CreatedBy:      id.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.deps.Store.InsertOne(ctx, models.CollectionUsers, u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, conflict("email %s is already in use", email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionCreate,
		EntityType:  audit.EntityUser,
		EntityID:    u.ID,
		EntityName:  u.Email,
		Description: fmt.Sprintf("Created %s account %s", u.Role, u.Email),
		Changes:     audit.Diff(nil, u),
	})
	return u, nil
}

// Update changes an account. Role or activation changes bump the session
// version so existing sessions of the target end immediately.
func (s *UserService) Update(ctx context.Context, id *auth.Identity, userID string, in UpdateUserInput) (*models.User, error) {
	mutation := rbac.UserMutation{Role: in.Role, IsActive: in.IsActive}
	// Own role and activation are refused for every role, before the matrix.
	if id != nil && userID == id.UserID && mutation.TouchesPrivileges() {
		if err := rbac.CheckUserMutation(
			rbac.Actor{UserID: id.UserID, Role: id.Role},
			rbac.Target{UserID: id.UserID, Role: id.Role},
			mutation,
		); err != nil {
			return nil, err
		}
	}
	if err := requirePermission(s.deps.Matrix, id, rbac.UserEditAll); err != nil {
		return nil, err
	}
	before, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Role != nil && !in.Role.IsValid() {
		return nil, invalid("unknown role %q", *in.Role)
	}

	if err := rbac.CheckUserMutation(
		rbac.Actor{UserID: id.UserID, Role: id.Role},
		rbac.Target{UserID: before.ID, Role: before.Role},
		mutation,
	); err != nil {
		return nil, err
	}

	set := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalid("name cannot be empty")
		}
		set["name"] = name
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		set["email"] = email
	}
	roleChanged := in.Role != nil && *in.Role != before.Role
	statusChanged := in.IsActive != nil && *in.IsActive != before.IsActive
	if roleChanged {
		set["role"] = string(*in.Role)
	}
	if statusChanged {
		set[rbac.FieldIsActive] = *in.IsActive
	}
	if len(set) == 0 {
		return nil, invalid("no fields to update")
	}
	set[fieldUpdatedAt] = s.deps.Clock.Now().UTC()

	update := storage.Update{Set: set}
	if roleChanged || statusChanged {
		update.Inc = map[string]int64{fieldSessionVersion: 1}
	}

	// The session version doubles as the record version for privilege changes.
	filter := query.And(
		storage.ByID(userID),
		rbac.NotDeleted(),
		query.Eq(fieldSessionVersion, before.SessionVersion),
	)
	var after models.User
	err = s.deps.Store.FindOneAndUpdate(ctx, models.CollectionUsers, filter, update, &after)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, conflict("user %s was modified concurrently", userID)
	}
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, conflict("email is already in use")
	}
	if err != nil {
		return nil, err
	}
	if update.Inc != nil {
		s.deps.Versions.Invalidate(userID)
	}

	action, description := audit.ActionUpdate, "Updated "+after.Email
	var facts []string
	if roleChanged {
		action = audit.ActionRoleChange
		facts = append(facts, fmt.Sprintf("changed role from %s to %s", before.Role, after.Role))
	}
	if statusChanged {
		if action == audit.ActionUpdate {
			action = audit.ActionStatusChange
		}
		if after.IsActive {
			facts = append(facts, "activated")
		} else {
			facts = append(facts, "deactivated")
		}
	}
	if len(facts) > 0 {
		description = after.Email + ": " + strings.Join(facts, ", ")
	}
	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      action,
		EntityType:  audit.EntityUser,
		EntityID:    after.ID,
		EntityName:  after.Email,
		Description: description,
		Changes:     audit.Diff(before, &after),
	})
	return &after, nil
}

// ChangePassword sets a new password and ends every session of the account.
// Users may change their own password with the current one; managing another
// account follows the same rules as Update.
func (s *UserService) ChangePassword(ctx context.Context, id *auth.Identity, userID string, in PasswordChange) error {
	if id == nil {
		return rbac.Deny(rbac.ReasonRoleDenied, "authentication required")
	}
	self := userID == id.UserID
	if !self {
		if err := requirePermission(s.deps.Matrix, id, rbac.UserEditAll); err != nil {
			return err
		}
	}

	before, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if self {
		if err := auth.VerifyPassword(before.PasswordHash, in.CurrentPassword); err != nil {
			return invalid("current password is incorrect")
		}
	} else if err := rbac.CheckUserMutation(
		rbac.Actor{UserID: id.UserID, Role: id.Role},
		rbac.Target{UserID: before.ID, Role: before.Role},
		rbac.UserMutation{},
	); err != nil {
		return err
	}

	if len(in.NewPassword) < auth.MinPasswordLength {
		return invalid("password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}

	var after models.User
	err = s.deps.Store.FindOneAndUpdate(ctx, models.CollectionUsers,
		query.And(storage.ByID(userID), rbac.NotDeleted(), query.Eq(fieldSessionVersion, before.SessionVersion)),
		storage.Update{
			Set: map[string]interface{}{"passwordHash": hash, fieldUpdatedAt: s.deps.Clock.Now().UTC()},
			Inc: map[string]int64{fieldSessionVersion: 1},
		}, &after)
	if errors.Is(err, storage.ErrNotFound) {
		return conflict("user %s was modified concurrently", userID)
	}
	if err != nil {
		return err
	}
	s.deps.Versions.Invalidate(userID)

	type secret struct {
		PasswordHash   string `json:"passwordHash"`
		SessionVersion int64  `json:"sessionVersion"`
	}
	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionPasswordChange,
		EntityType:  audit.EntityUser,
		EntityID:    after.ID,
		EntityName:  after.Email,
		Description: "Changed password of " + after.Email,
		Changes: audit.Diff(
			secret{PasswordHash: before.PasswordHash, SessionVersion: before.SessionVersion},
			secret{PasswordHash: after.PasswordHash, SessionVersion: after.SessionVersion},
		),
	})
	return nil
}

// Delete soft-deletes an account and ends its sessions. Only superadmins may
// delete, and never themselves.
func (s *UserService) Delete(ctx context.Context, id *auth.Identity, userID string) error {
	if err := requirePermission(s.deps.Matrix, id, rbac.UserDelete); err != nil {
		return err
	}
	before, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := rbac.CheckUserMutation(
		rbac.Actor{UserID: id.UserID, Role: id.Role},
		rbac.Target{UserID: before.ID, Role: before.Role},
		rbac.UserMutation{Delete: true},
	); err != nil {
		return err
	}

	now := s.deps.Clock.Now().UTC()
	var after models.User
	err = s.deps.Store.FindOneAndUpdate(ctx, models.CollectionUsers,
		query.And(storage.ByID(userID), rbac.NotDeleted()),
		storage.Update{
			Set: map[string]interface{}{
				rbac.FieldIsDeleted: true,
				rbac.FieldIsActive:  false,
				fieldDeletedAt:      now,
				fieldUpdatedAt:      now,
			},
			Inc: map[string]int64{fieldSessionVersion: 1},
		}, &after)
	if err != nil {
		return err
	}
	s.deps.Versions.Invalidate(userID)

	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionDelete,
		EntityType:  audit.EntityUser,
		EntityID:    before.ID,
		EntityName:  before.Email,
		Description: "Deleted account " + before.Email,
		Changes:     audit.Diff(before, &after),
	})
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("invalid email %q", raw)
	}
	return email, nil
}
