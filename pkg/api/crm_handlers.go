package api

import (
	"net/http"

	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/crm"
	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/rbac"
)

func writePage[T any](w http.ResponseWriter, page *crm.Page[T]) {
	httputil.WritePage(w, page.Items, httputil.NewPagination(page.Page, page.Limit, page.Total))
}

func pageParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	page, limit, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return 0, 0, false
	}
	return page, limit, true
}

// listCustomers handles GET /api/customers
func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	result, err := s.deps.Services.Customers.List(r.Context(), auth.FromContext(r.Context()), crm.ListOptions{
		Page:        page,
		Limit:       limit,
		Search:      httputil.ParseQueryString(r, "search", ""),
		SalesStatus: httputil.ParseQueryString(r, "salesStatus", ""),
	})
	if err != nil {
		s.writeError(w, r, rbac.ResourceCustomers, err)
		return
	}
	writePage(w, result)
}

// createCustomer handles POST /api/customers
func (s *Server) createCustomer(w http.ResponseWriter, r *http.Request) {
	var in crm.CustomerInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	c, err := s.deps.Services.Customers.Create(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.writeError(w, r, rbac.ResourceCustomers, err)
		return
	}
	httputil.WriteCreated(w, c)
}

// getCustomer handles GET /api/customers/{id}
func (s *Server) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	c, err := s.deps.Services.Customers.Get(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		s.writeError(w, r, rbac.ResourceCustomers, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

// updateCustomer handles PUT /api/customers/{id}
func (s *Server) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var in crm.CustomerInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	c, err := s.deps.Services.Customers.Update(r.Context(), auth.FromContext(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, rbac.ResourceCustomers, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

// deleteCustomer handles DELETE /api/customers/{id}
func (s *Server) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.deps.Services.Customers.Delete(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		s.writeError(w, r, rbac.ResourceCustomers, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Customer deleted")
}

// assignAgent handles POST /api/customers/{id}/assign
func (s *Server) assignAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		AgentID string `json:"agentId"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	c, err := s.deps.Services.Customers.AssignAgent(r.Context(), auth.FromContext(r.Context()), id, req.AgentID)
	if err != nil {
		s.writeError(w, r, rbac.ResourceCustomers, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

// unassignAgent handles DELETE /api/customers/{id}/assign/{agentId}
func (s *Server) unassignAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	agentID, ok := httputil.ParsePathStringOrError(w, r, "agentId")
	if !ok {
		return
	}
	c, err := s.deps.Services.Customers.UnassignAgent(r.Context(), auth.FromContext(r.Context()), id, agentID)
	if err != nil {
		s.writeError(w, r, rbac.ResourceCustomers, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

// editWindow handles GET /api/customers/{id}/edit-window
func (s *Server) editWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	window, err := s.deps.Services.Customers.EditWindow(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		s.writeError(w, r, rbac.ResourceCustomers, err)
		return
	}
	httputil.WriteSuccess(w, window)
}

// listFollowups handles GET /api/followups
func (s *Server) listFollowups(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	result, err := s.deps.Services.Followups.List(r.Context(), auth.FromContext(r.Context()), crm.FollowupListOptions{
		Page:       page,
		Limit:      limit,
		CustomerID: httputil.ParseQueryString(r, "customerId", ""),
	})
	if err != nil {
		s.writeError(w, r, rbac.ResourceFollowups, err)
		return
	}
	writePage(w, result)
}

// createFollowup handles POST /api/followups
func (s *Server) createFollowup(w http.ResponseWriter, r *http.Request) {
	var in crm.FollowupInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	f, err := s.deps.Services.Followups.Create(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.writeError(w, r, rbac.ResourceFollowups, err)
		return
	}
	httputil.WriteCreated(w, f)
}

// getFollowup handles GET /api/followups/{id}
func (s *Server) getFollowup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	f, err := s.deps.Services.Followups.Get(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		s.writeError(w, r, rbac.ResourceFollowups, err)
		return
	}
	httputil.WriteSuccess(w, f)
}

// updateFollowup handles PUT /api/followups/{id}
func (s *Server) updateFollowup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var in crm.FollowupInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	f, err := s.deps.Services.Followups.Update(r.Context(), auth.FromContext(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, rbac.ResourceFollowups, err)
		return
	}
	httputil.WriteSuccess(w, f)
}

// deleteFollowup handles DELETE /api/followups/{id}
func (s *Server) deleteFollowup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.deps.Services.Followups.Delete(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		s.writeError(w, r, rbac.ResourceFollowups, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Follow-up deleted")
}

// listUsers handles GET /api/users
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	result, err := s.deps.Services.Users.List(r.Context(), auth.FromContext(r.Context()), crm.UserListOptions{
		Page:   page,
		Limit:  limit,
		Search: httputil.ParseQueryString(r, "search", ""),
		Role:   rbac.Role(httputil.ParseQueryString(r, "role", "")),
	})
	if err != nil {
		s.writeError(w, r, rbac.ResourceUsers, err)
		return
	}
	writePage(w, result)
}

// createUser handles POST /api/users
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in crm.CreateUserInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	u, err := s.deps.Services.Users.Create(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.writeError(w, r, rbac.ResourceUsers, err)
		return
	}
	httputil.WriteCreated(w, u)
}

// getUser handles GET /api/users/{id}
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	u, err := s.deps.Services.Users.Get(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		s.writeError(w, r, rbac.ResourceUsers, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

// updateUser handles PUT /api/users/{id}
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var in crm.UpdateUserInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	u, err := s.deps.Services.Users.Update(r.Context(), auth.FromContext(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, rbac.ResourceUsers, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

// deleteUser handles DELETE /api/users/{id}
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.deps.Services.Users.Delete(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		s.writeError(w, r, rbac.ResourceUsers, err)
		return
	}
	httputil.WriteSuccessMessage(w, "User deleted")
}

// changePassword handles PUT /api/users/{id}/password
func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var in crm.PasswordChange
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	if err := s.deps.Services.Users.ChangePassword(r.Context(), auth.FromContext(r.Context()), id, in); err != nil {
		s.writeError(w, r, rbac.ResourceUsers, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Password changed")
}

// getSettings handles GET /api/settings
func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Services.Settings.Get(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, rbac.ResourceSettings, err)
		return
	}
	httputil.WriteSuccess(w, settings)
}

// updateSettings handles PUT /api/settings
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var in crm.SettingsInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	settings, err := s.deps.Services.Settings.Update(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.writeError(w, r, rbac.ResourceSettings, err)
		return
	}
	httputil.WriteSuccess(w, settings)
}
