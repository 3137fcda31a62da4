// Package models holds the CRM documents stored in the document database.
package models

import (
	"time"

	"github.com/edugatenow/edugate/pkg/rbac"
)

// Collection names
const (
	CollectionCustomers = "customers"
	CollectionFollowups = "followups"
	CollectionUsers     = "users"
	CollectionSettings  = "settings"
)

// Sales pipeline states for Evaluation.SalesStatus
const (
	SalesStatusNew        = "new"
	SalesStatusProspect   = "prospect"
	SalesStatusInProgress = "in_progress"
	SalesStatusWon        = "won"
	SalesStatusLost       = "lost"
)

// ValidSalesStatus reports whether s is a known pipeline state
func ValidSalesStatus(s string) bool {
	switch s {
	case SalesStatusNew, SalesStatusProspect, SalesStatusInProgress, SalesStatusWon, SalesStatusLost:
		return true
	}
	return false
}

// Customer is a lead or student handled by the agency (customers)
type Customer struct {
	ID          string     `json:"id" bson:"_id"`
	FullName    string     `json:"fullName" bson:"fullName"`
	Email       string     `json:"email,omitempty" bson:"email,omitempty"`
	Phone       string     `json:"phone,omitempty" bson:"phone,omitempty"`
	Source      string     `json:"source,omitempty" bson:"source,omitempty"`
	Destination string     `json:"destination,omitempty" bson:"destination,omitempty"`
	Evaluation  Evaluation `json:"evaluation" bson:"evaluation"`
	Assignment  Assignment `json:"assignment" bson:"assignment"`
	CreatedBy   string     `json:"createdBy" bson:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
	UpdatedBy   string     `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
	IsDeleted   bool       `json:"isDeleted" bson:"isDeleted"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
	DeletedBy   string     `json:"deletedBy,omitempty" bson:"deletedBy,omitempty"`
}

// Evaluation is the sales assessment of a customer
type Evaluation struct {
	SalesStatus string `json:"salesStatus" bson:"salesStatus"`
	Priority    string `json:"priority,omitempty" bson:"priority,omitempty"`
	Notes       string `json:"notes,omitempty" bson:"notes,omitempty"`
}

// Assignment holds the primary agent and any additional agents
type Assignment struct {
	AssignedAgentID string          `json:"assignedAgentId,omitempty" bson:"assignedAgentId,omitempty"`
	AssignedAt      *time.Time      `json:"assignedAt,omitempty" bson:"assignedAt,omitempty"`
	AssignedAgents  []AgentAssignee `json:"assignedAgents" bson:"assignedAgents"`
}

// AgentAssignee is a secondary agent. Only active entries grant access.
type AgentAssignee struct {
	AgentID    string    `json:"agentId" bson:"agentId"`
	IsActive   bool      `json:"isActive" bson:"isActive"`
	AssignedAt time.Time `json:"assignedAt" bson:"assignedAt"`
	AssignedBy string    `json:"assignedBy,omitempty" bson:"assignedBy,omitempty"`
}

// AccessFacts returns the fields the authorization rules evaluate
func (c *Customer) AccessFacts() rbac.CustomerFacts {
	facts := rbac.CustomerFacts{
		CreatedBy:       c.CreatedBy,
		CreatedAt:       c.CreatedAt,
		AssignedAgentID: c.Assignment.AssignedAgentID,
	}
	for _, a := range c.Assignment.AssignedAgents {
		facts.AssignedAgents = append(facts.AssignedAgents, rbac.AgentMembership{
			AgentID:  a.AgentID,
			IsActive: a.IsActive,
		})
	}
	return facts
}
