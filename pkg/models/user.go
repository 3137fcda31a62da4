package models

import (
	"time"

	"github.com/edugatenow/edugate/pkg/rbac"
)

// User is a staff account (users)
type User struct {
	ID             string     `json:"id" bson:"_id"`
	Email          string     `json:"email" bson:"email"`
	Name           string     `json:"name" bson:"name"`
	Role           rbac.Role  `json:"role" bson:"role"`
	PasswordHash   string     `json:"-" bson:"passwordHash"`
	IsActive       bool       `json:"isActive" bson:"isActive"`
	SessionVersion int64      `json:"sessionVersion" bson:"sessionVersion"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty" bson:"lastLoginAt,omitempty"`
	CreatedBy      string     `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updatedAt"`
	IsDeleted      bool       `json:"isDeleted" bson:"isDeleted"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
}

// Followup is a contact note logged by an agent against a customer (followups)
type Followup struct {
	ID          string     `json:"id" bson:"_id"`
	CustomerID  string     `json:"customerId" bson:"customerId"`
	AgentID     string     `json:"agentId" bson:"agentId"`
	Channel     string     `json:"channel,omitempty" bson:"channel,omitempty"`
	Notes       string     `json:"notes" bson:"notes"`
	Outcome     string     `json:"outcome,omitempty" bson:"outcome,omitempty"`
	NextDueAt   *time.Time `json:"nextDueAt,omitempty" bson:"nextDueAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// SystemSettings is the single agency-wide settings document (settings)
type SystemSettings struct {
	ID                  string    `json:"id" bson:"_id"`
	AgencyName          string    `json:"agencyName" bson:"agencyName"`
	DefaultFollowupDays int       `json:"defaultFollowupDays" bson:"defaultFollowupDays"`
	LeadSources         []string  `json:"leadSources" bson:"leadSources"`
	AllowSelfAssignment bool      `json:"allowSelfAssignment" bson:"allowSelfAssignment"`
	UpdatedAt           time.Time `json:"updatedAt" bson:"updatedAt"`
	UpdatedBy           string    `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
}

// SettingsID is the fixed id of the settings document
const SettingsID = "system"

// DefaultSettings returns the settings used before an admin saves any
func DefaultSettings() SystemSettings {
	return SystemSettings{
		ID:                  SettingsID,
		AgencyName:          "EduGate Now",
		DefaultFollowupDays: 3,
		LeadSources:         []string{"website", "walk-in", "referral", "social"},
	}
}
