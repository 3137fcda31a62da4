package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/storage"
)

// SettingsInput carries a partial settings update
type SettingsInput struct {
	AgencyName          *string  `json:"agencyName"`
	DefaultFollowupDays *int     `json:"defaultFollowupDays"`
	LeadSources         []string `json:"leadSources"`
	AllowSelfAssignment *bool    `json:"allowSelfAssignment"`
}

// SettingsService reads and writes the agency-wide settings document
type SettingsService struct {
	deps Deps
}

// Get returns the current settings, or the defaults when none were saved
func (s *SettingsService) Get(ctx context.Context, id *auth.Identity) (*models.SystemSettings, error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.SettingsView, rbac.SettingsManage); err != nil {
		return nil, err
	}
	return s.current(ctx)
}

func (s *SettingsService) current(ctx context.Context) (*models.SystemSettings, error) {
	var settings models.SystemSettings
	err := s.deps.Store.FindOne(ctx, models.CollectionSettings, storage.ByID(models.SettingsID), &settings)
	if errors.Is(err, storage.ErrNotFound) {
		defaults := models.DefaultSettings()
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &settings, nil
}

// Update applies in to the settings document, creating it on first save
func (s *SettingsService) Update(ctx context.Context, id *auth.Identity, in SettingsInput) (*models.SystemSettings, error) {
	if err := requirePermission(s.deps.Matrix, id, rbac.SettingsManage); err != nil {
		return nil, err
	}
	set, err := in.fields()
	if err != nil {
		return nil, err
	}

	before, err := s.current(ctx)
	if err != nil {
		return nil, err
	}

	set["updatedAt"] = s.deps.Clock.Now().UTC()
	set["updatedBy"] = id.UserID

	err = s.deps.Store.UpdateOne(ctx, models.CollectionSettings, models.SettingsID, storage.Update{Set: set})
	if errors.Is(err, storage.ErrNotFound) {
		err = s.insert(ctx, before, set)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}

	after, err := s.current(ctx)
	if err != nil {
		return nil, err
	}

	s.deps.Recorder.Record(ctx, audit.Entry{
		Action:      audit.ActionSettingsUpdate,
		EntityType:  audit.EntitySystemSetting,
		EntityID:    models.SettingsID,
		EntityName:  "System settings",
		Description: "Updated system settings",
		Changes:     audit.Diff(before, after),
	})
	return after, nil
}

// insert stores the defaults with set applied. A concurrent first save
// surfaces as a duplicate, in which case the update is retried.
func (s *SettingsService) insert(ctx context.Context, defaults *models.SystemSettings, set map[string]interface{}) error {
	err := s.deps.Store.InsertOne(ctx, models.CollectionSettings, defaults)
	if err != nil && !errors.Is(err, storage.ErrDuplicate) {
		return err
	}
	return s.deps.Store.UpdateOne(ctx, models.CollectionSettings, models.SettingsID, storage.Update{Set: set})
}

func (in SettingsInput) fields() (map[string]interface{}, error) {
	set := map[string]interface{}{}
	if in.AgencyName != nil {
		name := strings.TrimSpace(*in.AgencyName)
		if name == "" {
			return nil, invalid("agencyName cannot be empty")
		}
		set["agencyName"] = name
	}
	if in.DefaultFollowupDays != nil {
		if *in.DefaultFollowupDays < 1 || *in.DefaultFollowupDays > 90 {
			return nil, invalid("defaultFollowupDays must be between 1 and 90")
		}
		set["defaultFollowupDays"] = *in.DefaultFollowupDays
	}
	if in.LeadSources != nil {
		sources := make([]string, 0, len(in.LeadSources))
		for _, src := range in.LeadSources {
			if src = strings.TrimSpace(src); src != "" {
				sources = append(sources, src)
			}
		}
		set["leadSources"] = sources
	}
	if in.AllowSelfAssignment != nil {
		set["allowSelfAssignment"] = *in.AllowSelfAssignment
	}
	if len(set) == 0 {
		return nil, invalid("no settings to update")
	}
	return set, nil
}
