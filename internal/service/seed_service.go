package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"portal/internal/model"
	"portal/internal/repository"
)

// SeedService installs the default branches, permissions, roles and
// activities on first boot. Every upsert keys on the unique name, so
// running it repeatedly is safe.
type SeedService interface {
	SeedDefaults(ctx context.Context) error
}

type seedService struct {
	db       *gorm.DB
	branches repository.BranchRepository
}

func NewSeedService(db *gorm.DB, branches repository.BranchRepository) SeedService {
	return &seedService{db: db, branches: branches}
}

func (s *seedService) SeedDefaults(ctx context.Context) error {
	if err := s.seedBranches(ctx); err != nil {
		return err
	}
	permByName, err := s.seedPermissions(ctx)
	if err != nil {
		return err
	}
	if err := s.seedRoles(ctx, permByName); err != nil {
		return err
	}
	return s.seedActivities(ctx, permByName)
}

func (s *seedService) seedBranches(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Branch{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count branches: %w", err)
	}
	if count > 0 {
		return nil
	}

	root := &model.Branch{Name: "Kingdom"}
	if err := s.db.WithContext(ctx).Create(root).Error; err != nil {
		return fmt.Errorf("failed to seed root branch: %w", err)
	}
	for _, name := range []string{"Northern Region", "Southern Region"} {
		child := &model.Branch{Name: name, ParentID: &root.ID}
		if err := s.db.WithContext(ctx).Create(child).Error; err != nil {
			return fmt.Errorf("failed to seed branch '%s': %w", name, err)
		}
	}
	return s.branches.RebuildTree(ctx)
}

func (s *seedService) seedPermissions(ctx context.Context) (map[string]model.Permission, error) {
	defaults := []model.Permission{
		{
			Name:        "Super User",
			IsSuperUser: true,
			ScopingRule: model.ScopeGlobal,
		},
		{
			Name:                    "Can Manage Members",
			RequireActiveMembership: true,
			ScopingRule:             model.ScopeBranchAndChildren,
		},
		{
			Name:        "Can Manage Roles",
			ScopingRule: model.ScopeGlobal,
		},
		{
			Name:        "Can View Audit Log",
			ScopingRule: model.ScopeGlobal,
		},
		{
			Name:                         "Can Authorize Armored Combat",
			RequireActiveMembership:      true,
			RequireActiveBackgroundCheck: true,
			RequiresWarrant:              true,
			MinimumAge:                   18,
			ScopingRule:                  model.ScopeBranchAndChildren,
		},
		{
			Name:                         "Can Authorize Rapier Combat",
			RequireActiveMembership:      true,
			RequireActiveBackgroundCheck: true,
			RequiresWarrant:              true,
			MinimumAge:                   18,
			ScopingRule:                  model.ScopeBranchAndChildren,
		},
	}

	permByName := make(map[string]model.Permission, len(defaults))
	for i := range defaults {
		p := &defaults[i]
		var existing model.Permission
		result := s.db.WithContext(ctx).Where("name = ?", p.Name).First(&existing)
		if result.Error != nil {
			if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
				return nil, fmt.Errorf("failed to seed permission '%s': %w", p.Name, err)
			}
		} else {
			p.ID = existing.ID
		}
		permByName[p.Name] = *p
	}
	return permByName, nil
}

func (s *seedService) seedRoles(ctx context.Context, permByName map[string]model.Permission) error {
	roleDefinitions := []struct {
		Name        string
		Description string
		PermNames   []string
	}{
		{
			Name:        "Admin",
			Description: "Full system access",
			PermNames:   []string{"Super User"},
		},
		{
			Name:        "Branch Officer",
			Description: "Manages members and reviews activity within the branch",
			PermNames:   []string{"Can Manage Members", "Can View Audit Log"},
		},
		{
			Name:        "Armored Combat Marshal",
			Description: "Authorizes armored combat activity",
			PermNames:   []string{"Can Authorize Armored Combat"},
		},
		{
			Name:        "Rapier Combat Marshal",
			Description: "Authorizes rapier combat activity",
			PermNames:   []string{"Can Authorize Rapier Combat"},
		},
	}

	for _, def := range roleDefinitions {
		var role model.Role
		result := s.db.WithContext(ctx).Where("name = ?", def.Name).First(&role)
		if result.Error != nil {
			role = model.Role{
				Name:        def.Name,
				Description: def.Description,
				IsSystem:    true,
			}
			if err := s.db.WithContext(ctx).Create(&role).Error; err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", def.Name, err)
			}
		}

		perms := make([]model.Permission, 0, len(def.PermNames))
		for _, name := range def.PermNames {
			if p, ok := permByName[name]; ok {
				perms = append(perms, p)
			}
		}
		if err := s.db.WithContext(ctx).Model(&role).Association("Permissions").Replace(perms); err != nil {
			return fmt.Errorf("failed to assign permissions to role '%s': %w", def.Name, err)
		}
	}
	return nil
}

func (s *seedService) seedActivities(ctx context.Context, permByName map[string]model.Permission) error {
	activityDefinitions := []struct {
		Name       string
		PermName   string
		MinimumAge int
	}{
		{Name: "Armored Combat", PermName: "Can Authorize Armored Combat", MinimumAge: 16},
		{Name: "Rapier Combat", PermName: "Can Authorize Rapier Combat", MinimumAge: 16},
	}

	for _, def := range activityDefinitions {
		perm, ok := permByName[def.PermName]
		if !ok {
			return fmt.Errorf("seed permission '%s' missing", def.PermName)
		}

		var existing model.Activity
		result := s.db.WithContext(ctx).Where("name = ?", def.Name).First(&existing)
		if result.Error == nil {
			continue
		}

		activity := &model.Activity{
			Name:         def.Name,
			TermLength:   48,
			MinimumAge:   def.MinimumAge,
			MaximumAge:   200,
			PermissionID: perm.ID,
		}
		if err := s.db.WithContext(ctx).Create(activity).Error; err != nil {
			return fmt.Errorf("failed to seed activity '%s': %w", def.Name, err)
		}
	}
	return nil
}
