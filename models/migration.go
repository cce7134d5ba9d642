package models

import (
	"context"

	"gorm.io/gorm"
)

// MigrateTable creates or updates every table and seeds the region reference
// data.
func MigrateTable(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&Region{}, &Institution{},
		&SurveyCampaign{}, &Survey{}, &ReadinessRecord{},
		&SyncLog{},
	)
	if err != nil {
		return err
	}
	return SeedRegions(ctx, db)
}
