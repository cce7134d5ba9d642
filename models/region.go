package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Region struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Code      string    `gorm:"uniqueIndex;size:2;not null" json:"code"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// DefaultRegions are the fourteen administrative regions of Namibia.
func DefaultRegions() []Region {
	return []Region{
		{Code: "CA", Name: "Zambezi"},
		{Code: "ER", Name: "Erongo"},
		{Code: "HA", Name: "Hardap"},
		{Code: "KA", Name: "//Karas"},
		{Code: "KE", Name: "Kavango East"},
		{Code: "KW", Name: "Kavango West"},
		{Code: "KH", Name: "Khomas"},
		{Code: "KU", Name: "Kunene"},
		{Code: "OW", Name: "Ohangwena"},
		{Code: "OH", Name: "Omaheke"},
		{Code: "OS", Name: "Omusati"},
		{Code: "ON", Name: "Oshana"},
		{Code: "OT", Name: "Oshikoto"},
		{Code: "OD", Name: "Otjozondjupa"},
	}
}

// SeedRegions inserts any of the default regions that are missing. Existing
// rows are left untouched.
func SeedRegions(ctx context.Context, db *gorm.DB) error {
	for _, region := range DefaultRegions() {
		r := region
		if err := db.WithContext(ctx).Where("code = ?", r.Code).FirstOrCreate(&r).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetRegionByCode returns nil, nil when no region has the code.
func GetRegionByCode(ctx context.Context, db *gorm.DB, code string) (*Region, error) {
	var region Region
	err := db.WithContext(ctx).Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).Take(&region).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &region, nil
}

func ListRegions(ctx context.Context, db *gorm.DB) ([]Region, error) {
	var regions []Region
	if err := db.WithContext(ctx).Order("name").Find(&regions).Error; err != nil {
		return nil, err
	}
	return regions, nil
}
