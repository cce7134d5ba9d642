package config

import (
	"strings"
	"testing"
	"time"

	"gorm.io/driver/mysql"
)

func TestLoadKoboConfig_Defaults(t *testing.T) {
	t.Setenv("KOBO_API_URL", "")
	t.Setenv("KOBO_API_TOKEN", "secret")
	t.Setenv("KOBO_RATE_LIMIT_PER_MIN", "")
	t.Setenv("KOBO_PAGE_SIZE", "")
	t.Setenv("KOBO_TIMEOUT_SECONDS", "")

	cfg, err := LoadKoboConfig()
	if err != nil {
		t.Fatalf("LoadKoboConfig: %v", err)
	}
	if cfg.APIURL != "https://kf.kobotoolbox.org" || cfg.RateLimitPerMin != 60 || cfg.PageSize != 1000 || cfg.Timeout != 30*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadKoboConfig_RequiresToken(t *testing.T) {
	t.Setenv("KOBO_API_TOKEN", "")
	_, err := LoadKoboConfig()
	if err == nil || !strings.Contains(err.Error(), "APIToken") {
		t.Fatalf("expected APIToken validation error, got %v", err)
	}
}

func TestLoadSyncConfig_RejectsUnknownPolicy(t *testing.T) {
	t.Setenv("KOBO_RESUBMISSION_POLICY", "merge")
	if _, err := LoadSyncConfig(); err == nil || !strings.Contains(err.Error(), "ResubmissionPolicy") {
		t.Fatalf("expected policy validation error, got %v", err)
	}

	t.Setenv("KOBO_RESUBMISSION_POLICY", "Overwrite-Latest")
	t.Setenv("RESPONDENT_PHONE_REGION", "za")
	cfg, err := LoadSyncConfig()
	if err != nil {
		t.Fatalf("LoadSyncConfig: %v", err)
	}
	if cfg.ResubmissionPolicy != ResubmissionOverwriteLatest || cfg.RespondentPhoneRegion != "ZA" || cfg.LockTTL != 10*time.Minute {
		t.Fatalf("unexpected sync config %+v", cfg)
	}
}

func TestDatabaseDialector(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "survey")
	t.Setenv("DB_PORT", "")
	d, err := DatabaseDialector()
	if err != nil || d.Name() != "mysql" {
		t.Fatalf("expected mysql dialector, got %v (%v)", d, err)
	}
	dsn := d.(*mysql.Dialector).Config.DSN
	if !strings.HasPrefix(dsn, "app:secret@tcp(db.internal:3306)/survey?") || !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("unexpected mysql dsn %q", dsn)
	}

	t.Setenv("DB_DRIVER", "")
	d, err = DatabaseDialector()
	if err != nil || d.Name() != "postgres" {
		t.Fatalf("expected postgres default, got %v (%v)", d, err)
	}

	t.Setenv("DB_DRIVER", "oracle")
	if _, err := DatabaseDialector(); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
