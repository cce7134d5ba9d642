package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ResubmissionKeepFirst       = "keep-first"
	ResubmissionOverwriteLatest = "overwrite-latest"
)

// KoboConfig holds the KoboToolbox API settings.
type KoboConfig struct {
	APIURL          string        `validate:"required,url"`
	APIToken        string        `validate:"required"`
	RateLimitPerMin int           `validate:"gte=1,lte=6000"`
	PageSize        int           `validate:"gte=1,lte=30000"`
	Timeout         time.Duration `validate:"gte=1s"`
}

// SyncConfig holds the reconciliation settings.
type SyncConfig struct {
	ResubmissionPolicy    string        `validate:"oneof=keep-first overwrite-latest"`
	LockTTL               time.Duration `validate:"gte=1s"`
	Topic                 string
	SummaryCacheTTL       time.Duration `validate:"gte=0"`
	RespondentPhoneRegion string        `validate:"len=2,alpha"`
}

var validate = validator.New()

// LoadKoboConfig reads KOBO_API_URL, KOBO_API_TOKEN, KOBO_RATE_LIMIT_PER_MIN,
// KOBO_PAGE_SIZE and KOBO_TIMEOUT_SECONDS.
func LoadKoboConfig() (KoboConfig, error) {
	cfg := KoboConfig{
		APIURL:          strings.TrimRight(EnvString("KOBO_API_URL", "https://kf.kobotoolbox.org"), "/"),
		APIToken:        EnvString("KOBO_API_TOKEN", ""),
		RateLimitPerMin: EnvInt("KOBO_RATE_LIMIT_PER_MIN", 60),
		PageSize:        EnvInt("KOBO_PAGE_SIZE", 1000),
		Timeout:         time.Duration(EnvInt("KOBO_TIMEOUT_SECONDS", 30)) * time.Second,
	}
	if err := validateStruct(cfg); err != nil {
		return KoboConfig{}, fmt.Errorf("kobo config: %w", err)
	}
	return cfg, nil
}

// LoadSyncConfig reads KOBO_RESUBMISSION_POLICY, KOBO_SYNC_LOCK_TTL_SECONDS,
// KOBO_SYNC_TOPIC, SUMMARY_CACHE_TTL_SECONDS and RESPONDENT_PHONE_REGION.
func LoadSyncConfig() (SyncConfig, error) {
	cfg := SyncConfig{
		ResubmissionPolicy:    strings.ToLower(EnvString("KOBO_RESUBMISSION_POLICY", ResubmissionKeepFirst)),
		LockTTL:               time.Duration(EnvInt("KOBO_SYNC_LOCK_TTL_SECONDS", 600)) * time.Second,
		Topic:                 EnvString("KOBO_SYNC_TOPIC", ""),
		SummaryCacheTTL:       time.Duration(EnvInt("SUMMARY_CACHE_TTL_SECONDS", 300)) * time.Second,
		RespondentPhoneRegion: strings.ToUpper(EnvString("RESPONDENT_PHONE_REGION", "NA")),
	}
	if err := validateStruct(cfg); err != nil {
		return SyncConfig{}, fmt.Errorf("sync config: %w", err)
	}
	return cfg, nil
}

func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, ve := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", ve.Field(), ve.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
