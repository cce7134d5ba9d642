package utils

import (
	"context"

	"github.com/google/uuid"
	"github.com/mmdatafocus/survey_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyCampaignId    = appctx.ContextKeyCampaignId
	ContextKeySyncLogId     = appctx.ContextKeySyncLogId
	ContextKeyTriggeredBy   = appctx.ContextKeyTriggeredBy
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetCampaignIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyCampaignId)
}

func GetSyncLogIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeySyncLogId)
}

func GetTriggeredByFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTriggeredBy)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetCampaignIdInContext(ctx context.Context, campaignId int) context.Context {
	return appctx.Set(ctx, ContextKeyCampaignId, campaignId)
}

func SetSyncLogIdInContext(ctx context.Context, syncLogId int) context.Context {
	return appctx.Set(ctx, ContextKeySyncLogId, syncLogId)
}

func SetTriggeredByInContext(ctx context.Context, triggeredBy string) context.Context {
	return appctx.Set(ctx, ContextKeyTriggeredBy, triggeredBy)
}

// EnsureCorrelationId returns ctx unchanged when it already carries a
// correlation id, otherwise it attaches a new random one.
func EnsureCorrelationId(ctx context.Context) (context.Context, string) {
	if id, ok := GetCorrelationIdFromContext(ctx); ok && id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return SetCorrelationIdInContext(ctx, id), id
}
