// Package behavior derives a farmer's behavioral feature vector.
//
// There is no mobile-money integration yet, so every field is drawn from a
// stable xxhash digest of the normalized identity. Any implementation of
// Provider can replace HashProvider without touching scoring.
package behavior

import (
	"context"

	"github.com/cespare/xxhash/v2"

	"github.com/opensource-finance/shamba/internal/domain"
)

// Provider returns the behavioral features for an identity.
type Provider interface {
	Fetch(ctx context.Context, identity string) domain.BehaviorFeatures
}

// Field ranges, inclusive.
const (
	minTxnCount = 10
	txnSpan     = 50 // [10, 59]

	minBalance  = 1000
	balanceSpan = 10000 // [1000, 10999]

	minRatioCents = 50
	ratioSpan     = 50 // [0.50, 0.99]

	minUSSD  = 5
	ussdSpan = 20 // [5, 24]

	minAccountAge  = 30
	accountAgeSpan = 365 // [30, 394]

	coopOneIn = 3

	trainingSpan = 5 // [0, 4]
)

// HashProvider derives features from the identity alone.
type HashProvider struct{}

// NewHashProvider creates a hash-backed provider.
func NewHashProvider() *HashProvider {
	return &HashProvider{}
}

// Fetch implements Provider. It never blocks and never fails.
func (HashProvider) Fetch(_ context.Context, identity string) domain.BehaviorFeatures {
	return Derive(identity)
}

// Derive is the pure mapping identity -> features.
func Derive(identity string) domain.BehaviorFeatures {
	id := domain.NormalizeIdentity(identity)

	return domain.BehaviorFeatures{
		MpesaTxnCount90d:       minTxnCount + int(digest(id, "mpesa_txn_count_90d")%txnSpan),
		MpesaAvgBalance:        float64(minBalance + digest(id, "mpesa_avg_balance")%balanceSpan),
		DepositToWithdrawRatio: float64(minRatioCents+digest(id, "deposit_to_withdraw_ratio")%ratioSpan) / 100,
		USSDEngagementCount90d: minUSSD + int(digest(id, "ussd_engagement_count_90d")%ussdSpan),
		AccountAgeDays:         minAccountAge + int(digest(id, "account_age_days")%accountAgeSpan),
		CooperativeMember:      digest(id, "cooperative_member")%coopOneIn == 0,
		TrainingSessions:       int(digest(id, "training_sessions_attended") % trainingSpan),
	}
}

func digest(identity, field string) uint64 {
	return xxhash.Sum64String(identity + "/" + field)
}

// Static returns the same features for every identity.
type Static domain.BehaviorFeatures

// Fetch implements Provider.
func (s Static) Fetch(context.Context, string) domain.BehaviorFeatures {
	return domain.BehaviorFeatures(s)
}

