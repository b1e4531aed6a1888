// Package connect derives organizer sub-account statuses from the
// provider's raw capability and requirement flags.
package connect

import (
	"event-settlement/internal/provider"
	"event-settlement/models"
)

// Classify runs the strict, ordered gate sequence over a provider
// snapshot. Order matters: restriction outranks unmet requirements
// because it is the more urgent signal. No caller ever sets db_status
// directly.
func Classify(snap *provider.AccountSnapshot) models.AccountDBStatus {
	switch {
	case snap.DisabledReason != "":
		return models.AccountRestricted
	case !snap.DetailsSubmitted:
		return models.AccountUnverified
	case snap.Transfers != provider.CapabilityActive || snap.CardPayments != provider.CapabilityActive:
		return models.AccountOnboarding
	case !snap.PayoutsEnabled || len(snap.CurrentlyDue) > 0 || len(snap.PastDue) > 0:
		return models.AccountOnboarding
	default:
		return models.AccountVerified
	}
}

// UIStatusFor maps a classification to the presentation status. It is
// pure and recomputed on every read; it is never persisted.
func UIStatusFor(dbStatus models.AccountDBStatus, snap *provider.AccountSnapshot, hasAccount bool) models.AccountUIStatus {
	switch dbStatus {
	case models.AccountUnverified:
		if !hasAccount {
			return models.UINoAccount
		}
		return models.UIUnverified
	case models.AccountOnboarding:
		if snap != nil && (len(snap.CurrentlyDue) > 0 || len(snap.PastDue) > 0) {
			return models.UIRequirementsDue
		}
		return models.UIPendingReview
	case models.AccountVerified:
		return models.UIReady
	case models.AccountRestricted:
		return models.UIRestricted
	}
	return models.UINoAccount
}

// ReadyForCheckout reports whether the platform may create new
// checkout sessions against this account.
func ReadyForCheckout(dbStatus models.AccountDBStatus, snap *provider.AccountSnapshot) bool {
	return dbStatus == models.AccountVerified && snap != nil && snap.ChargesEnabled
}

// ReadyForTransfer reports whether funds may be moved to the account
// right now. Re-checked at transfer time, not only at aggregation
// time.
func ReadyForTransfer(snap *provider.AccountSnapshot) bool {
	return snap != nil && snap.PayoutsEnabled && snap.Transfers == provider.CapabilityActive
}
