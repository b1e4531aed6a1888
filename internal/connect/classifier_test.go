package connect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"event-settlement/internal/provider"
	"event-settlement/models"
)

func fullyVerified() *provider.AccountSnapshot {
	return &provider.AccountSnapshot{
		AccountID:        "acct_1",
		DetailsSubmitted: true,
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		CardPayments:     provider.CapabilityActive,
		Transfers:        provider.CapabilityActive,
	}
}

func TestClassify_Verified(t *testing.T) {
	assert.Equal(t, models.AccountVerified, Classify(fullyVerified()))
}

func TestClassify_DisabledReasonWinsOverEverything(t *testing.T) {
	// A disabled account with unmet requirements is restricted, not
	// onboarding: the gates run in order.
	snap := fullyVerified()
	snap.DisabledReason = "requirements.past_due"
	snap.PastDue = []string{"individual.verification.document"}
	snap.DetailsSubmitted = false

	assert.Equal(t, models.AccountRestricted, Classify(snap))
}

func TestClassify_DetailsNotSubmitted(t *testing.T) {
	snap := fullyVerified()
	snap.DetailsSubmitted = false
	assert.Equal(t, models.AccountUnverified, Classify(snap))
}

func TestClassify_InactiveCapabilityMeansOnboarding(t *testing.T) {
	for _, cap := range []string{provider.CapabilityInactive, provider.CapabilityPending} {
		snap := fullyVerified()
		snap.Transfers = cap
		assert.Equal(t, models.AccountOnboarding, Classify(snap), "transfers=%s", cap)

		snap = fullyVerified()
		snap.CardPayments = cap
		assert.Equal(t, models.AccountOnboarding, Classify(snap), "card_payments=%s", cap)
	}
}

func TestClassify_PayoutsDisabledOrRequirementsDue(t *testing.T) {
	snap := fullyVerified()
	snap.PayoutsEnabled = false
	assert.Equal(t, models.AccountOnboarding, Classify(snap))

	snap = fullyVerified()
	snap.CurrentlyDue = []string{"external_account"}
	assert.Equal(t, models.AccountOnboarding, Classify(snap))

	snap = fullyVerified()
	snap.PastDue = []string{"tos_acceptance.date"}
	assert.Equal(t, models.AccountOnboarding, Classify(snap))
}

func TestClassify_EventuallyDueDoesNotBlock(t *testing.T) {
	snap := fullyVerified()
	snap.EventuallyDue = []string{"individual.verification.document"}
	assert.Equal(t, models.AccountVerified, Classify(snap))
}

func TestUIStatusFor(t *testing.T) {
	due := fullyVerified()
	due.CurrentlyDue = []string{"external_account"}

	tests := []struct {
		name       string
		dbStatus   models.AccountDBStatus
		snap       *provider.AccountSnapshot
		hasAccount bool
		want       models.AccountUIStatus
	}{
		{"no account", models.AccountUnverified, nil, false, models.UINoAccount},
		{"unverified", models.AccountUnverified, fullyVerified(), true, models.UIUnverified},
		{"onboarding with requirements", models.AccountOnboarding, due, true, models.UIRequirementsDue},
		{"onboarding waiting on review", models.AccountOnboarding, fullyVerified(), true, models.UIPendingReview},
		{"verified", models.AccountVerified, fullyVerified(), true, models.UIReady},
		{"restricted", models.AccountRestricted, fullyVerified(), true, models.UIRestricted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UIStatusFor(tt.dbStatus, tt.snap, tt.hasAccount))
		})
	}
}

func TestReadyForCheckout(t *testing.T) {
	snap := fullyVerified()
	assert.True(t, ReadyForCheckout(models.AccountVerified, snap))
	assert.False(t, ReadyForCheckout(models.AccountOnboarding, snap))

	snap.ChargesEnabled = false
	assert.False(t, ReadyForCheckout(models.AccountVerified, snap))
	assert.False(t, ReadyForCheckout(models.AccountVerified, nil))
}

func TestReadyForTransfer(t *testing.T) {
	snap := fullyVerified()
	assert.True(t, ReadyForTransfer(snap))

	snap.PayoutsEnabled = false
	assert.False(t, ReadyForTransfer(snap))

	snap = fullyVerified()
	snap.Transfers = provider.CapabilityPending
	assert.False(t, ReadyForTransfer(snap))
	assert.False(t, ReadyForTransfer(nil))
}
