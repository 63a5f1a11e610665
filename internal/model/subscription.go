package model

import "time"

// SubscriptionStatus mirrors the payment provider's subscription state.
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

// Subscription is a reader's paid (or free) plan.
type Subscription struct {
	ID                string             `json:"id"`
	CustomerID        string             `json:"customer_id"`
	ExternalID        string             `json:"external_id,omitempty"`
	Email             string             `json:"email"`
	Tier              string             `json:"tier"`
	Status            SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// EmailType is one of the six templated lifecycle emails.
type EmailType string

const (
	EmailWelcome               EmailType = "welcome"
	EmailPaymentReceipt        EmailType = "payment_receipt"
	EmailPaymentFailed         EmailType = "payment_failed"
	EmailPlanChanged           EmailType = "plan_changed"
	EmailCancellationScheduled EmailType = "cancellation_scheduled"
	EmailSubscriptionEnded     EmailType = "subscription_ended"
)

// EmailStatus records the outcome of a send attempt.
type EmailStatus string

const (
	EmailSent     EmailStatus = "sent"
	EmailDeferred EmailStatus = "deferred"
	EmailFailed   EmailStatus = "failed"
)

// EmailLog is one recorded send attempt; sent rows count toward the daily quota.
type EmailLog struct {
	ID        string      `json:"id"`
	Type      EmailType   `json:"type"`
	Recipient string      `json:"recipient"`
	Status    EmailStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
