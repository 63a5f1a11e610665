package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/store"
)

// Payment event types the handler acts on.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.paid"
	EventInvoicePaymentFail  = "invoice.payment_failed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// ErrMalformedEvent is returned for payloads missing required fields.
var ErrMalformedEvent = eris.New("billing: malformed event")

// Event is a verified payment webhook delivery.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Object  gjson.Result
}

// ParseEvent extracts the envelope of a webhook payload. The payload must
// already have passed VerifySignature.
func ParseEvent(payload []byte) (*Event, error) {
	if !gjson.ValidBytes(payload) {
		return nil, eris.Wrap(ErrMalformedEvent, "billing: payload is not json")
	}
	root := gjson.ParseBytes(payload)
	e := &Event{
		ID:      root.Get("id").String(),
		Type:    root.Get("type").String(),
		Created: time.Unix(root.Get("created").Int(), 0).UTC(),
		Object:  root.Get("data.object"),
	}
	if e.ID == "" || e.Type == "" {
		return nil, eris.Wrap(ErrMalformedEvent, "billing: event id and type are required")
	}
	if !e.Object.IsObject() {
		return nil, eris.Wrapf(ErrMalformedEvent, "billing: event %s has no data.object", e.ID)
	}
	return e, nil
}

// SubscriptionStore is the persistence the handler needs.
type SubscriptionStore interface {
	GetSubscriptionByCustomer(ctx context.Context, customerID string) (*model.Subscription, error)
	ApplyWebhookEvent(ctx context.Context, id, eventType string, sub *model.Subscription) (bool, error)
}

// Notifier sends a templated lifecycle email.
type Notifier interface {
	Notify(ctx context.Context, typ model.EmailType, to string, data map[string]string) error
}

// Outcome describes what handling an event did.
type Outcome struct {
	EventID      string              `json:"event_id"`
	Type         string              `json:"type"`
	Duplicate    bool                `json:"duplicate,omitempty"`
	Ignored      bool                `json:"ignored,omitempty"`
	Subscription *model.Subscription `json:"subscription,omitempty"`
	Email        model.EmailType     `json:"email,omitempty"`
}

// Handler applies payment events to subscriptions.
type Handler struct {
	store    SubscriptionStore
	tiers    *Catalogue
	notifier Notifier
}

// NewHandler creates a Handler. notifier may be nil.
func NewHandler(st SubscriptionStore, tiers *Catalogue, notifier Notifier) *Handler {
	return &Handler{store: st, tiers: tiers, notifier: notifier}
}

// Handle applies e. The event id and the subscription write commit together,
// so a redelivered event changes nothing and sends no email.
func (h *Handler) Handle(ctx context.Context, e *Event) (*Outcome, error) {
	log := zap.L().With(zap.String("stage", "billing"), zap.String("event_id", e.ID), zap.String("type", e.Type))
	out := &Outcome{EventID: e.ID, Type: e.Type}

	var (
		sub   *model.Subscription
		email model.EmailType
		err   error
	)
	switch e.Type {
	case EventCheckoutCompleted:
		sub, email, err = h.checkoutCompleted(ctx, e.Object)
	case EventInvoicePaid:
		sub, email, err = h.invoice(ctx, e.Object, model.SubscriptionActive, model.EmailPaymentReceipt)
	case EventInvoicePaymentFail:
		sub, email, err = h.invoice(ctx, e.Object, model.SubscriptionPastDue, model.EmailPaymentFailed)
	case EventSubscriptionUpdated:
		sub, email, err = h.subscriptionUpdated(ctx, e.Object)
	case EventSubscriptionDeleted:
		sub, email, err = h.subscriptionDeleted(ctx, e.Object)
	default:
		out.Ignored = true
	}
	if err != nil {
		return nil, err
	}

	fresh, err := h.store.ApplyWebhookEvent(ctx, e.ID, e.Type, sub)
	if err != nil {
		return nil, eris.Wrapf(err, "billing: apply event %s", e.ID)
	}
	if !fresh {
		out.Duplicate = true
		log.Info("billing: duplicate delivery")
		return out, nil
	}
	out.Subscription = sub

	if sub != nil && email != "" {
		out.Email = email
		h.notify(ctx, email, sub)
	}
	log.Info("billing: event applied", zap.Bool("ignored", out.Ignored), zap.String("email", string(out.Email)))
	return out, nil
}

func (h *Handler) notify(ctx context.Context, typ model.EmailType, sub *model.Subscription) {
	if h.notifier == nil || sub.Email == "" {
		return
	}
	data := map[string]string{"tier": sub.Tier, "status": string(sub.Status)}
	if t, err := h.tiers.Get(sub.Tier); err == nil {
		data["tier_name"] = t.DisplayName
		data["price"] = fmt.Sprintf("$%d.%02d", t.PriceCents/100, t.PriceCents%100)
	}
	if sub.CurrentPeriodEnd != nil {
		data["period_end"] = sub.CurrentPeriodEnd.Format("January 2, 2006")
	}
	if err := h.notifier.Notify(ctx, typ, sub.Email, data); err != nil {
		zap.L().Warn("billing: notification not sent",
			zap.String("email_type", string(typ)), zap.String("customer_id", sub.CustomerID), zap.Error(err))
	}
}

// load returns the customer's subscription, or a fresh free one.
func (h *Handler) load(ctx context.Context, obj gjson.Result, customerPath string) (*model.Subscription, error) {
	customer := obj.Get(customerPath).String()
	if customer == "" {
		return nil, eris.Wrap(ErrMalformedEvent, "billing: event has no customer")
	}
	sub, err := h.store.GetSubscriptionByCustomer(ctx, customer)
	if errors.Is(err, store.ErrNotFound) {
		return &model.Subscription{CustomerID: customer, Tier: string(TierFree)}, nil
	}
	return sub, err
}

// resolveTier prefers explicit metadata, then the price id, then what the
// subscription already has.
func (h *Handler) resolveTier(sub *model.Subscription, obj gjson.Result, pricePath string) error {
	if name := obj.Get("metadata.tier").String(); name != "" {
		t, err := h.tiers.Get(name)
		if err != nil {
			return err
		}
		sub.Tier = string(t.Name)
		return nil
	}
	if pricePath != "" {
		if t, ok := h.tiers.ByPriceID(obj.Get(pricePath).String()); ok {
			sub.Tier = string(t.Name)
		}
	}
	return nil
}

func unixPtr(r gjson.Result) *time.Time {
	if !r.Exists() || r.Int() == 0 {
		return nil
	}
	t := time.Unix(r.Int(), 0).UTC()
	return &t
}

func (h *Handler) checkoutCompleted(ctx context.Context, obj gjson.Result) (*model.Subscription, model.EmailType, error) {
	sub, err := h.load(ctx, obj, "customer")
	if err != nil {
		return nil, "", err
	}
	if err := h.resolveTier(sub, obj, ""); err != nil {
		return nil, "", err
	}
	if email := obj.Get("customer_details.email").String(); email != "" {
		sub.Email = email
	} else if email := obj.Get("customer_email").String(); email != "" {
		sub.Email = email
	}
	if id := obj.Get("subscription").String(); id != "" {
		sub.ExternalID = id
	}
	sub.Status = model.SubscriptionActive
	sub.CancelAtPeriodEnd = false
	return sub, model.EmailWelcome, nil
}

func (h *Handler) invoice(ctx context.Context, obj gjson.Result, status model.SubscriptionStatus, email model.EmailType) (*model.Subscription, model.EmailType, error) {
	sub, err := h.load(ctx, obj, "customer")
	if err != nil {
		return nil, "", err
	}
	if err := h.resolveTier(sub, obj, "lines.data.0.price.id"); err != nil {
		return nil, "", err
	}
	if e := obj.Get("customer_email").String(); e != "" {
		sub.Email = e
	}
	if id := obj.Get("subscription").String(); id != "" {
		sub.ExternalID = id
	}
	if end := unixPtr(obj.Get("lines.data.0.period.end")); end != nil {
		sub.CurrentPeriodEnd = end
	}
	sub.Status = status
	return sub, email, nil
}

func providerStatus(s string) model.SubscriptionStatus {
	switch s {
	case "active", "trialing":
		return model.SubscriptionActive
	case "past_due", "unpaid":
		return model.SubscriptionPastDue
	case "canceled", "incomplete_expired":
		return model.SubscriptionCanceled
	default:
		return model.SubscriptionIncomplete
	}
}

func (h *Handler) subscriptionUpdated(ctx context.Context, obj gjson.Result) (*model.Subscription, model.EmailType, error) {
	sub, err := h.load(ctx, obj, "customer")
	if err != nil {
		return nil, "", err
	}
	prevTier, prevCancel := sub.Tier, sub.CancelAtPeriodEnd

	if err := h.resolveTier(sub, obj, "items.data.0.price.id"); err != nil {
		return nil, "", err
	}
	if id := obj.Get("id").String(); id != "" {
		sub.ExternalID = id
	}
	sub.Status = providerStatus(obj.Get("status").String())
	sub.CancelAtPeriodEnd = obj.Get("cancel_at_period_end").Bool()
	if end := unixPtr(obj.Get("current_period_end")); end != nil {
		sub.CurrentPeriodEnd = end
	}

	var email model.EmailType
	switch {
	case sub.CancelAtPeriodEnd && !prevCancel:
		email = model.EmailCancellationScheduled
	case sub.Tier != prevTier:
		email = model.EmailPlanChanged
	}
	return sub, email, nil
}

func (h *Handler) subscriptionDeleted(ctx context.Context, obj gjson.Result) (*model.Subscription, model.EmailType, error) {
	sub, err := h.load(ctx, obj, "customer")
	if err != nil {
		return nil, "", err
	}
	sub.Status = model.SubscriptionCanceled
	sub.CancelAtPeriodEnd = false
	if end := unixPtr(obj.Get("ended_at")); end != nil {
		sub.CurrentPeriodEnd = end
	}
	return sub, model.EmailSubscriptionEnded, nil
}
