package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventKind is the closed set of upstream billing events the reducer folds.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCheckoutCompleted
	EventInvoicePaid
	EventSubscriptionUpdated
	EventSubscriptionDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCheckoutCompleted:
		return "checkout.session.completed"
	case EventInvoicePaid:
		return "invoice.paid"
	case EventSubscriptionUpdated:
		return "customer.subscription.updated"
	case EventSubscriptionDeleted:
		return "customer.subscription.deleted"
	default:
		return "unknown"
	}
}

// Event is one parsed webhook event. Exactly one payload pointer is set,
// matching Kind.
type Event struct {
	ID   string
	Kind EventKind

	Checkout     *CheckoutSession
	Invoice      *Invoice
	Subscription *ProviderSubscription
}

// CheckoutSession is the payload of checkout.session.completed.
type CheckoutSession struct {
	SessionID       string                `json:"id"`
	Mode            string                `json:"mode"`
	PaymentStatus   string                `json:"payment_status"`
	CustomerID      string                `json:"customer"`
	SubscriptionID  string                `json:"subscription"`
	CustomerEmail   string                `json:"customer_email"`
	CustomerDetails *checkoutCustomer     `json:"customer_details"`
	CustomFields    []checkoutCustomField `json:"custom_fields"`
	Metadata        map[string]string     `json:"metadata"`
}

type checkoutCustomer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type checkoutCustomField struct {
	Key   string `json:"key"`
	Label struct {
		Custom string `json:"custom"`
	} `json:"label"`
	Text *struct {
		Value string `json:"value"`
	} `json:"text"`
	Numeric *struct {
		Value string `json:"value"`
	} `json:"numeric"`
}

// Email returns the buyer email, preferring customer_details, normalized.
func (s *CheckoutSession) Email() string {
	if s.CustomerDetails != nil && strings.TrimSpace(s.CustomerDetails.Email) != "" {
		return strings.ToLower(strings.TrimSpace(s.CustomerDetails.Email))
	}
	return strings.ToLower(strings.TrimSpace(s.CustomerEmail))
}

// Name returns the buyer display name, if the session carried one.
func (s *CheckoutSession) Name() string {
	if s.CustomerDetails == nil {
		return ""
	}
	return strings.TrimSpace(s.CustomerDetails.Name)
}

// Paid reports whether the session captured payment.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid"
}

// MemberID extracts the Telegram user id hint from checkout custom fields
// (any field whose key or label mentions "telegram", text before numeric)
// with a metadata fallback. Digits only; "" when absent.
func (s *CheckoutSession) MemberID() string {
	for _, fld := range s.CustomFields {
		if !fld.isTelegramField() {
			continue
		}
		if fld.Text != nil {
			if d := digitsOnly(fld.Text.Value); d != "" {
				return d
			}
		}
	}
	for _, fld := range s.CustomFields {
		if !fld.isTelegramField() {
			continue
		}
		if fld.Numeric != nil {
			if d := digitsOnly(fld.Numeric.Value); d != "" {
				return d
			}
		}
	}
	return digitsOnly(s.Metadata["telegram_id"])
}

func (f checkoutCustomField) isTelegramField() bool {
	return strings.Contains(strings.ToLower(f.Key), "telegram") ||
		strings.Contains(strings.ToLower(f.Label.Custom), "telegram")
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// Invoice is the payload of invoice.paid / invoice.payment_succeeded.
type Invoice struct {
	CustomerEmail  string `json:"customer_email"`
	CustomerID     string `json:"customer"`
	SubscriptionID string `json:"subscription"`
	Lines          struct {
		Data []invoiceLine `json:"data"`
	} `json:"lines"`
}

type invoiceLine struct {
	Description string `json:"description"`
	Price       *struct {
		ID string `json:"id"`
	} `json:"price"`
	Period *struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	} `json:"period"`
}

// Email returns the normalized billing email, "" when absent.
func (i *Invoice) Email() string {
	return strings.ToLower(strings.TrimSpace(i.CustomerEmail))
}

// PriceID returns the first line item's price id, "" when absent.
func (i *Invoice) PriceID() string {
	if len(i.Lines.Data) == 0 || i.Lines.Data[0].Price == nil {
		return ""
	}
	return strings.TrimSpace(i.Lines.Data[0].Price.ID)
}

// Description returns the first line item's description, lowercased.
func (i *Invoice) Description() string {
	if len(i.Lines.Data) == 0 {
		return ""
	}
	return strings.ToLower(i.Lines.Data[0].Description)
}

// PeriodEnd returns the authoritative billing-period end, nil when the
// invoice did not carry one.
func (i *Invoice) PeriodEnd() *time.Time {
	if len(i.Lines.Data) == 0 || i.Lines.Data[0].Period == nil || i.Lines.Data[0].Period.End == 0 {
		return nil
	}
	t := time.Unix(i.Lines.Data[0].Period.End, 0).UTC()
	return &t
}

// ProviderSubscription is the payload of customer.subscription.updated and
// customer.subscription.deleted.
type ProviderSubscription struct {
	SubscriptionID string `json:"id"`
	CustomerID     string `json:"customer"`
	Status         string `json:"status"`
}

// ParseEvent turns a verified webhook envelope into a typed core event.
// Unrecognized event types yield Kind == EventUnknown with no payload.
func ParseEvent(eventID, eventType string, raw []byte) (*Event, error) {
	ev := &Event{ID: strings.TrimSpace(eventID)}
	if ev.ID == "" {
		return nil, fmt.Errorf("event without id (type %q)", eventType)
	}

	switch eventType {
	case "checkout.session.completed":
		ev.Kind = EventCheckoutCompleted
		ev.Checkout = &CheckoutSession{}
		if err := json.Unmarshal(raw, ev.Checkout); err != nil {
			return nil, fmt.Errorf("decode checkout session payload: %w", err)
		}
	case "invoice.paid", "invoice.payment_succeeded":
		ev.Kind = EventInvoicePaid
		ev.Invoice = &Invoice{}
		if err := json.Unmarshal(raw, ev.Invoice); err != nil {
			return nil, fmt.Errorf("decode invoice payload: %w", err)
		}
	case "customer.subscription.updated":
		ev.Kind = EventSubscriptionUpdated
		ev.Subscription = &ProviderSubscription{}
		if err := json.Unmarshal(raw, ev.Subscription); err != nil {
			return nil, fmt.Errorf("decode subscription payload: %w", err)
		}
	case "customer.subscription.deleted":
		ev.Kind = EventSubscriptionDeleted
		ev.Subscription = &ProviderSubscription{}
		if err := json.Unmarshal(raw, ev.Subscription); err != nil {
			return nil, fmt.Errorf("decode subscription payload: %w", err)
		}
	default:
		ev.Kind = EventUnknown
	}

	return ev, nil
}
