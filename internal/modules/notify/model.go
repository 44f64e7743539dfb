// README: Notification kinds and the title/body each kind renders to.
package notify

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindBookingConfirmation Kind = "BOOKING_CONFIRMATION"
	KindRideUpdate          Kind = "RIDE_UPDATE"
	KindRideCancellation    Kind = "RIDE_CANCELLATION"
	KindNewMessage          Kind = "NEW_MESSAGE"
)

var (
	ErrUnknownKind = errors.New("unknown notification kind")
	ErrNoDevices   = errors.New("no registered devices")
)

// Payload carries the values a notification is rendered from. Extra is
// forwarded untouched in the data map.
type Payload struct {
	Source      string
	Destination string
	DateTime    time.Time
	SenderName  string
	Extra       map[string]string
}

type Notification struct {
	Kind   Kind              `json:"type"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
	SentAt time.Time         `json:"sentAt"`
}

const dateLayout = "2 Jan 2006"

// Render builds the notification for kind; dates are shown in loc.
func Render(kind Kind, p Payload, loc *time.Location) (Notification, error) {
	if loc == nil {
		loc = time.Local
	}
	n := Notification{Kind: kind}
	switch kind {
	case KindBookingConfirmation:
		n.Title = "Booking Confirmed!"
		n.Body = fmt.Sprintf("Your ride from %s to %s has been confirmed.", p.Source, p.Destination)
	case KindRideUpdate:
		n.Title = "Ride Update"
		n.Body = fmt.Sprintf("There's an update to your ride on %s", p.DateTime.In(loc).Format(dateLayout))
	case KindRideCancellation:
		n.Title = "Ride Cancelled"
		n.Body = fmt.Sprintf("The ride from %s to %s has been cancelled.", p.Source, p.Destination)
	case KindNewMessage:
		n.Title = "New Message"
		n.Body = fmt.Sprintf("New message from %s", p.SenderName)
	default:
		return Notification{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	n.Data = map[string]string{"type": string(kind)}
	for k, v := range p.Extra {
		n.Data[k] = v
	}
	if p.Source != "" {
		n.Data["source"] = p.Source
	}
	if p.Destination != "" {
		n.Data["destination"] = p.Destination
	}
	if !p.DateTime.IsZero() {
		n.Data["dateTime"] = p.DateTime.UTC().Format(time.RFC3339)
	}
	if p.SenderName != "" {
		n.Data["senderName"] = p.SenderName
	}
	return n, nil
}
