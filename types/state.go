package types

import "fmt"

// DeliveryState is the message_state of a submitted short message
type DeliveryState byte

// Values follow the SMPP v3.4 message_state field
const (
	Enroute       DeliveryState = 1
	Delivered     DeliveryState = 2
	Expired       DeliveryState = 3
	Deleted       DeliveryState = 4
	Undeliverable DeliveryState = 5
	Accepted      DeliveryState = 6
	Unknown       DeliveryState = 7
	Rejected      DeliveryState = 8
)

var stateNames = map[DeliveryState]string{
	Enroute:       "ENROUTE",
	Delivered:     "DELIVERED",
	Expired:       "EXPIRED",
	Deleted:       "DELETED",
	Undeliverable: "UNDELIVERABLE",
	Accepted:      "ACCEPTED",
	Unknown:       "UNKNOWN",
	Rejected:      "REJECTED",
}

var receiptStats = map[DeliveryState]string{
	Enroute:       "ENROUTE",
	Delivered:     "DELIVRD",
	Expired:       "EXPIRED",
	Deleted:       "DELETED",
	Undeliverable: "UNDELIV",
	Accepted:      "ACCEPTD",
	Unknown:       "UNKNOWN",
	Rejected:      "REJECTD",
}

func (s DeliveryState) String() string {
	name, ok := stateNames[s]
	if !ok {
		return fmt.Sprintf("INVALID(%d)", byte(s))
	}
	return name
}

// ReceiptStat returns the 7 character stat value used in delivery receipt text
func (s DeliveryState) ReceiptStat() string {
	stat, ok := receiptStats[s]
	if !ok {
		return "UNKNOWN"
	}
	return stat
}

// IsTerminal is true for every state from which no further transition occurs.
// ENROUTE and UNKNOWN are the only non-final states.
func (s DeliveryState) IsTerminal() bool {
	switch s {
	case Delivered, Expired, Deleted, Undeliverable, Accepted, Rejected:
		return true
	default:
		return false
	}
}

// IsFailure is true for terminal states other than DELIVERED and ACCEPTED
func (s DeliveryState) IsFailure() bool {
	switch s {
	case Delivered, Accepted:
		return false
	default:
		return s.IsTerminal()
	}
}

// ParseDeliveryState maps a state name back to its value
func ParseDeliveryState(name string) (DeliveryState, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}
