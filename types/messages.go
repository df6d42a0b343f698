package types

import (
	"errors"
	"time"
)

var (
	// ErrNoData is returned when a submission carries neither a destination nor a message body
	ErrNoData = errors.New("no data in message")
)

// Registered delivery flag values of interest to the simulator
const (
	RegisteredDeliveryNone    uint8 = 0
	RegisteredDeliveryAny     uint8 = 1
	RegisteredDeliveryFailure uint8 = 2
)

// EsmClassDeliveryReceipt marks a deliver_sm as carrying a delivery receipt
const EsmClassDeliveryReceipt uint8 = 0x04

// Data coding values understood when rendering receipt text
const (
	DataCodingDefault uint8 = 0
	DataCodingLatin1  uint8 = 3
	DataCodingUCS2    uint8 = 8
)

// SubmitSM is the part of a submit_sm (or an injected MO message) that the
// simulator reads. Encoding and decoding of the PDU happen elsewhere.
type SubmitSM struct {
	SeqNo              uint32 `json:"seq_no"`
	ServiceType        string `json:"service_type,omitempty"`
	SourceAddr         string `json:"source_addr"`
	DestAddr           string `json:"dest_addr"`
	EsmClass           uint8  `json:"esm_class,omitempty"`
	DataCoding         uint8  `json:"data_coding"`
	RegisteredDelivery uint8  `json:"registered_delivery"`
	ShortMessage       []byte `json:"short_message"`
}

// Validate checks the minimal fields needed to track the message
func (s *SubmitSM) Validate() error {
	if s.DestAddr == "" && len(s.ShortMessage) == 0 {
		return ErrNoData
	}
	return nil
}

// Clone returns a copy that does not share the message body
func (s *SubmitSM) Clone() *SubmitSM {
	c := *s
	c.ShortMessage = append([]byte(nil), s.ShortMessage...)
	return &c
}

// DeliverSM is a message travelling from the simulator to a bound receiver,
// either a delivery receipt or a forwarded MO message.
type DeliverSM struct {
	SeqNo        uint32    `json:"seq_no"`
	SourceAddr   string    `json:"source_addr"`
	DestAddr     string    `json:"dest_addr"`
	EsmClass     uint8     `json:"esm_class"`
	DataCoding   uint8     `json:"data_coding"`
	ShortMessage string    `json:"short_message"`
	MessageID    string    `json:"receipted_message_id,omitempty"`
	MessageState string    `json:"message_state,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MessageState tracks the delivery lifecycle of one submitted message.
// SubmitTime is immutable. FinalTime is set once, when State first becomes terminal.
type MessageState struct {
	MessageID  string
	State      DeliveryState
	SubmitTime time.Time
	FinalTime  time.Time
	Err        int
	Pdu        *SubmitSM
}

// NewMessageState creates an ENROUTE state for a freshly submitted message
func NewMessageState(messageID string, pdu *SubmitSM, submitted time.Time) *MessageState {
	return &MessageState{
		MessageID:  messageID,
		State:      Enroute,
		SubmitTime: submitted,
		Pdu:        pdu,
	}
}

// Clone returns a shallow copy safe to hand out to readers
func (m *MessageState) Clone() *MessageState {
	c := *m
	return &c
}

// MessageStateView is the JSON representation of a MessageState
type MessageStateView struct {
	MessageID  string     `json:"message_id"`
	State      string     `json:"state"`
	StateValue byte       `json:"state_value"`
	SubmitTime time.Time  `json:"submit_time"`
	FinalTime  *time.Time `json:"final_time,omitempty"`
	Err        int        `json:"error_code"`
	Pdu        *SubmitSM  `json:"pdu,omitempty"`
}

// View builds the JSON representation
func (m *MessageState) View() *MessageStateView {
	v := &MessageStateView{
		MessageID:  m.MessageID,
		State:      m.State.String(),
		StateValue: byte(m.State),
		SubmitTime: m.SubmitTime,
		Err:        m.Err,
		Pdu:        m.Pdu,
	}
	if !m.FinalTime.IsZero() {
		t := m.FinalTime
		v.FinalTime = &t
	}
	return v
}

// FromView restores a MessageState from its JSON representation
func FromView(v *MessageStateView) *MessageState {
	m := &MessageState{
		MessageID:  v.MessageID,
		State:      DeliveryState(v.StateValue),
		SubmitTime: v.SubmitTime,
		Err:        v.Err,
		Pdu:        v.Pdu,
	}
	if v.FinalTime != nil {
		m.FinalTime = *v.FinalTime
	}
	return m
}

// MessageStore stores the message states indexed by message id
type MessageStore struct {
	*Map[string, *MessageState]
}

// NewMessageStore creates an empty MessageStore
func NewMessageStore() *MessageStore {
	return &MessageStore{
		Map: NewMap[string, *MessageState](),
	}
}
