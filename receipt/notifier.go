// Package receipt builds delivery receipts and queues them for the
// receiving ESME.
package receipt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/types"
	"github.com/netrixframework/smscsim/util"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	dateLayout  = "0601021504"
	textLength  = 20
	maxReceipts = 999
)

// StateLookup finds the tracked state of a message by id
type StateLookup interface {
	Get(messageID string) (*types.MessageState, bool)
}

// Notifier turns terminal state transitions into deliver_sm receipts and
// adds them to the outbound channel. A full channel drops the receipt.
type Notifier struct {
	outbound *types.Channel[*types.DeliverSM]
	states   StateLookup
	seq      *util.Counter
	clock    util.Clock
	logger   *log.Logger

	lock    *sync.Mutex
	queued  int
	dropped int
}

// NewNotifier creates a Notifier. states may be nil, in which case the
// submit date of a receipt is the time it was prepared.
func NewNotifier(outbound *types.Channel[*types.DeliverSM], states StateLookup, seq *util.Counter, clock util.Clock, logger *log.Logger) *Notifier {
	return &Notifier{
		outbound: outbound,
		states:   states,
		seq:      seq,
		clock:    clock,
		logger:   logger.With(log.LogParams{"service": "ReceiptNotifier"}),
		lock:     new(sync.Mutex),
	}
}

// PrepareReceipt builds the receipt for orig and queues it
func (n *Notifier) PrepareReceipt(orig *types.SubmitSM, messageID string, state types.DeliveryState, submitted, delivered, errCode int) {
	now := n.clock.Now()
	submitTime := now
	if n.states != nil {
		if m, ok := n.states.Get(messageID); ok {
			submitTime = m.SubmitTime
		}
	}

	d := &types.DeliverSM{
		SeqNo:        n.seq.Next(),
		SourceAddr:   orig.DestAddr,
		DestAddr:     orig.SourceAddr,
		EsmClass:     types.EsmClassDeliveryReceipt,
		DataCoding:   types.DataCodingDefault,
		MessageID:    messageID,
		MessageState: state.ReceiptStat(),
		CreatedAt:    now,
		ShortMessage: FormatText(Receipt{
			MessageID:  messageID,
			Submitted:  submitted,
			Delivered:  delivered,
			SubmitDate: submitTime,
			DoneDate:   now,
			State:      state,
			Err:        errCode,
			Text:       DecodeText(orig.ShortMessage, orig.DataCoding),
		}),
	}

	logger := n.logger.With(log.LogParams{
		"message_id": messageID,
		"stat":       d.MessageState,
	})
	if err := n.outbound.Add(d); err != nil {
		n.lock.Lock()
		n.dropped++
		n.lock.Unlock()
		if errors.Is(err, types.ErrChannelFull) {
			logger.Warn("Outbound queue full, delivery receipt dropped")
		} else {
			logger.WithError(err).Warn("Could not queue delivery receipt")
		}
		return
	}
	n.lock.Lock()
	n.queued++
	n.lock.Unlock()
	logger.Info("Delivery receipt queued")
}

// Counts returns how many receipts were queued and dropped
func (n *Notifier) Counts() (queued, dropped int) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.queued, n.dropped
}

// Receipt holds the fields rendered into receipt text
type Receipt struct {
	MessageID  string
	Submitted  int
	Delivered  int
	SubmitDate time.Time
	DoneDate   time.Time
	State      types.DeliveryState
	Err        int
	Text       string
}

// FormatText renders the receipt in the customary
// "id: sub: dlvrd: submit date: done date: stat: err: text:" layout
func FormatText(r Receipt) string {
	return fmt.Sprintf("id:%s sub:%03d dlvrd:%03d submit date:%s done date:%s stat:%s err:%03d text:%s",
		r.MessageID,
		clamp(r.Submitted),
		clamp(r.Delivered),
		r.SubmitDate.Format(dateLayout),
		r.DoneDate.Format(dateLayout),
		r.State.ReceiptStat(),
		clamp(r.Err),
		r.Text,
	)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > maxReceipts {
		return maxReceipts
	}
	return v
}

// DecodeText returns at most the first 20 characters of a short message
// decoded according to its data coding. Undecodable bytes yield "".
func DecodeText(b []byte, dataCoding uint8) string {
	if len(b) == 0 {
		return ""
	}
	var dec *encoding.Decoder
	switch dataCoding {
	case types.DataCodingUCS2:
		dec = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	default:
		// the GSM default alphabet overlaps latin-1 for printable text
		dec = charmap.ISO8859_1.NewDecoder()
	}
	out, err := dec.Bytes(b)
	if err != nil {
		return ""
	}
	runes := []rune(string(out))
	if len(runes) > textLength {
		runes = runes[:textLength]
	}
	return string(runes)
}
