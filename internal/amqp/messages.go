package amqp

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"projection/internal/ports"
)

// TransactionEvent announces that transactions changed. Consumers re-read
// state from storage, so the message only carries ids.
type TransactionEvent struct {
	Kind           ports.EventKind `json:"kind"`
	TransactionIDs []int64         `json:"transactionIds"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewTransactionEvent(kind ports.EventKind, ids []int64) *TransactionEvent {
	return &TransactionEvent{
		Kind:           kind,
		TransactionIDs: ids,
		Timestamp:      time.Now().UTC(),
	}
}

func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case ports.EventCreated, ports.EventUpdated, ports.EventDeleted:
	default:
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	return &msg, nil
}
