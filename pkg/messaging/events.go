package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Stock events published by the ledger
	EventLotReceived    = "stock.lot.received"
	EventLotAdjusted    = "stock.lot.adjusted"
	EventLotWithdrawn   = "stock.lot.withdrawn"
	EventOrderCommitted = "stock.order.committed"
	EventAlertRaised    = "stock.alert.raised"

	// Catalog events consumed to keep the local product cache in sync
	EventProductCreated     = "catalog.product.created"
	EventProductUpdated     = "catalog.product.updated"
	EventProductDeactivated = "catalog.product.deactivated"
)

// Exchange names
const (
	ExchangeStockEvents   = "stock.events"
	ExchangeCatalogEvents = "catalog.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Stock events

// LotReceivedEvent is published when a new lot enters the store
type LotReceivedEvent struct {
	LotID           string    `json:"lot_id"`
	ProductID       string    `json:"product_id"`
	LotNumber       string    `json:"lot_number"`
	InitialQuantity int       `json:"initial_quantity"`
	ExpiryDate      time.Time `json:"expiry_date"`
	ReceivedBy      string    `json:"received_by"`
}

// LotAdjustedEvent is published when a lot quantity is corrected
type LotAdjustedEvent struct {
	LotID            string `json:"lot_id"`
	ProductID        string `json:"product_id"`
	PreviousQuantity int    `json:"previous_quantity"`
	NewQuantity      int    `json:"new_quantity"`
	Reason           string `json:"reason"`
	PerformedBy      string `json:"performed_by"`
}

// LotWithdrawnEvent is published when a lot is withdrawn (recall, write-off)
type LotWithdrawnEvent struct {
	LotID             string `json:"lot_id"`
	ProductID         string `json:"product_id"`
	RemainingQuantity int    `json:"remaining_quantity"`
	Reason            string `json:"reason"`
	PerformedBy       string `json:"performed_by"`
}

// OrderCommittedEvent is published after a reservation transaction succeeds
type OrderCommittedEvent struct {
	MovementIDs []string       `json:"movement_ids"`
	Lines       map[string]int `json:"lines"` // product_id -> quantity
	PerformedBy string         `json:"performed_by"`
}

// AlertRaisedEvent is published when the alert engine opens or escalates an alert
type AlertRaisedEvent struct {
	AlertID   string `json:"alert_id"`
	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	ProductID string `json:"product_id"`
	LotID     string `json:"lot_id,omitempty"`
}

// Catalog events (consumed)

// ProductEvent carries the catalog's product payload for created/updated events
type ProductEvent struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Barcode   string  `json:"barcode"`
	Category  string  `json:"category"`
	PriceUSD  float64 `json:"price_usd"`
	PriceFC   float64 `json:"price_fc"`
	IsActive  bool    `json:"is_active"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
