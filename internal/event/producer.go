package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	pkgkafka "github.com/bigandbest/admin-deployed-sub000/pkg/kafka"
)

// Kafka topics published by the fulfillment service.
var (
	TopicStockUpdated     = pkgkafka.Topic("fulfillment", "stock_updated")
	TopicStockLow         = pkgkafka.Topic("fulfillment", "stock_low")
	TopicWarehouseCreated = pkgkafka.Topic("fulfillment", "warehouse_created")
	TopicWarehouseDeleted = pkgkafka.Topic("fulfillment", "warehouse_deleted")
)

// Aggregate types.
const (
	AggregateTypeStock     = "stock_assignment"
	AggregateTypeWarehouse = "warehouse"
)

// SourceFulfillmentService identifies events originating here.
const SourceFulfillmentService = "fulfillment-service"

// StockUpdatedData is the payload for a stock_updated event. Deleted is set
// when the write removed the assignment.
type StockUpdatedData struct {
	WarehouseID      int64           `json:"warehouse_id"`
	ProductID        int64           `json:"product_id"`
	VariantID        *int64          `json:"variant_id,omitempty"`
	Quantity         int             `json:"quantity"`
	MinimumThreshold int             `json:"minimum_threshold"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
	Deleted          bool            `json:"deleted"`
}

// StockLowData is the payload for a stock_low event.
type StockLowData struct {
	WarehouseID      int64  `json:"warehouse_id"`
	ProductID        int64  `json:"product_id"`
	VariantID        *int64 `json:"variant_id,omitempty"`
	Quantity         int    `json:"quantity"`
	MinimumThreshold int    `json:"minimum_threshold"`
}

// WarehouseData is the payload for warehouse_created and warehouse_deleted.
type WarehouseData struct {
	WarehouseID       int64                `json:"warehouse_id"`
	Name              string               `json:"name"`
	Type              domain.WarehouseType `json:"type"`
	ParentWarehouseID *int64               `json:"parent_warehouse_id,omitempty"`
	ZoneIDs           []int64              `json:"zone_ids,omitempty"`
	Pincodes          []string             `json:"pincodes,omitempty"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Discard is a Publisher that drops every event. It stands in for Kafka
// when no brokers are configured.
type Discard struct{}

func (Discard) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

// Producer publishes fulfillment domain events.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the fulfillment service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEventFromContext(ctx, topic, aggregateID, aggregateType, SourceFulfillmentService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// PublishStockUpdated announces a ledger write. row is nil when the
// assignment was removed.
func (p *Producer) PublishStockUpdated(ctx context.Context, key domain.StockKey, row *domain.StockAssignment) error {
	data := StockUpdatedData{
		WarehouseID: key.WarehouseID,
		ProductID:   key.ProductID,
		VariantID:   key.VariantID,
		Deleted:     row == nil,
	}
	if row != nil {
		data.Quantity = row.Quantity
		data.MinimumThreshold = row.MinimumThreshold
		data.CostPerUnit = row.CostPerUnit
	}
	return p.publish(ctx, TopicStockUpdated, strconv.FormatInt(key.ProductID, 10), AggregateTypeStock, data)
}

// PublishStockLow announces a row at or below its minimum threshold.
func (p *Producer) PublishStockLow(ctx context.Context, row *domain.StockAssignment) error {
	data := StockLowData{
		WarehouseID:      row.WarehouseID,
		ProductID:        row.ProductID,
		VariantID:        row.VariantID,
		Quantity:         row.Quantity,
		MinimumThreshold: row.MinimumThreshold,
	}
	return p.publish(ctx, TopicStockLow, strconv.FormatInt(row.ProductID, 10), AggregateTypeStock, data)
}

func warehouseData(w *domain.Warehouse) WarehouseData {
	return WarehouseData{
		WarehouseID:       w.ID,
		Name:              w.Name,
		Type:              w.Type,
		ParentWarehouseID: w.ParentWarehouseID,
		ZoneIDs:           w.ZoneIDs,
		Pincodes:          w.Pincodes,
	}
}

// PublishWarehouseCreated announces a new warehouse.
func (p *Producer) PublishWarehouseCreated(ctx context.Context, w *domain.Warehouse) error {
	return p.publish(ctx, TopicWarehouseCreated, strconv.FormatInt(w.ID, 10), AggregateTypeWarehouse, warehouseData(w))
}

// PublishWarehouseDeleted announces a removed warehouse.
func (p *Producer) PublishWarehouseDeleted(ctx context.Context, w *domain.Warehouse) error {
	return p.publish(ctx, TopicWarehouseDeleted, strconv.FormatInt(w.ID, 10), AggregateTypeWarehouse, warehouseData(w))
}
