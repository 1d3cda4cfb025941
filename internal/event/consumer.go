package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	pkgkafka "github.com/bigandbest/admin-deployed-sub000/pkg/kafka"
)

// TopicProductDeleted is published by the catalog service.
var TopicProductDeleted = pkgkafka.Topic("product", "deleted")

// LedgerService defines what the consumer needs from the stock ledger.
type LedgerService interface {
	PurgeProduct(ctx context.Context, productID int64) (int64, error)
}

// ProductDeletedData is the expected payload of a product.deleted event.
// Older producers send only the aggregate id.
type ProductDeletedData struct {
	ProductID int64 `json:"product_id"`
}

// Consumer processes incoming Kafka events for the fulfillment service.
type Consumer struct {
	logger *slog.Logger
	ledger LedgerService
}

// NewConsumer creates a new event consumer.
func NewConsumer(ledger LedgerService, logger *slog.Logger) *Consumer {
	return &Consumer{
		ledger: ledger,
		logger: logger,
	}
}

// HandleProductDeleted drops every stock assignment of the deleted product.
func (c *Consumer) HandleProductDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if len(event.Data) > 0 && string(event.Data) != "null" {
		if err := event.UnmarshalData(&data); err != nil {
			return fmt.Errorf("unmarshal product.deleted data: %w", err)
		}
	}
	if data.ProductID == 0 {
		id, err := strconv.ParseInt(event.AggregateID, 10, 64)
		if err != nil {
			return fmt.Errorf("product.deleted event %s has no product id: %w", event.EventID, err)
		}
		data.ProductID = id
	}

	removed, err := c.ledger.PurgeProduct(ctx, data.ProductID)
	if err != nil {
		return fmt.Errorf("purge stock for product %d: %w", data.ProductID, err)
	}

	c.logger.InfoContext(ctx, "stock purged for deleted product",
		slog.Int64("product_id", data.ProductID),
		slog.Int64("rows_removed", removed),
	)
	return nil
}
