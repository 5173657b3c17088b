// Command emit_event publishes one processing event to the inbound topic,
// standing in for the external processor during local runs.
//
//	emit_event -order 7 -type delivery-finished -reason damaged
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rl1809/order-lifecycle/internal/adapter/messaging"
	"github.com/rl1809/order-lifecycle/internal/core/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		brokers = flag.String("brokers", "localhost:9092", "comma separated bootstrap servers")
		topic   = flag.String("topic", "order-processing", "inbound processing topic")
		kind    = flag.String("type", "", "approval | packing-started | packing-finished | delivery-started | delivery-finished")
		orderID = flag.Int64("order", 0, "order id")
		ok      = flag.Bool("ok", true, "approval granted / step finished successfully")
		by      = flag.String("by", "operator", "actor for approval and started events")
		reason  = flag.String("reason", "", "failure reason when -ok=false")
	)
	flag.Parse()

	event, err := buildEvent(*kind, *orderID, *ok, *by, *reason)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		return 2
	}

	value, err := messaging.EncodeProcessingEvent(event)
	if err != nil {
		slog.Error("encode event", "error", err)
		return 1
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(strings.Split(*brokers, ",")...))
	if err != nil {
		slog.Error("create kafka client", "error", err)
		return 1
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record := &kgo.Record{
		Topic:   *topic,
		Key:     messaging.EncodeOrderCreationKey(*orderID),
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: "message-id", Value: []byte(uuid.NewString())}},
	}
	if err := client.ProduceSync(ctx, record).FirstErr(); err != nil {
		slog.Error("produce event", "error", err)
		return 1
	}
	slog.Info("event published", "topic", *topic, "order_id", *orderID, "type", *kind)
	return 0
}

func buildEvent(kind string, orderID int64, ok bool, by, reason string) (domain.ProcessingEvent, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("-order must be positive")
	}
	switch kind {
	case "approval":
		return domain.ApprovalReceived{OrderID: orderID, IsApproved: ok, CreatedBy: by}, nil
	case "packing-started":
		return domain.PackingStarted{OrderID: orderID, PackingBy: by}, nil
	case "packing-finished":
		return domain.PackingFinished{OrderID: orderID, IsFinishedSuccessfully: ok, FailureReason: reason}, nil
	case "delivery-started":
		return domain.DeliveryStarted{OrderID: orderID, DeliveredBy: by}, nil
	case "delivery-finished":
		return domain.DeliveryFinished{OrderID: orderID, IsFinishedSuccessfully: ok, FailureReason: reason}, nil
	default:
		return nil, fmt.Errorf("unknown -type %q", kind)
	}
}
