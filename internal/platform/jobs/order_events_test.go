package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/storefront/api/internal/services"
)

func newTestTopic(t *testing.T, ordered bool) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	topic.EnableMessageOrdering = ordered
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	srv, topic := newTestTopic(t, true)

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:           "order.status.updated",
		OrderID:        "ord_1",
		UserID:         "user_1",
		PreviousStatus: "Processing",
		CurrentStatus:  "Shipped",
		ActorID:        "admin_1",
		TotalPrice:     "115.00",
		OccurredAt:     occurred,
	}

	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload OrderEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != "ord_1" || payload.CurrentStatus != "Shipped" || payload.TotalPrice != "115.00" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("expected occurredAt %s, got %s", occurred, payload.OccurredAt)
	}
	if attr := messages[0].Attributes["eventType"]; attr != "order.status.updated" {
		t.Fatalf("expected eventType attribute, got %q", attr)
	}
	if messages[0].OrderingKey != "ord_1" {
		t.Fatalf("expected ordering key ord_1, got %q", messages[0].OrderingKey)
	}
}

func TestPubSubOrderEventPublisherRejectsIncompleteEvent(t *testing.T) {
	srv, topic := newTestTopic(t, false)

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	if err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{Type: "order.deleted"}); err == nil {
		t.Fatal("expected error for missing order id")
	}
	if got := len(srv.Messages()); got != 0 {
		t.Fatalf("expected no published messages, got %d", got)
	}
}

func TestNewPubSubOrderEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
