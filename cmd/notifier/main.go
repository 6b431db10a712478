package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/clubtab/internal/messaging/kafka"
)

const defaultConsumerGroup = "clubtab-notifier"

// eventEnvelope — конверт события из outbox-воркера.
type eventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// orderEventPayload — полезная нагрузка события заказа.
type orderEventPayload struct {
	OrderID       string `json:"order_id"`
	CustomerID    string `json:"customer_id"`
	ClubID        string `json:"club_id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	OccurredAt    string `json:"occurred_at"`
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	var (
		brokersRaw string
		groupID    string
	)
	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flag.StringVar(&groupID, "group", defaultConsumerGroup, "consumer group id")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}
	brokers := parseBrokers(brokersRaw)
	if len(brokers) == 0 {
		fail("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.WithField("component", "notifier")

	dlqProducer, err := kafka.NewProducer(brokers)
	if err != nil {
		fail("create kafka producer: %v", err)
	}
	defer func() { _ = dlqProducer.Close() }()

	consumer, err := kafka.NewConsumerWithDLQ(
		brokers,
		groupID,
		[]string{kafka.TopicOrderEvents},
		makeHandler(logger),
		dlqProducer,
		3,
	)
	if err != nil {
		fail("create kafka consumer: %v", err)
	}

	if err := consumer.Start(ctx); err != nil {
		fail("start kafka consumer: %v", err)
	}

	logger.WithField("group", groupID).Info("notifier started")
	<-ctx.Done()

	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop consumer")
	}
	logger.Info("notifier stopped")
}

// makeHandler возвращает обработчик событий заказа. Уведомления здесь
// пишутся в лог; транспорт до клиента (push/SMS) подключается отдельно.
func makeHandler(logger *log.Entry) kafka.MessageHandler {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		envelope, payload, err := decodeOrderEvent(message.Value)
		if err != nil {
			return err
		}

		fields := log.Fields{
			"event_type":  envelope.EventType,
			"order_id":    payload.OrderID,
			"customer_id": payload.CustomerID,
			"club_id":     payload.ClubID,
		}

		switch kafka.EventType(envelope.EventType) {
		case kafka.EventTypeOrderPaid:
			logger.WithFields(fields).Info("notify bar queue: new paid order")
		case kafka.EventTypeOrderReady:
			logger.WithFields(fields).Info("notify customer: order is ready for pickup")
		case kafka.EventTypeOrderCancelled:
			logger.WithFields(fields).Info("notify customer: order cancelled")
		default:
			logger.WithFields(fields).Debug("order event observed")
		}

		return nil
	}
}

func decodeOrderEvent(raw []byte) (eventEnvelope, orderEventPayload, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return eventEnvelope{}, orderEventPayload{}, fmt.Errorf("decode event envelope: %w", err)
	}
	if envelope.EventType == "" {
		return eventEnvelope{}, orderEventPayload{}, fmt.Errorf("event envelope has no event type")
	}

	var payload orderEventPayload
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return eventEnvelope{}, orderEventPayload{}, fmt.Errorf("decode order event payload: %w", err)
		}
	}
	if payload.OrderID == "" {
		payload.OrderID = envelope.AggregateID
	}

	return envelope, payload, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
