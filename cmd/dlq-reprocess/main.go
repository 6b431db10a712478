// dlq-reprocess перечитывает DLQ-топик и возвращает записи в исходный
// топик. По умолчанию работает в dry-run: только показывает кандидатов,
// публикация включается флагом -execute.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/clubtab/internal/messaging/kafka"
)

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second
)

type replayConfig struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// candidate — одно сообщение, готовое к повторной публикации.
type candidate struct {
	topic   string
	key     string
	payload []byte
}

// consumerRecord — формат, в котором consumer кладёт сообщения в DLQ.
type consumerRecord struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// outboxRecord — конверт, в котором outbox-worker хоронит неудачные публикации.
type outboxRecord struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

type failedPublish struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

type reissueEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// Узкие интерфейсы поверх sarama, чтобы тесты подставляли стабы.
type brokerMeta interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type messageStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type streamOpener interface {
	ConsumePartition(topic string, partition int32, offset int64) (messageStream, error)
	Close() error
}

type sink interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type streamAdapter struct {
	consumer sarama.Consumer
}

func (a streamAdapter) ConsumePartition(topic string, partition int32, offset int64) (messageStream, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a streamAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// buildKafkaStack собирает клиент, consumer и (в execute-режиме) producer.
// Переменная, а не функция: тесты подменяют её стабами.
var buildKafkaStack = func(cfg replayConfig) (brokerMeta, streamOpener, sink, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	opener := streamAdapter{consumer: rawConsumer}

	// Dry-run обходится без producer.
	if !cfg.execute {
		return client, opener, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = opener.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, opener, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := parseFlags()
	if err != nil {
		fatalf("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fatalf("dlq reprocess failed: %v", err)
	}
}

func parseFlags() (replayConfig, error) {
	var (
		brokersRaw string
		cfg        replayConfig
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	flag.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "fallback topic for reissued records")
	flag.IntVar(&cfg.limit, "limit", defaultScanLimit, "max records to scan")
	flag.BoolVar(&cfg.execute, "execute", false, "actually republish; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan from the tail of each partition (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop scanning a partition after this much silence")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}

	cfg.brokers = splitBrokers(brokersRaw)
	switch {
	case len(cfg.brokers) == 0:
		return replayConfig{}, fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return replayConfig{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return replayConfig{}, fmt.Errorf("target-topic is required")
	case cfg.limit <= 0:
		return replayConfig{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return replayConfig{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg replayConfig) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("dlq reprocess started")

	meta, opener, producer, err := buildKafkaStack(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if opener != nil {
			_ = opener.Close()
		}
		if meta != nil {
			_ = meta.Close()
		}
	}()

	return reprocess(ctx, cfg, meta, opener, producer)
}

func reprocess(ctx context.Context, cfg replayConfig, meta brokerMeta, opener streamOpener, producer sink) error {
	if meta == nil || opener == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := meta.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("dlq topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total scanResult
	for _, partition := range partitions {
		if total.scanned >= cfg.limit {
			break
		}

		part, err := scanPartition(ctx, opener, meta, producer, cfg, partition, cfg.limit-total.scanned)
		if err != nil {
			return err
		}

		total.scanned += part.scanned
		total.reissued += part.reissued
		total.skipped += part.skipped
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  total.scanned,
		"reissued": total.reissued,
		"skipped":  total.skipped,
	}).Info("dlq reprocess done")

	return nil
}

type scanResult struct {
	scanned  int
	reissued int
	skipped  int
}

func scanPartition(
	ctx context.Context,
	opener streamOpener,
	meta brokerMeta,
	producer sink,
	cfg replayConfig,
	partition int32,
	limit int,
) (scanResult, error) {
	var result scanResult
	if limit <= 0 {
		return result, nil
	}

	oldest, err := meta.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return result, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := meta.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return result, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		// Партиция пуста.
		return result, nil
	}

	start := oldest
	if cfg.fromNewest {
		if start = newest - int64(limit); start < oldest {
			start = oldest
		}
	}

	stream, err := opener.ConsumePartition(cfg.sourceTopic, partition, start)
	if err != nil {
		return result, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for result.scanned < limit {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case err := <-stream.Errors():
			if err != nil {
				return result, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil {
				return result, nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.idleTimeout)

			// Не выходим за край, зафиксированный на старте скана.
			if msg.Offset >= newest {
				return result, nil
			}

			cand, ok, err := decodeRecord(msg, cfg.targetTopic)
			if err != nil {
				result.scanned++
				result.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skipping malformed dlq record")
				continue
			}
			if !ok {
				result.scanned++
				result.skipped++
				continue
			}

			if cfg.execute {
				if err := reissue(producer, cand); err != nil {
					return result, fmt.Errorf("republish dlq record: %w", err)
				}
			} else {
				log.WithFields(log.Fields{
					"partition":    msg.Partition,
					"offset":       msg.Offset,
					"target_topic": cand.topic,
					"key":          cand.key,
				}).Info("reissue candidate (dry-run)")
			}
			result.reissued++
			result.scanned++

			if msg.Offset+1 >= newest {
				return result, nil
			}
		case <-idle.C:
			return result, nil
		}
	}

	return result, nil
}

func reissue(producer sink, cand candidate) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic:     cand.topic,
		Key:       sarama.StringEncoder(cand.key),
		Value:     sarama.ByteEncoder(cand.payload),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// decodeRecord распознаёт оба формата DLQ: запись consumer-а (оригинальное
// сообщение как строки) и запись outbox-worker-а (вложенный конверт).
// Неизвестный формат — не ошибка, просто пропуск.
func decodeRecord(msg *sarama.ConsumerMessage, fallbackTopic string) (candidate, bool, error) {
	var rec consumerRecord
	if err := json.Unmarshal(msg.Value, &rec); err == nil && rec.OriginalValue != "" {
		topic := strings.TrimSpace(rec.OriginalTopic)
		if topic == "" {
			topic = fallbackTopic
		}
		return candidate{
			topic:   topic,
			key:     rec.OriginalKey,
			payload: []byte(rec.OriginalValue),
		}, true, nil
	}

	var outboxRec outboxRecord
	if err := json.Unmarshal(msg.Value, &outboxRec); err != nil {
		return candidate{}, false, nil
	}
	if len(outboxRec.Payload) == 0 {
		return candidate{}, false, nil
	}

	var failed failedPublish
	if err := json.Unmarshal(outboxRec.Payload, &failed); err != nil {
		return candidate{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(failed.Payload) == 0 {
		return candidate{}, false, fmt.Errorf("outbox dlq record has no original event payload")
	}

	envelope := reissueEnvelope{
		ID:            pickFirst(failed.OutboxID, outboxRec.ID),
		AggregateType: pickFirst(failed.AggregateType, outboxRec.AggregateType),
		AggregateID:   pickFirst(failed.AggregateID, outboxRec.AggregateID),
		EventType:     pickFirst(failed.EventType, outboxRec.EventType),
		Payload:       failed.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return candidate{}, false, fmt.Errorf("encode reissue envelope: %w", err)
	}

	key := envelope.AggregateID
	if key == "" {
		key = envelope.ID
	}

	return candidate{topic: fallbackTopic, key: key, payload: encoded}, true, nil
}

func pickFirst(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
