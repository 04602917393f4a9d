package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"mfgcore/server/internal/services"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
)

// messageWriter - часть kafka.Writer, которой пользуется продюсер
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BatchEventProducer публикует события о выпуске партий в Kafka (Protobuf Struct)
type BatchEventProducer struct {
	writer   messageWriter
	topic    string
	inflight sync.WaitGroup
}

// NewBatchEventProducer создает продюсер для топика партий
func NewBatchEventProducer(brokers []string, topic string, dialer *kafka.Dialer) *BatchEventProducer {
	transport := &kafka.Transport{
		DialTimeout: dialer.Timeout,
		ClientID:    dialer.ClientID,
		SASL:        dialer.SASLMechanism,
		TLS:         dialer.TLS,
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		Transport:              transport,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("📡 Kafka продюсер партий инициализирован")
	return newBatchEventProducer(writer, topic)
}

func newBatchEventProducer(w messageWriter, topic string) *BatchEventProducer {
	return &BatchEventProducer{writer: w, topic: topic}
}

// PublishBatchCommitted кодирует событие и отправляет его асинхронно.
// Ответ на коммит не ждет брокера, ошибки доставки только логируются.
func (p *BatchEventProducer) PublishBatchCommitted(ctx context.Context, ev services.BatchCommittedEvent) error {
	payload, err := toStruct(ev)
	if err != nil {
		return err
	}
	value, err := proto.Marshal(payload)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(ev.LotNumber),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "content_type", Value: []byte("application/x-protobuf")},
		},
		Time: ev.CreatedAt,
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
			if strings.Contains(err.Error(), "Unknown Topic Or Partition") {
				log.Warn().Str("topic", p.topic).Msg("⚠️ Kafka: топик еще не создан, событие пропущено")
				return
			}
			log.Error().Err(err).Str("lot_number", ev.LotNumber).Msg("❌ Kafka: не удалось отправить событие партии")
			return
		}
		log.Debug().Str("lot_number", ev.LotNumber).Str("topic", p.topic).Msg("📤 Событие партии отправлено в Kafka")
	}()
	return nil
}

// Close дожидается отправки начатых сообщений и закрывает writer
func (p *BatchEventProducer) Close() error {
	p.inflight.Wait()
	return p.writer.Close()
}
