package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"royalty/internal/config"
	"royalty/internal/logging"
	"royalty/internal/notifications"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes messages as JSON to a Kafka topic, keyed by run id.
type KafkaSink struct {
	topic  string
	writer kafkaWriter
}

// NewKafkaSink returns a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return &KafkaSink{topic: topic, writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka:" + s.topic }

func (s *KafkaSink) Publish(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	record := kafka.Message{
		Key:   []byte(msg.RunID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(msg.Type)},
		},
	}
	if err := s.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error { return s.writer.Close() }

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes messages to <topic>/<type> with QoS 1.
type MQTTSink struct {
	topic   string
	timeout time.Duration
	client  mqttPublisher
}

// NewMQTTSink connects to broker and returns a sink publishing under topic.
func NewMQTTSink(broker, topic string, timeout time.Duration) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("royalty-" + uuid.NewString()[:8]).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect mqtt broker %s: timed out after %s", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", broker, err)
	}
	return &MQTTSink{topic: topic, timeout: timeout, client: client}, nil
}

func (s *MQTTSink) Name() string { return "mqtt:" + s.topic }

func (s *MQTTSink) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	token := s.client.Publish(s.topic+"/"+string(msg.Type), 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.timeout):
		return errors.New("mqtt publish timed out")
	}
	return token.Error()
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}

// NotifySink pushes run outcomes to a notifications.Service. Progress
// messages are not forwarded.
type NotifySink struct {
	service notifications.Service
}

// NewNotifySink wraps service.
func NewNotifySink(service notifications.Service) *NotifySink {
	return &NotifySink{service: service}
}

func (s *NotifySink) Name() string { return "ntfy" }

func (s *NotifySink) Publish(ctx context.Context, msg Message) error {
	switch msg.Type {
	case TypeSyncComplete:
		return s.service.Publish(ctx, notifications.EventSyncCompleted, notifications.Payload{
			"totalSum":     msg.TotalSum,
			"failedMonths": msg.FailedMonths,
		})
	case TypeSyncCancelled:
		return s.service.Publish(ctx, notifications.EventSyncCancelled, notifications.Payload{"reason": msg.Message})
	case TypeSyncError:
		return s.service.Publish(ctx, notifications.EventError, notifications.Payload{"context": "sync", "error": msg.Message})
	default:
		return nil
	}
}

func (s *NotifySink) Close() error { return nil }

// LogSink writes every message to the log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.NewComponentLogger(logger, "events")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, msg Message) error {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, string(msg.Type)),
	}
	if msg.RunID != "" {
		attrs = append(attrs, logging.RunID(msg.RunID))
	}
	if msg.Month != "" {
		attrs = append(attrs, logging.Period(msg.Month))
	}
	switch msg.Type {
	case TypeProgressUpdate:
		if msg.Error != "" {
			attrs = append(attrs, logging.String("error", msg.Error))
			s.logger.Info("sync unit failed", logging.Args(attrs...)...)
			return nil
		}
		s.logger.Debug("sync unit started", logging.Args(attrs...)...)
	case TypeSyncComplete:
		attrs = append(attrs,
			logging.Int64("total_sum", msg.TotalSum),
			logging.Any("failed_months", msg.FailedMonths),
		)
		s.logger.Info("sync complete", logging.Args(attrs...)...)
	default:
		if msg.Message != "" {
			attrs = append(attrs, logging.String("message", msg.Message))
		}
		s.logger.Info("sync event", logging.Args(attrs...)...)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }

// BuildSinks creates the sinks enabled in cfg. The log sink is always
// present. A sink that cannot be created is logged and left out.
func BuildSinks(cfg *config.Config, logger *slog.Logger) []Sink {
	logger = logging.NewComponentLogger(logger, "events")
	timeout := time.Duration(cfg.Events.RequestTimeoutSeconds) * time.Second

	sinks := []Sink{NewLogSink(logger)}
	if len(cfg.Events.KafkaBrokers) > 0 {
		sinks = append(sinks, NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
	}
	if cfg.Events.MQTTBroker != "" {
		sink, err := NewMQTTSink(cfg.Events.MQTTBroker, cfg.Events.MQTTTopic, timeout)
		if err != nil {
			logging.WarnWithContext(logger, "mqtt sink disabled", "event_sink_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.mqtt_broker"),
				logging.String(logging.FieldImpact, "sync events are not published to mqtt"),
			)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if cfg.Events.NtfyTopic != "" {
		sinks = append(sinks, NewNotifySink(notifications.NewService(cfg)))
	}
	return sinks
}
