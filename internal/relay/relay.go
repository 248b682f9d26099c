package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LocalDeliverer is the dispatcher's relay entry point: raw delivery that
// never republishes, so foreign events cannot loop back onto the topic.
type LocalDeliverer interface {
	DeliverLocal(userID int64, data []byte)
	BroadcastLocal(data []byte)
}

// Envelope is the message format on the relay topic. Origin carries the
// publishing instance's ID so every consumer can drop its own traffic.
// UserID zero means broadcast.
type Envelope struct {
	Origin string          `json:"origin"`
	UserID int64           `json:"userId,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Relay mirrors dispatched wire events over a Kafka topic so each instance
// of a multi-instance deployment can deliver to its own local connections.
// A single-instance deployment simply leaves the relay unconfigured.
type Relay struct {
	producer sarama.SyncProducer
	consumer sarama.Consumer
	topic    string
	instance string
	local    LocalDeliverer
	log      zerolog.Logger
}

// New connects the relay to the given brokers.
func New(brokers []string, topic string, local LocalDeliverer, log zerolog.Logger) (*Relay, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "courseboard"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay producer: %w", err)
	}

	consumer, err := sarama.NewConsumer(brokers, cfg)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("failed to create relay consumer: %w", err)
	}

	return &Relay{
		producer: producer,
		consumer: consumer,
		topic:    topic,
		instance: uuid.New().String(),
		local:    local,
		log:      log,
	}, nil
}

// Publish mirrors a targeted wire event onto the topic.
func (r *Relay) Publish(targetUser int64, data []byte) error {
	return r.publish(Envelope{Origin: r.instance, UserID: targetUser, Data: data})
}

// PublishBroadcast mirrors a broadcast wire event onto the topic.
func (r *Relay) PublishBroadcast(data []byte) error {
	return r.publish(Envelope{Origin: r.instance, Data: data})
}

func (r *Relay) publish(env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}

	_, _, err = r.producer.SendMessage(&sarama.ProducerMessage{
		Topic: r.topic,
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("failed to publish relay message: %w", err)
	}
	return nil
}

// Run consumes the topic until the context is cancelled, handing foreign
// events to the local deliverer.
func (r *Relay) Run(ctx context.Context) error {
	partitions, err := r.consumer.Partitions(r.topic)
	if err != nil {
		return fmt.Errorf("failed to list relay partitions: %w", err)
	}

	for _, partition := range partitions {
		pc, err := r.consumer.ConsumePartition(r.topic, partition, sarama.OffsetNewest)
		if err != nil {
			return fmt.Errorf("failed to consume relay partition %d: %w", partition, err)
		}

		go func(pc sarama.PartitionConsumer) {
			defer pc.Close()
			for {
				select {
				case msg, ok := <-pc.Messages():
					if !ok {
						return
					}
					r.handle(msg.Value)
				case err := <-pc.Errors():
					if err != nil {
						r.log.Warn().Err(err).Msg("relay consume error")
					}
				case <-ctx.Done():
					return
				}
			}
		}(pc)
	}

	return nil
}

// handle applies one relay message to the local registry.
func (r *Relay) handle(value []byte) {
	env, err := DecodeEnvelope(value)
	if err != nil {
		r.log.Warn().Err(err).Msg("malformed relay envelope dropped")
		return
	}
	if env.Origin == r.instance {
		return
	}

	if env.UserID > 0 {
		r.local.DeliverLocal(env.UserID, env.Data)
	} else {
		r.local.BroadcastLocal(env.Data)
	}
}

// Close releases broker resources.
func (r *Relay) Close() error {
	if err := r.producer.Close(); err != nil {
		_ = r.consumer.Close()
		return err
	}
	return r.consumer.Close()
}

// InstanceID exposes the relay's origin marker, mostly for tests.
func (r *Relay) InstanceID() string { return r.instance }

// DecodeEnvelope parses a relay topic message.
func DecodeEnvelope(value []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Envelope{}, err
	}
	if env.Origin == "" {
		return Envelope{}, ErrMissingOrigin
	}
	return env, nil
}
