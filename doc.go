// Package dynsub subscribes to a topic whose message type is not known at
// compile time. A process joins a data domain, watches the built-in
// publications stream until some participant announces the configured topic,
// fetches the announced protobuf type at runtime and then reads samples of
// that topic until it is stopped.
//
// The domain runs on top of Watermill. The transport carrying it is chosen
// by Config.PubSubSystem:
//   - channel: in-process Go channels, one bus per domain id
//   - nats: core NATS subjects
//   - kafka: one consumer group per participant
//   - rabbitmq: non-durable fanout exchanges with per-participant queues
//   - aws: SNS topics with per-participant SQS queues (LocalStack supported)
//
// Import github.com/drblury/dynsub/transport/transports to register all of
// them, or a single transport package for just one.
//
// # Discovery
//
// Discovery moves through the states waiting, entry available, matched,
// resolved and found. Entries for other topics, entries without valid data
// and names that are not valid UTF-8 are skipped. A type that cannot be
// resolved within ResolveTimeout (200ms by default) sends the loop back to
// waiting; the next announcement of the topic is another chance.
//
// # Consumption
//
// The consumption loop takes up to MaxSamplesPerTake samples every
// PollInterval, or wakes on reader activity in "wait" mode, and reports each
// sample with valid data through ConsumeHooks. Readers keep the last
// ReaderHistoryDepth samples; older ones are counted as dropped.
//
// # Observability
//
// Logs go through ServiceLogger (slog or logrus). Prometheus metrics are
// served on /metrics and a JSON status document on /status when enabled.
package dynsub
