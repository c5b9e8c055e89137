/*
Package runtime hosts the dynsub Service: the process-level object that joins
a data domain, discovers the configured topic and consumes it.

# Lifecycle

NewService validates the configuration and creates the domain participant.
Any participant failure is fatal and reported as an errors.FatalError.
Start then

  - serves /metrics (Prometheus) and /status (JSON) when enabled,
  - runs the discovery loop until a publication of Config.TargetTopic is seen
    and its type resolves,
  - creates a data reader on the discovered topic and consumes it until the
    context is cancelled.

Discover and Consume are exported separately so callers can insert their own
steps between the two phases.

# Sub-packages

  - config: defaults, DYNSUB_* environment overrides and validation
  - errors: sentinel errors, RecoverableError and FatalError
  - logging: the ServiceLogger abstraction over slog, logrus and Watermill
  - metrics: Prometheus collectors and the in-process snapshot
  - metadata: sample metadata carried on transport messages
  - jsoncodec: the JSON codec for discovery records and the status document
  - ids: participant and writer GUIDs
*/
package runtime
