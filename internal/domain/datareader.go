package domain

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/types/dynamicpb"

	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
	"github.com/drblury/dynsub/internal/runtime/logging"
	"github.com/drblury/dynsub/internal/runtime/metadata"
)

// ReaderQoS configures a data reader.
type ReaderQoS struct {
	// HistoryDepth keeps the last N untaken samples; 0 keeps all.
	HistoryDepth int
}

// RawSample is an undecoded sample: protobuf wire bytes plus headers.
type RawSample struct {
	Payload  []byte
	Metadata metadata.Metadata
}

// DataReader receives the samples of one topic.
type DataReader struct {
	*Reader[RawSample]
	topic  *Topic
	logger logging.ServiceLogger
}

// Topic returns the topic the reader was created for.
func (r *DataReader) Topic() *Topic { return r.topic }

// TakeRaw takes up to max undecoded samples.
func (r *DataReader) TakeRaw(max int) (*Loan[RawSample], error) {
	return r.Reader.Take(max)
}

// Take takes up to max samples and decodes the valid ones into dynamic
// messages. Invalid samples keep a nil Data; a sample whose payload does not
// decode is logged and reported as invalid. The raw loan is returned once the
// decoded loan is returned.
func (r *DataReader) Take(max int) (*Loan[*dynamicpb.Message], error) {
	raw, err := r.Reader.Take(max)
	if err != nil || raw == nil {
		return nil, err
	}

	samples := make([]Sample[*dynamicpb.Message], len(raw.Samples))
	for i, s := range raw.Samples {
		samples[i].Info = s.Info
		if !s.Info.ValidData {
			continue
		}
		msg, decodeErr := r.topic.Decode(s.Data.Payload)
		if decodeErr != nil {
			samples[i].Info.ValidData = false
			r.logger.Error("Failed to decode sample", errspkg.Recoverable("take", r.topic.Name(), decodeErr), logging.LogFields{
				"writer": s.Info.Writer,
			})
			continue
		}
		samples[i].Data = msg
	}

	return &Loan[*dynamicpb.Message]{
		Samples: samples,
		owner:   r.Reader,
		release: func() { _ = raw.Return() },
	}, nil
}

// consume moves messages from the subscription into the history until the
// channel closes.
func (r *DataReader) consume(messages <-chan *message.Message) {
	for msg := range messages {
		md := metadata.FromWatermill(msg.Metadata)
		if typeID := md[metadata.KeyTypeID]; typeID != "" && typeID != r.topic.TypeID() {
			r.logger.Error("Dropping sample of a different type", errspkg.ErrInconsistentTopic, logging.LogFields{
				"type_id":  typeID,
				"expected": r.topic.TypeID(),
			})
			msg.Ack()
			continue
		}

		payload := make([]byte, len(msg.Payload))
		copy(payload, msg.Payload)
		r.deliver(Sample[RawSample]{
			Data: RawSample{Payload: payload, Metadata: md},
			Info: infoFromMetadata(md),
		})
		msg.Ack()
	}
}
