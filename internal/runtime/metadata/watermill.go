package metadata

import (
	"maps"

	"github.com/ThreeDotsLabs/watermill/message"
)

// FromWatermill copies the sample metadata off a received message. The
// result is never nil.
func FromWatermill(md message.Metadata) Metadata {
	out := make(Metadata, len(md))
	maps.Copy(out, md)
	return out
}

// ToWatermill copies m into metadata for an outgoing message.
func ToWatermill(m Metadata) message.Metadata {
	out := make(message.Metadata, len(m))
	maps.Copy(out, m)
	return out
}
