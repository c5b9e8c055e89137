package metadata

import (
	"strconv"
	"time"
)

// Header keys stamped on every data sample by a writer.
const (
	KeyValidData       = "dynsub_valid_data"
	KeyInstanceState   = "dynsub_instance_state"
	KeyWriterGUID      = "dynsub_writer"
	KeyTypeID          = "dynsub_type_id"
	KeySourceTimestamp = "dynsub_source_ts"
)

// Instance states carried by KeyInstanceState.
const (
	StateAlive      = "alive"
	StateDisposed   = "disposed"
	StateUnregister = "unregistered"
)

// Metadata represents the headers carried alongside a sample.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// ValidData reports whether the sample carries data. Samples without the
// header are treated as valid.
func (m Metadata) ValidData() bool {
	raw, ok := m[KeyValidData]
	if !ok {
		return true
	}
	valid, err := strconv.ParseBool(raw)
	return err == nil && valid
}

// InstanceState defaults to alive.
func (m Metadata) InstanceState() string {
	if state := m[KeyInstanceState]; state != "" {
		return state
	}
	return StateAlive
}

// SourceTimestamp returns the writer-side timestamp, or the zero time.
func (m Metadata) SourceTimestamp() time.Time {
	ts, err := time.Parse(time.RFC3339Nano, m[KeySourceTimestamp])
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Sample builds the headers for one written sample.
func Sample(writer, typeID, state string, valid bool, at time.Time) Metadata {
	return Metadata{
		KeyValidData:       strconv.FormatBool(valid),
		KeyInstanceState:   state,
		KeyWriterGUID:      writer,
		KeyTypeID:          typeID,
		KeySourceTimestamp: at.UTC().Format(time.RFC3339Nano),
	}
}
