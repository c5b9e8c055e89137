package domain

// PublicationRecord is one entry of the built-in publications stream. The
// topic name travels as raw bytes; nothing guarantees it is valid text.
type PublicationRecord struct {
	Key         string    `json:"key"`
	Participant string    `json:"participant"`
	TopicName   []byte    `json:"topic_name"`
	TypeName    string    `json:"type_name"`
	TypeInfo    *TypeInfo `json:"type_info,omitempty"`
	Disposed    bool      `json:"disposed,omitempty"`
}

// Request kinds.
const (
	RequestPublications = "publications"
	RequestType         = "type"
)

// Request asks other participants to re-announce something they own.
type Request struct {
	Kind   string `json:"kind"`
	From   string `json:"from"`
	TypeID string `json:"type_id,omitempty"`
}
