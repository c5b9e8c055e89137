package runtime

import (
	"net/http"

	"github.com/drblury/dynsub/internal/runtime/jsoncodec"
	metricspkg "github.com/drblury/dynsub/internal/runtime/metrics"
)

// Status is the document served on /status.
type Status struct {
	Participant    string              `json:"participant"`
	DomainID       uint32              `json:"domain_id"`
	Transport      string              `json:"transport"`
	Target         string              `json:"target"`
	DiscoveryState string              `json:"discovery_state"`
	Topic          *TopicStatus        `json:"topic,omitempty"`
	Counters       metricspkg.Snapshot `json:"counters"`
}

// TopicStatus describes the discovered topic.
type TopicStatus struct {
	Name           string `json:"name"`
	TypeName       string `json:"type_name"`
	TypeID         string `json:"type_id"`
	TransportTopic string `json:"transport_topic"`
	Pending        int    `json:"pending"`
	Dropped        uint64 `json:"dropped"`
}

// Status returns the current status document.
func (s *Service) Status() Status {
	st := Status{
		Participant:    s.participant.GUID(),
		DomainID:       s.participant.DomainID(),
		Transport:      s.Conf.PubSubSystem,
		Target:         s.Conf.TargetTopic,
		DiscoveryState: "idle",
		Counters:       s.metrics.Snapshot(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loop != nil {
		st.DiscoveryState = s.loop.State().String()
	}
	if s.topic != nil {
		st.Topic = &TopicStatus{
			Name:           s.topic.Name(),
			TypeName:       s.topic.TypeName(),
			TypeID:         s.topic.TypeID(),
			TransportTopic: s.topic.TransportTopic(),
		}
		if s.reader != nil {
			st.Topic.Pending = s.reader.Pending()
			st.Topic.Dropped = s.reader.Dropped()
		}
	}
	return st
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, s.Status()); err != nil {
		s.Logger.Error("Failed to encode status", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
