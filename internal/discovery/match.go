package discovery

import (
	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
)

// Match reports whether entry announces a publication of the target topic.
// Comparison is exact and case-sensitive. A name that is not valid UTF-8
// never matches and yields a recoverable ErrInvalidTopicName.
func Match(entry *Entry, target string) (bool, error) {
	name, err := entry.TopicName()
	if err != nil {
		return false, errspkg.Recoverable("match", string(entry.Record.TopicName), err)
	}
	return name == target, nil
}
