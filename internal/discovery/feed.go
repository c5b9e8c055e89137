package discovery

import (
	"errors"
	"unicode/utf8"

	"github.com/drblury/dynsub/internal/domain"
	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
)

// ErrFeedEmpty is returned by FeedReader.Next when nothing is queued.
var ErrFeedEmpty = errors.New("dynsub: discovery feed is empty")

// Entry is one valid publication taken from the feed. It holds a loan on the
// publications reader until Release is called.
type Entry struct {
	Record domain.PublicationRecord
	Info   domain.SampleInfo

	loan *domain.Loan[domain.PublicationRecord]
}

// TopicName returns the announced topic name, or ErrInvalidTopicName when
// the announced bytes are not valid UTF-8.
func (e *Entry) TopicName() (string, error) {
	if !utf8.Valid(e.Record.TopicName) {
		return "", errspkg.ErrInvalidTopicName
	}
	return string(e.Record.TopicName), nil
}

// Release returns the entry's loan. A second call returns ErrLoanReturned.
func (e *Entry) Release() error {
	if e.loan == nil {
		return errspkg.ErrLoanReturned
	}
	return e.loan.Return()
}

// Released reports whether the loan was returned.
func (e *Entry) Released() bool {
	return e.loan == nil || e.loan.Returned()
}

// FeedReader takes discovery entries one at a time from the publications reader.
type FeedReader struct {
	reader PublicationReader
}

// NewFeedReader wraps reader.
func NewFeedReader(reader PublicationReader) *FeedReader {
	return &FeedReader{reader: reader}
}

// Next takes at most one entry without blocking. It returns ErrFeedEmpty
// when nothing is queued and ErrInvalidData for entries that carry no valid
// data; the loan of an invalid entry is returned before Next returns.
func (f *FeedReader) Next() (*Entry, error) {
	loan, err := f.reader.Take(1)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrFeedEmpty
	}
	if loan.Len() == 0 {
		_ = loan.Return()
		return nil, ErrFeedEmpty
	}

	sample := loan.Samples[0]
	if !sample.Info.ValidData {
		if err := loan.Return(); err != nil {
			return nil, err
		}
		return nil, errspkg.ErrInvalidData
	}
	return &Entry{Record: sample.Data, Info: sample.Info, loan: loan}, nil
}
