package prefetch

import "time"

// Record is a single unit of ordered stream data, already translated from the
// wire format by the fetch strategy.
type Record struct {
	SequenceNumber string
	PartitionKey   string
	Data           []byte
	Timestamp      time.Time
}

// Entry is one fetched batch held in the cache. It is immutable once built,
// except for CacheExitTime which is stamped when the entry is delivered.
type Entry struct {
	Records            []Record
	MillisBehindLatest int64
	CacheEntryTime     time.Time
	CacheExitTime      time.Time
	AtStreamEnd        bool

	// LastSequenceNumber is the sequence number of the last record in the
	// batch, or the running high-water mark if the batch was empty.
	LastSequenceNumber string
	// ContinuationToken resumes fetching from exactly after this batch.
	ContinuationToken string

	owner    *Publisher
	byteSize int64
}

func newEntry(p *Publisher, batch Batch, lastSequenceNumber string) *Entry {
	var bytes int64
	for _, r := range batch.Records {
		bytes += int64(len(r.Data))
	}
	return &Entry{
		Records:            batch.Records,
		MillisBehindLatest: batch.MillisBehindLatest,
		CacheEntryTime:     time.Now(),
		AtStreamEnd:        batch.AtStreamEnd,
		LastSequenceNumber: lastSequenceNumber,
		ContinuationToken:  batch.NextToken,
		owner:              p,
		byteSize:           bytes,
	}
}

// RecordCount returns the number of records in the batch.
func (e *Entry) RecordCount() int64 { return int64(len(e.Records)) }

// ByteSize returns the total payload size of the batch in bytes.
func (e *Entry) ByteSize() int64 { return e.byteSize }

// StartKind selects how a starting position is interpreted.
type StartKind int

const (
	// StartEarliest begins at the oldest record retained by the source.
	StartEarliest StartKind = iota
	// StartLatest begins after the newest record currently in the stream.
	StartLatest
	// StartAtTimestamp begins at the first record at or after Timestamp.
	StartAtTimestamp
	// StartAtSequenceNumber resumes after SequenceNumber.
	StartAtSequenceNumber
)

func (k StartKind) String() string {
	switch k {
	case StartEarliest:
		return "earliest"
	case StartLatest:
		return "latest"
	case StartAtTimestamp:
		return "timestamp"
	case StartAtSequenceNumber:
		return "sequence"
	default:
		return "unknown"
	}
}

// StartingPosition is the absolute starting coordinate handed to Start.
type StartingPosition struct {
	Kind           StartKind
	Timestamp      time.Time
	SequenceNumber string
}

// Position is the resumable coordinate of the stream: the last fetched or
// delivered sequence number, the continuation token to fetch after it, and
// the original starting specification.
type Position struct {
	SequenceNumber    string
	ContinuationToken string
	Start             StartingPosition
}
