package timelock

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	// ID is a single component of an AggregateID
	ID string

	// AggregateID identifies an aggregate as a set of parts ("escrow", "main")
	AggregateID []ID

	// EventType names the kind of change an Event records
	EventType string

	// Event is a single committed change to a Book. ID is unique across
	// Books and processes, so downstream consumers can deduplicate on it
	Event struct {
		ID          uuid.UUID       `json:"id"`
		Timestamp   time.Time       `json:"timestamp"`
		Type        EventType       `json:"type"`
		AggregateID AggregateID     `json:"aggregate_id"`
		Data        json.RawMessage `json:"data"`
		Sequence    int64           `json:"sequence"`
	}

	// Participant is the identity of a caller, payer, or payee. The caller
	// identity is supplied by the host environment and trusted as authentic
	Participant string

	// Amount is a quantity of the single fungible unit a Book tracks, in its
	// smallest denomination
	Amount uint64

	// FundID identifies a Fund within its Book
	FundID uint64

	// UnixTime is a timestamp in Unix-epoch seconds
	UnixTime int64
)

// NewAggregateID builds an AggregateID from its parts
func NewAggregateID(parts ...ID) AggregateID {
	return parts
}

// ParseAggregateID splits a string by the separator into an AggregateID
func ParseAggregateID(str, sep string) AggregateID {
	parts := strings.Split(str, sep)
	res := make(AggregateID, len(parts))
	for i, p := range parts {
		res[i] = ID(p)
	}
	return res
}

// Join combines the AggregateID parts into a single string using a separator
func (id AggregateID) Join(sep string) string {
	var sb strings.Builder
	for i, p := range id {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(string(p))
	}
	return sb.String()
}

// Equal compares two AggregateIDs for equality
func (id AggregateID) Equal(other AggregateID) bool {
	return len(id) == len(other) && id.HasPrefix(other)
}

// HasPrefix checks if the AggregateID starts with the provided prefix
func (id AggregateID) HasPrefix(prefix AggregateID) bool {
	if len(prefix) > len(id) {
		return false
	}
	for i, p := range prefix {
		if id[i] != p {
			return false
		}
	}
	return true
}

// JoinKey joins AggregateID parts with ":" for use in storage keys
func JoinKey(id AggregateID) string {
	return id.Join(":")
}

// ParseKey reverses JoinKey
func ParseKey(str string) AggregateID {
	return ParseAggregateID(str, ":")
}

// AsUnixTime truncates a time.Time to whole Unix seconds
func AsUnixTime(t time.Time) UnixTime {
	return UnixTime(t.Unix())
}

// Time converts the timestamp back into a UTC time.Time
func (u UnixTime) Time() time.Time {
	return time.Unix(int64(u), 0).UTC()
}

// Add offsets the timestamp by a duration, truncated to whole seconds
func (u UnixTime) Add(d time.Duration) UnixTime {
	return u + UnixTime(d/time.Second)
}

func (u UnixTime) String() string {
	return u.Time().Format(time.RFC3339)
}
