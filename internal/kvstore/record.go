package kvstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordVersion is written into every envelope produced by this package.
const recordVersion = 1

// Record is a value as held by a Backend. Payload is the JSON envelope
// `{version, timestamp, data}`; Timestamp mirrors the envelope timestamp so
// backends can guard their writes without decoding the payload.
type Record struct {
	Key       string
	Timestamp int64
	Payload   []byte
}

type envelope struct {
	Version   int             `json:"version"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewRecord wraps already-encoded JSON data into an envelope stamped with ts
// (epoch milliseconds).
func NewRecord(key string, data json.RawMessage, ts int64) (Record, error) {
	payload, err := json.Marshal(envelope{Version: recordVersion, Timestamp: ts, Data: data})
	if err != nil {
		return Record{}, fmt.Errorf("kvstore: encode envelope for %q: %w", key, err)
	}
	return Record{Key: key, Timestamp: ts, Payload: payload}, nil
}

// Candidate is one backend's view of a key after normalization.
type Candidate struct {
	Backend   string
	Present   bool
	Timestamp int64
	Data      json.RawMessage
	record    Record
}

// normalize decodes a stored payload into {data, timestamp}. Payloads written
// before envelopes existed, or envelopes lacking a timestamp, are treated as
// the oldest possible value (timestamp 0).
func normalize(backend string, rec Record) (Candidate, error) {
	c := Candidate{Backend: backend, Present: true, record: rec}

	trimmed := bytes.TrimSpace(rec.Payload)
	if len(trimmed) == 0 {
		return Candidate{}, fmt.Errorf("kvstore: empty payload for %q", rec.Key)
	}

	if trimmed[0] == '{' {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return Candidate{}, fmt.Errorf("kvstore: decode payload for %q: %w", rec.Key, err)
		}
		if data, ok := raw["data"]; ok {
			c.Data = data
			if ts, ok := raw["timestamp"]; ok {
				if err := json.Unmarshal(ts, &c.Timestamp); err != nil {
					c.Timestamp = 0
				}
			}
			return c, nil
		}
	} else if !json.Valid(trimmed) {
		return Candidate{}, fmt.Errorf("kvstore: invalid JSON payload for %q", rec.Key)
	}

	c.Data = json.RawMessage(trimmed)
	c.Timestamp = 0
	return c, nil
}
