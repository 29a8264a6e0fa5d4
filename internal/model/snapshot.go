package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncFileName is the well-known name of the snapshot file in an account's remote namespace.
const SyncFileName = "anime_picker_sync.json"

// ExportVersion is the version written into export documents.
const ExportVersion = 3

const isoLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t as an ISO-8601 UTC timestamp with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseTime parses an ISO-8601 timestamp. Invalid or empty input yields the zero time.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Snapshot is the remote-persisted copy of every sync field plus per-field modification times.
// Values are kept as raw JSON so that corrupted fields can be detected before they are trusted.
type Snapshot struct {
	Values     map[Field]json.RawMessage
	ModifiedAt map[Field]time.Time
	Timestamp  time.Time
}

// MarshalJSON writes the flat wire shape.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Values)+2)
	for f, v := range s.Values {
		if len(v) == 0 {
			continue
		}
		out[string(f)] = v
	}
	mod := make(map[string]string, len(s.ModifiedAt))
	for f, t := range s.ModifiedAt {
		if !t.IsZero() {
			mod[string(f)] = FormatTime(t)
		}
	}
	out["modifiedAt"] = mod
	out["timestamp"] = FormatTime(s.Timestamp)
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat wire shape. Snapshots written before per-field
// tracking existed have no modifiedAt map.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	*s = Snapshot{
		Values:     make(map[Field]json.RawMessage, len(AllFields)),
		ModifiedAt: make(map[Field]time.Time, len(AllFields)),
	}
	for _, f := range AllFields {
		if v, ok := raw[string(f)]; ok {
			s.Values[f] = v
		}
	}

	if v, ok := raw["modifiedAt"]; ok {
		var mod map[string]string
		if err := json.Unmarshal(v, &mod); err == nil {
			for _, f := range AllFields {
				if t := ParseTime(mod[string(f)]); !t.IsZero() {
					s.ModifiedAt[f] = t
				}
			}
		}
	}
	if v, ok := raw["timestamp"]; ok {
		var ts string
		if err := json.Unmarshal(v, &ts); err == nil {
			s.Timestamp = ParseTime(ts)
		}
	}
	return nil
}

// FieldTime returns the field's modification time, falling back to the whole-snapshot timestamp.
func (s *Snapshot) FieldTime(f Field) time.Time {
	if t, ok := s.ModifiedAt[f]; ok && !t.IsZero() {
		return t
	}
	return s.Timestamp
}

// ExportDocument is the import/export file format.
type ExportDocument struct {
	Version             int                 `json:"version"`
	Timestamp           string              `json:"timestamp"`
	Library             []Item              `json:"library"`
	Watchlist           []Item              `json:"watchlist"`
	Recommendations     []Item              `json:"recommendations"`
	Instructions        []string            `json:"instructions"`
	ExcludedItems       []ExcludedItem      `json:"excludedItems"`
	PerformanceSettings PerformanceSettings `json:"performanceSettings"`
}
