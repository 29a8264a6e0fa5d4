// Package cloudsync reconciles local collections with the remote snapshot, one field at a time.
package cloudsync

import (
	"bytes"
	"encoding/json"
	"time"

	"animepicker/internal/model"
)

// Merged is the outcome of merging local state with a remote snapshot.
type Merged struct {
	Values     map[model.Field]json.RawMessage
	ModifiedAt map[model.Field]time.Time

	// FromRemote lists fields whose remote value was taken and brings something new:
	// a later timestamp or different content. A tie on equal content is not reported.
	FromRemote []model.Field
	// FromLocal lists fields whose local value was kept because it is newer.
	FromLocal []model.Field
	// Rejected lists fields whose remote value won on time but had the wrong shape.
	Rejected []model.Field
}

// Merge resolves every field independently: the remote value wins when its timestamp is
// not older than the local one, or when forceRemote is set, provided it has the right
// shape. A field's remote timestamp falls back to the snapshot timestamp. The merged
// timestamp is the chosen side's, or now when neither side has one.
//
// A rejected remote value keeps the local value with the later of the two timestamps,
// so the field's remote timestamp never moves backwards.
func Merge(fields []model.Field, local map[model.Field]json.RawMessage, localTs map[model.Field]time.Time, remote *model.Snapshot, forceRemote bool, now time.Time) Merged {
	m := Merged{
		Values:     make(map[model.Field]json.RawMessage, len(fields)),
		ModifiedAt: make(map[model.Field]time.Time, len(fields)),
	}

	for _, f := range fields {
		lts := localTs[f]
		var rts time.Time
		var rv json.RawMessage
		var present bool
		if remote != nil {
			rts = remote.FieldTime(f)
			rv, present = remote.Values[f]
		}

		chooseRemote := forceRemote || !rts.Before(lts)

		var value json.RawMessage
		var ts time.Time
		switch {
		case chooseRemote && present && Valid(f, rv):
			value, ts = rv, rts
			if rts.After(lts) || !sameJSON(rv, local[f]) {
				m.FromRemote = append(m.FromRemote, f)
			}
		case chooseRemote:
			value, ts = local[f], later(lts, rts)
			m.Rejected = append(m.Rejected, f)
		default:
			value, ts = local[f], lts
			m.FromLocal = append(m.FromLocal, f)
		}
		if ts.IsZero() {
			ts = now
		}
		if value != nil {
			m.Values[f] = value
		}
		m.ModifiedAt[f] = ts
	}
	return m
}

// Valid reports whether raw has the shape field f requires: an array for collections
// and instructions, an object for performance settings.
func Valid(f model.Field, raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return false
	}
	if f.IsSequence() {
		return trimmed[0] == '['
	}
	return trimmed[0] == '{'
}

func sameJSON(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
