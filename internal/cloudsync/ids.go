package cloudsync

import (
	"encoding/json"
	"strings"

	"animepicker/internal/model"
)

// withIDs returns raw with an id given to every element that lacks one and the number
// of ids given. Bare title strings become full records. Only item and excluded-item
// arrays are touched; other fields and unreadable values come back unchanged.
func withIDs(f model.Field, raw json.RawMessage, newID func() string) (json.RawMessage, int) {
	switch f {
	case model.FieldLibrary, model.FieldWatchlist, model.FieldRecommendations, model.FieldExcludedItems:
	default:
		return raw, 0
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return raw, 0
	}

	n := 0
	for i, el := range elems {
		var title string
		if err := json.Unmarshal(el, &title); err == nil {
			if strings.TrimSpace(title) == "" {
				continue
			}
			rec, err := fromTitle(f, el, newID())
			if err != nil {
				continue
			}
			elems[i] = rec
			n++
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(el, &obj); err != nil || obj == nil || hasID(obj["id"]) {
			continue
		}
		id, err := json.Marshal(newID())
		if err != nil {
			continue
		}
		obj["id"] = id
		rec, err := json.Marshal(obj)
		if err != nil {
			continue
		}
		elems[i] = rec
		n++
	}
	if n == 0 {
		return raw, 0
	}
	out, err := json.Marshal(elems)
	if err != nil {
		return raw, 0
	}
	return out, n
}

func fromTitle(f model.Field, el json.RawMessage, id string) (json.RawMessage, error) {
	if f == model.FieldExcludedItems {
		var ex model.ExcludedItem
		if err := json.Unmarshal(el, &ex); err != nil {
			return nil, err
		}
		ex.ID = id
		return json.Marshal(ex)
	}
	var it model.Item
	if err := json.Unmarshal(el, &it); err != nil {
		return nil, err
	}
	it.ID = id
	return json.Marshal(it)
}

func hasID(raw json.RawMessage) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s) != ""
	}
	return true
}
