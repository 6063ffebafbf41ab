package cache

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/vk/ucdpipe/internal/model"
)

// Storage formats of a persisted entry.
const (
	formatGob  = "gob"
	formatJSON = "json"
)

func init() {
	RegisterValue(model.Entry{})
	RegisterValue([]model.Entry(nil))
	RegisterValue(map[string][]string(nil))
	RegisterValue(map[string]any(nil))
	RegisterValue([]any(nil))
}

// RegisterValue records the concrete type of v so persisted entries holding
// it decode back to the same type. Handlers producing their own output
// types register them once at start-up.
func RegisterValue(v any) {
	gob.Register(v)
}

// encodeEntry serializes an entry, keeping concrete value types when every
// value is registered. Other entries are stored as JSON and come back as the
// generic shapes encoding/json produces.
func encodeEntry(entry Entry) (raw []byte, format string, err error) {
	var buf bytes.Buffer
	if gobErr := gob.NewEncoder(&buf).Encode(entry); gobErr == nil {
		return buf.Bytes(), formatGob, nil
	}
	raw, err = json.Marshal(entry)
	if err != nil {
		return nil, "", err
	}
	return raw, formatJSON, nil
}

func decodeEntry(raw []byte, format string) (Entry, error) {
	var entry Entry
	switch format {
	case formatGob:
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entry); err != nil {
			return Entry{}, err
		}
	case formatJSON, "":
		if err := json.Unmarshal(raw, &entry); err != nil {
			return Entry{}, err
		}
	default:
		return Entry{}, fmt.Errorf("unknown entry format %q", format)
	}
	return entry, nil
}
