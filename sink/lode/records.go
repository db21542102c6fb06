package lode

import (
	"encoding/json"
	"fmt"

	"github.com/justapithecus/cukemsg/messages"
)

// RecordKindMessage is the record_kind discriminator for message records.
const RecordKindMessage = "message"

// DayFormat is the layout of the day partition value.
const DayFormat = "2006-01-02"

// Partition keys, outermost first.
var partitionKeys = []string{"day", "run_id", "message_type"}

// toMessageRecordMap converts an envelope to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any. seq is the envelope's
// position within its run; reads sort on it because Hive partitions group
// records by message_type.
func toMessageRecordMap(env *messages.Envelope, cfg Config, seq int64) map[string]any {
	day := cfg.Day
	if day == "" {
		day = env.Timestamp().Time().Format(DayFormat)
	}
	return map[string]any{
		"record_kind":  RecordKindMessage,
		"run_id":       cfg.RunID,
		"seq":          seq,
		"message_type": string(env.Type()), // partition key
		"day":          day,
		"envelope":     env,
	}
}

// recordSeq extracts the seq field. The JSONL codec decodes numbers as
// float64; in-memory records keep int64.
func recordSeq(record map[string]any) (int64, error) {
	switch v := record["seq"].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return 0, fmt.Errorf("lode: record seq %v is not a non-negative integer", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case nil:
		return 0, fmt.Errorf("lode: record has no seq")
	default:
		return 0, fmt.Errorf("lode: record seq has type %T", v)
	}
}

// envelopeFromRecord decodes the envelope stored in a record read back from
// Lode. The JSONL codec yields nested maps, so the envelope is re-encoded and
// decoded into its typed form.
func envelopeFromRecord(record map[string]any) (*messages.Envelope, error) {
	raw, ok := record["envelope"]
	if !ok {
		return nil, fmt.Errorf("lode: record has no envelope")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("lode: re-encode envelope: %w", err)
	}
	var env messages.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("lode: decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("lode: stored envelope: %w", err)
	}
	return &env, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
