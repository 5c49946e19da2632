package logger

import (
	"encoding/json"
	"io"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// LogEntry is a single recorded event.
type LogEntry struct {
	TimestampMicros int64
	SessionID       string
	Event           string
	Fields          *structpb.Struct
}

type jsonLogEntry struct {
	TimestampMicros int64           `json:"timestamp_micros"`
	SessionID       string          `json:"session_id,omitempty"`
	Event           string          `json:"event"`
	Fields          json.RawMessage `json:"fields,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (le *LogEntry) MarshalJSON() ([]byte, error) {
	out := jsonLogEntry{
		TimestampMicros: le.TimestampMicros,
		SessionID:       le.SessionID,
		Event:           le.Event,
	}
	if le.Fields != nil {
		fields, err := protojson.Marshal(le.Fields)
		if err != nil {
			return nil, err
		}
		out.Fields = fields
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (le *LogEntry) UnmarshalJSON(data []byte) error {
	var in jsonLogEntry
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	le.TimestampMicros = in.TimestampMicros
	le.SessionID = in.SessionID
	le.Event = in.Event
	le.Fields = nil
	if len(in.Fields) > 0 {
		le.Fields = &structpb.Struct{}
		if err := protojson.Unmarshal(in.Fields, le.Fields); err != nil {
			return err
		}
	}
	return nil
}

// GetString returns a string field, or "" if it's missing.
func (le *LogEntry) GetString(name string) string {
	if le.Fields == nil {
		return ""
	}
	return le.Fields.GetFields()[name].GetStringValue()
}

// GetNumber returns a numeric field, or 0 if it's missing.
func (le *LogEntry) GetNumber(name string) float64 {
	if le.Fields == nil {
		return 0
	}
	return le.Fields.GetFields()[name].GetNumberValue()
}

var (
	_ json.Marshaler   = (*LogEntry)(nil)
	_ json.Unmarshaler = (*LogEntry)(nil)
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}
