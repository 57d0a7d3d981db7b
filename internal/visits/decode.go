package visits

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// Records written by older trackers are not always well typed: flags stored as
// strings ("isBot": "googlebot"), epoch-millisecond timestamps, numbers where
// text was expected. Fields are decoded one at a time and coerced with JavaScript
// truthiness so a single odd value never rejects the record.

// storedCollection is the on-disk document before its records are decoded
type storedCollection struct {
	TotalVisits json.RawMessage   `json:"totalVisits"`
	Visits      []json.RawMessage `json:"visits"`
}

// objectFields splits a JSON object into its raw members
func objectFields(data []byte) (map[string]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func decodeAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// looseString accepts strings, numbers and booleans; anything else is empty
func looseString(raw json.RawMessage) string {
	switch v := decodeAny(raw).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// looseBool applies JavaScript truthiness
func looseBool(raw json.RawMessage) bool {
	switch v := decodeAny(raw).(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	default:
		return true
	}
}

// looseInt accepts numbers and numeric strings; anything else is 0
func looseInt(raw json.RawMessage) int64 {
	switch v := decodeAny(raw).(type) {
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// looseTimestamp keeps strings as written and converts epoch milliseconds
func looseTimestamp(raw json.RawMessage) string {
	switch v := decodeAny(raw).(type) {
	case string:
		return v
	case float64:
		return FormatTimestamp(time.UnixMilli(int64(v)))
	default:
		return ""
	}
}

func decodeDescriptor(fields map[string]json.RawMessage) UserAgentDescriptor {
	return UserAgentDescriptor{
		Browser:   looseString(fields["browser"]),
		Version:   looseString(fields["version"]),
		OS:        looseString(fields["os"]),
		Platform:  looseString(fields["platform"]),
		Source:    looseString(fields["source"]),
		Device:    looseString(fields["device"]),
		IsMobile:  looseBool(fields["isMobile"]),
		IsDesktop: looseBool(fields["isDesktop"]),
		IsTablet:  looseBool(fields["isTablet"]),
		IsBot:     looseBool(fields["isBot"]),
	}
}

// UnmarshalJSON decodes a record field by field. Only a value that is not a JSON
// object is an error.
func (r *VisitRecord) UnmarshalJSON(data []byte) error {
	fields, err := objectFields(data)
	if err != nil {
		return fmt.Errorf("visit record: %w", err)
	}

	*r = VisitRecord{
		Timestamp: looseTimestamp(fields["timestamp"]),
		IP:        looseString(fields["ip"]),
		Browser:   looseString(fields["browser"]),
		OS:        looseString(fields["os"]),
		Device:    looseString(fields["device"]),
		Referrer:  looseString(fields["referrer"]),
		URL:       looseString(fields["url"]),
	}
	if raw, ok := fields["userAgent"]; ok {
		// UserAgentField decoding never fails
		_ = r.UserAgent.UnmarshalJSON(raw)
	}
	return nil
}
