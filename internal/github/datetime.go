package github

// datetime.go implements GitHub's DateTime scalar

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateTimeFormat = time.RFC3339 // ISO-8601 as used by GitHub

// DateTime is a point in time encoded as an RFC 3339 string
type DateTime time.Time

// UnmarshalJSON decodes a DateTime from a JSON string (null gives the zero time)
func (dt *DateTime) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w decoding DateTime", err)
	}
	if s == nil {
		*dt = DateTime{}
		return nil
	}
	tmp, err := time.Parse(dateTimeFormat, *s)
	if err != nil {
		return fmt.Errorf("%w decoding DateTime", err)
	}
	*dt = DateTime(tmp)
	return nil
}

// MarshalJSON encodes a DateTime as a JSON string
func (dt DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(dt).Format(dateTimeFormat))
}

// Time returns the DateTime as a time.Time
func (dt DateTime) Time() time.Time { return time.Time(dt) }

func (dt DateTime) String() string { return time.Time(dt).Format(dateTimeFormat) }
