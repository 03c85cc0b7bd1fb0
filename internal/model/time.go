package model

import (
	"fmt"
	"time"
)

// LocalTime 以 "YYYY-MM-DD HH:MM:SS" 格式序列化时间。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(timeFormat))
	return []byte(formatted), nil
}
