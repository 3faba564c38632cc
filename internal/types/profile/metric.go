package profile

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Metric is a platform statistic that is either a known integer or unknown.
// The zero value is Unknown.
type Metric struct {
	value int
	known bool
}

var Unknown = Metric{}

func Known(v int) Metric {
	return Metric{value: v, known: true}
}

func (m Metric) IsKnown() bool {
	return m.known
}

// Value returns the metric and whether it is known.
func (m Metric) Value() (int, bool) {
	return m.value, m.known
}

// Or returns the metric value, or def when the metric is unknown.
func (m Metric) Or(def int) int {
	if !m.known {
		return def
	}
	return m.value
}

// Sub returns m - o. The result is unknown when either side is unknown.
func (m Metric) Sub(o Metric) Metric {
	if !m.known || !o.known {
		return Unknown
	}
	return Known(m.value - o.value)
}

// Greater orders metrics for ranking: any known value beats unknown.
func (m Metric) Greater(o Metric) bool {
	switch {
	case m.known && o.known:
		return m.value > o.value
	case m.known:
		return true
	default:
		return false
	}
}

func (m Metric) String() string {
	if !m.known {
		return "N/A"
	}
	return strconv.Itoa(m.value)
}

func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.known {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(m.value)), nil
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Unknown
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Known(v)
	return nil
}
