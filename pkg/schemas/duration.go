package schemas

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Timestamp is an offset in whole seconds that accepts several input forms
// when decoded from JSON: 65, "65", "1:05", "00:01:05", "65s".
type Timestamp int

// MarshalJSON encodes the timestamp as a number of seconds
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(t))
}

// UnmarshalJSON parses a timestamp from a number or string
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		if n < 0 {
			return InvalidInputf("negative timestamp %d", n)
		}
		*t = Timestamp(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return InvalidInputf("timestamp must be a number or string")
	}

	secs, err := ParseSeconds(s)
	if err != nil {
		return err
	}
	*t = Timestamp(secs)
	return nil
}

// Seconds returns the timestamp as an int
func (t Timestamp) Seconds() int {
	return int(t)
}

var clockRe = regexp.MustCompile(`^(?:(\d{1,2}):)?(\d{1,3}):(\d{2})$`)

// ParseSeconds parses whole seconds from:
// - plain seconds: "65"
// - clock: "1:05", "01:01:05"
// - Go duration: "1m5s", "65s"
func ParseSeconds(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, InvalidInputf("empty timestamp")
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, InvalidInputf("negative timestamp %q", s)
		}
		return n, nil
	}

	if m := clockRe.FindStringSubmatch(s); m != nil {
		hours := 0
		if m[1] != "" {
			hours, _ = strconv.Atoi(m[1])
		}
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.Atoi(m[3])
		if seconds >= 60 || (hours > 0 && minutes >= 60) {
			return 0, InvalidInputf("malformed timestamp %q", s)
		}
		return hours*3600 + minutes*60 + seconds, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, InvalidInputf("negative timestamp %q", s)
		}
		return int(d / time.Second), nil
	}

	return 0, InvalidInputf("malformed timestamp %q", s)
}

// FormatSRTTime formats d as an SRT cue time (HH:MM:SS,mmm)
func FormatSRTTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
