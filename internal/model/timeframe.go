package model

import "fmt"

// Timeframe is a display bucket width derived from base 1-minute bars.
type Timeframe int

// Supported timeframes.
const (
	Timeframe1m  Timeframe = 1
	Timeframe5m  Timeframe = 5
	Timeframe15m Timeframe = 15
	Timeframe30m Timeframe = 30
	Timeframe45m Timeframe = 45
)

// BaseTimeframe is the resolution the price feed is built at. Coarser
// timeframes are re-bucketed from these bars.
const BaseTimeframe = Timeframe1m

// Seconds returns the bucket width in seconds.
func (tf Timeframe) Seconds() int64 {
	return int64(tf) * 60
}

// Bucket returns the aligned bucket start for an epoch-seconds timestamp.
func (tf Timeframe) Bucket(ts int64) int64 {
	return ts - ts%tf.Seconds()
}

func (tf Timeframe) String() string {
	return fmt.Sprintf("%dm", int(tf))
}

// ParseTimeframe parses a timeframe name such as "5m" or "15m".
func ParseTimeframe(s string) (Timeframe, error) {
	switch s {
	case "1m":
		return Timeframe1m, nil
	case "5m":
		return Timeframe5m, nil
	case "15m":
		return Timeframe15m, nil
	case "30m":
		return Timeframe30m, nil
	case "45m":
		return Timeframe45m, nil
	}
	return 0, fmt.Errorf("model: unsupported timeframe %q", s)
}
