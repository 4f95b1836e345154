package sidechannel

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var StatsChannelID = uuid.MustParse("a1d8f7b7-cec8-50f9-b78b-d3e165a78520")

type AggregationMethod int32

const (
	AggregateAverage AggregationMethod = iota
	AggregateMostRecent
	AggregateSum
	AggregateHistogram
)

func (a AggregationMethod) String() string {
	switch a {
	case AggregateAverage:
		return "average"
	case AggregateMostRecent:
		return "most_recent"
	case AggregateSum:
		return "sum"
	case AggregateHistogram:
		return "histogram"
	}
	return fmt.Sprintf("aggregation(%d)", int32(a))
}

type StatValue struct {
	Value       float32
	Aggregation AggregationMethod
}

// StatsChannel collects the values scenes record with Academy.Instance.StatsRecorder.
type StatsChannel struct {
	Base

	mu    sync.Mutex
	stats map[string][]StatValue
}

func NewStatsChannel() *StatsChannel {
	return &StatsChannel{
		Base:  NewBase(StatsChannelID),
		stats: make(map[string][]StatValue),
	}
}

func (c *StatsChannel) OnMessageReceived(msg *IncomingMessage) error {
	key := msg.ReadString("")
	value := msg.ReadFloat32(0)
	agg := AggregationMethod(msg.ReadInt32(0))
	if err := msg.Err(); err != nil {
		return err
	}
	if agg < AggregateAverage || agg > AggregateHistogram {
		return fmt.Errorf("stat %q: unknown %s", key, agg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[key] = append(c.stats[key], StatValue{Value: value, Aggregation: agg})
	return nil
}

// GetAndReset returns the stats gathered since the previous call.
func (c *StatsChannel) GetAndReset() map[string][]StatValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	c.stats = make(map[string][]StatValue)
	return out
}

// Summarize folds each key's values according to its aggregation method.
// Histogram keys report their mean.
func Summarize(stats map[string][]StatValue) map[string]float64 {
	out := make(map[string]float64, len(stats))
	for key, values := range stats {
		if len(values) == 0 {
			continue
		}
		switch values[len(values)-1].Aggregation {
		case AggregateMostRecent:
			out[key] = float64(values[len(values)-1].Value)
		case AggregateSum:
			var sum float64
			for _, v := range values {
				sum += float64(v.Value)
			}
			out[key] = sum
		default:
			var sum float64
			for _, v := range values {
				sum += float64(v.Value)
			}
			out[key] = sum / float64(len(values))
		}
	}
	return out
}
