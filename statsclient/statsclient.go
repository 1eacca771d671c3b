// Package statsclient sends counters and gauges to a DataDog StatsD
// agent. It mirrors the StatsClient shape the ambient stack expects
// (Count/Gauge/Timing/WithTags/Close) so the timeseries registry can
// report through one seam whether or not an agent is actually
// listening.
package statsclient

import (
	"sort"
	"time"

	"github.com/DataDog/datadog-go/statsd"

	"github.com/ncbi/psg-cassvc/logger"
)

// StatsClient is the narrow surface callers in this module use.
type StatsClient interface {
	Tags() []string
	WithTags(tags ...string) StatsClient
	Count(name string, value int64, rate float64)
	Gauge(name string, value float64, rate float64)
	Timing(name string, value time.Duration, rate float64)
	Close() error
}

// NopStatsClient discards everything. Used when no StatsD host is
// configured.
var NopStatsClient StatsClient = nopStatsClient{}

type nopStatsClient struct{}

func (nopStatsClient) Tags() []string                                        { return nil }
func (nopStatsClient) WithTags(tags ...string) StatsClient                   { return NopStatsClient }
func (nopStatsClient) Count(name string, value int64, rate float64)          {}
func (nopStatsClient) Gauge(name string, value float64, rate float64)        {}
func (nopStatsClient) Timing(name string, value time.Duration, rate float64) {}
func (nopStatsClient) Close() error                                          { return nil }

// DataDogStatsClient forwards to a *statsd.Client (DogStatsD, UDP).
type DataDogStatsClient struct {
	client *statsd.Client
	tags   []string
	log    logger.Logger
}

// NewStatsClient dials host (host:port of a dogstatsd agent).
func NewStatsClient(host string, log logger.Logger) (*DataDogStatsClient, error) {
	c, err := statsd.New(host)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger
	}
	return &DataDogStatsClient{client: c, log: log}, nil
}

// Tags returns a sorted copy of the tags this client attaches to
// every metric.
func (c *DataDogStatsClient) Tags() []string {
	tags := make([]string, len(c.tags))
	copy(tags, c.tags)
	sort.Strings(tags)
	return tags
}

// WithTags returns a new client that also attaches tags.
func (c *DataDogStatsClient) WithTags(tags ...string) StatsClient {
	merged := unionStrings(c.tags, tags)
	return &DataDogStatsClient{client: c.client, tags: merged, log: c.log}
}

func (c *DataDogStatsClient) Count(name string, value int64, rate float64) {
	if err := c.client.Count(name, value, c.tags, rate); err != nil {
		c.log.Warnf("statsclient: count %s: %v", name, err)
	}
}

func (c *DataDogStatsClient) Gauge(name string, value float64, rate float64) {
	if err := c.client.Gauge(name, value, c.tags, rate); err != nil {
		c.log.Warnf("statsclient: gauge %s: %v", name, err)
	}
}

func (c *DataDogStatsClient) Timing(name string, value time.Duration, rate float64) {
	if err := c.client.Timing(name, value, c.tags, rate); err != nil {
		c.log.Warnf("statsclient: timing %s: %v", name, err)
	}
}

func (c *DataDogStatsClient) Close() error { return c.client.Close() }

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
