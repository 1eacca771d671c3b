package timeseries

import "encoding/json"

// BucketSpec describes one aggregated output bucket: how many minutes
// of ring data it covers, and the sequential index (in the caller's
// own numbering) of the newest minute it should stop at.
type BucketSpec struct {
	MinutesPerBucket    int
	LastSequentialIndex int
}

// Bucket is one aggregated entry of the "time_series" output array.
type Bucket struct {
	LastSequentialIndex int     `json:"last_sequential_index"`
	Requests            float64 `json:"requests"`
}

// Serialize renders kind's ring as a JSON object: time_series (buckets
// walking backward from current_index-1), RestAvgReqPerSec,
// MaxReqPerSec, AvgReqPerSec, TotalRequests, GrandTotalRequests. When
// no minute has elapsed and no loop has occurred, it returns an empty
// JSON object.
func (c *CounterSeries) Serialize(kind Kind, specs []BucketSpec) ([]byte, error) {
	looped, idx, totalMinutes := c.snapshot()
	if totalMinutes == 0 && !looped {
		return json.Marshal(map[string]interface{}{})
	}

	grandTotal := c.Total(kind)

	pos := int(idx)
	buckets := make([]Bucket, 0, len(specs))
	var maxPerMinute uint64
	var coveredTotal uint64
	var coveredMinutes int

	for _, spec := range specs {
		var sum uint64
		for m := 0; m < spec.MinutesPerBucket; m++ {
			pos = (pos - 1 + N) % N
			v := c.counters[kind][pos]
			sum += v
			if v > maxPerMinute {
				maxPerMinute = v
			}
		}
		avg := float64(sum) / float64(spec.MinutesPerBucket)
		buckets = append(buckets, Bucket{LastSequentialIndex: spec.LastSequentialIndex, Requests: avg})
		coveredTotal += sum
		coveredMinutes += spec.MinutesPerBucket
	}

	// RestAvgReqPerSec: the average over minutes older than the
	// window above. The denominator total_minutes_collected - N - 2
	// (excluding the current and last minute when looped, to avoid
	// torn reads at the wrap boundary) can go briefly negative just
	// after a wrap; clamp it at zero.
	var restAvg float64
	if looped {
		denom := int64(totalMinutes) - int64(N) - 2
		if denom < 0 {
			denom = 0
		}
		restOfRing := grandTotal
		if restOfRing > coveredTotal {
			restOfRing -= coveredTotal
		} else {
			restOfRing = 0
		}
		if denom > 0 {
			restAvg = float64(restOfRing) / float64(denom*60)
		}
	}

	var avgReqPerSec float64
	if coveredMinutes > 0 {
		avgReqPerSec = float64(coveredTotal) / float64(coveredMinutes*60)
	}

	out := map[string]interface{}{
		"time_series":        buckets,
		"RestAvgReqPerSec":   restAvg,
		"MaxReqPerSec":       float64(maxPerMinute) / 60.0,
		"AvgReqPerSec":       avgReqPerSec,
		"TotalRequests":      coveredTotal,
		"GrandTotalRequests": grandTotal,
	}
	return json.Marshal(out)
}
