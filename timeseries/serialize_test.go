package timeseries

import (
	"encoding/json"
	"testing"
)

func TestSerializeEmptyBeforeAnyRotation(t *testing.T) {
	c := NewCounterSeries()
	out, err := c.Serialize(KindRequests, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty object before any minute elapsed, got %v", m)
	}
}

func TestSerializeAfterOneBucket(t *testing.T) {
	c := NewCounterSeries()
	for i := 0; i < 5; i++ {
		c.Add(KindRequests)
	}
	c.Rotate()

	specs := []BucketSpec{{MinutesPerBucket: 1, LastSequentialIndex: 0}}
	out, err := c.Serialize(KindRequests, specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		TimeSeries []struct {
			LastSequentialIndex int     `json:"last_sequential_index"`
			Requests            float64 `json:"requests"`
		} `json:"time_series"`
		TotalRequests      uint64 `json:"TotalRequests"`
		GrandTotalRequests uint64 `json:"GrandTotalRequests"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(decoded.TimeSeries) != 1 || decoded.TimeSeries[0].Requests != 5 {
		t.Fatalf("unexpected time_series bucket: %+v", decoded.TimeSeries)
	}
	if decoded.GrandTotalRequests != 5 {
		t.Fatalf("GrandTotalRequests = %d, want 5", decoded.GrandTotalRequests)
	}
}
