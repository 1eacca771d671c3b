package statsclient

import "testing"

func TestNopStatsClientWithTagsStaysNop(t *testing.T) {
	if NopStatsClient.WithTags("a:b") != NopStatsClient {
		t.Fatal("NopStatsClient.WithTags should return the same singleton")
	}
	if NopStatsClient.Tags() != nil {
		t.Fatal("NopStatsClient.Tags() should be nil")
	}
	if err := NopStatsClient.Close(); err != nil {
		t.Fatalf("NopStatsClient.Close() = %v, want nil", err)
	}
}

func TestNewStatsClientDialsWithoutError(t *testing.T) {
	// statsd.New over UDP never actually connects, so this exercises
	// construction without requiring a live agent.
	c, err := NewStatsClient("127.0.0.1:18125", nil)
	if err != nil {
		t.Fatalf("NewStatsClient: %v", err)
	}
	defer c.Close()

	c.Count("requests", 1, 1)
	c.Gauge("pool_size", 3, 1)
}

func TestWithTagsUnionsAndSortsTags(t *testing.T) {
	c, err := NewStatsClient("127.0.0.1:18125", nil)
	if err != nil {
		t.Fatalf("NewStatsClient: %v", err)
	}
	defer c.Close()

	tagged := c.WithTags("group:cassandra", "env:test")
	got := tagged.Tags()
	want := []string{"env:test", "group:cassandra"}
	if len(got) != len(want) {
		t.Fatalf("Tags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tags() = %v, want %v", got, want)
		}
	}
}

func TestWithTagsDeduplicatesAcrossCalls(t *testing.T) {
	c, err := NewStatsClient("127.0.0.1:18125", nil)
	if err != nil {
		t.Fatalf("NewStatsClient: %v", err)
	}
	defer c.Close()

	first := c.WithTags("series:requests")
	second := first.WithTags("series:requests", "extra:1")
	got := second.Tags()
	if len(got) != 2 {
		t.Fatalf("Tags() = %v, want 2 deduplicated entries", got)
	}
}
