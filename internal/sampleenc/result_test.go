package sampleenc

import (
	"math"
	"testing"

	"github.com/five82/crfscan/internal/quality"
)

func TestAggregate(t *testing.T) {
	// Two 20s samples of a 1800s reference with a 900 MB video stream.
	samples := []SampleOutcome{
		{Index: 0, Score: 94, EncodedBytes: 4_000_000, SampleSeconds: 20, EncodeSeconds: 30},
		{Index: 1, Score: 96, EncodedBytes: 6_000_000, SampleSeconds: 20, EncodeSeconds: 50},
	}

	res := aggregate(samples, 1800, 900_000_000)

	if res.MeanScore != 95 {
		t.Errorf("MeanScore = %v, want 95", res.MeanScore)
	}

	// 10 MB over 40s -> 250 kB/s -> 450 MB over 1800s -> 50% of 900 MB.
	if math.Abs(res.PredictedEncodePercent-50) > 1e-9 {
		t.Errorf("PredictedEncodePercent = %v, want 50", res.PredictedEncodePercent)
	}
	if res.PredictedEncodeSize != 450_000_000 {
		t.Errorf("PredictedEncodeSize = %d, want 450000000", res.PredictedEncodeSize)
	}

	// 80s of encode wall time for 40s of media -> 2x realtime -> 3600s.
	if math.Abs(res.PredictedEncodeSeconds-3600) > 1e-9 {
		t.Errorf("PredictedEncodeSeconds = %v, want 3600", res.PredictedEncodeSeconds)
	}
}

func TestAggregateShortSample(t *testing.T) {
	// A tail sample came up short: predictions scale on real coverage.
	samples := []SampleOutcome{
		{Index: 0, Score: 90, EncodedBytes: 1_000_000, SampleSeconds: 10, EncodeSeconds: 10},
	}

	res := aggregate(samples, 100, 100_000_000)

	// 100 kB/s -> 10 MB over 100s -> 10%.
	if math.Abs(res.PredictedEncodePercent-10) > 1e-9 {
		t.Errorf("PredictedEncodePercent = %v, want 10", res.PredictedEncodePercent)
	}
}

func TestAggregatePercentCap(t *testing.T) {
	// An encode larger than the source caps into the reportable range.
	samples := []SampleOutcome{
		{Index: 0, Score: 99, EncodedBytes: 1 << 40, SampleSeconds: 20, EncodeSeconds: 5},
	}

	res := aggregate(samples, 2000, 1000)
	if res.PredictedEncodePercent != maxReportablePercent {
		t.Errorf("PredictedEncodePercent = %v, want cap %v", res.PredictedEncodePercent, maxReportablePercent)
	}
}

func TestAggregateInfScores(t *testing.T) {
	samples := []SampleOutcome{
		{Index: 0, Score: quality.InfiniteScoreSentinel, ScoreInf: true, EncodedBytes: 1000, SampleSeconds: 20, EncodeSeconds: 5},
		{Index: 1, Score: quality.InfiniteScoreSentinel, ScoreInf: true, EncodedBytes: 1000, SampleSeconds: 20, EncodeSeconds: 5},
	}

	res := aggregate(samples, 100, 1_000_000)
	if !res.ScoreInf {
		t.Error("all-infinite samples should mark the result infinite")
	}
	if math.IsInf(res.MeanScore, 0) {
		t.Error("MeanScore must stay finite for reporting")
	}

	// A single finite sample clears the flag.
	samples[1].ScoreInf = false
	samples[1].Score = 95
	res = aggregate(samples, 100, 1_000_000)
	if res.ScoreInf {
		t.Error("mixed samples should not mark the result infinite")
	}
}

func TestResultRoundTrip(t *testing.T) {
	res := aggregate([]SampleOutcome{
		{Index: 0, Score: 95.5, EncodedBytes: 123456, SampleSeconds: 20, EncodeSeconds: 33.3},
	}, 600, 500_000_000)

	payload, err := res.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	got, err := UnmarshalResult(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !got.FromCache {
		t.Error("unmarshalled results are cache hits")
	}

	// Cache hits are bit-identical on every reported field.
	if got.MeanScore != res.MeanScore ||
		got.PredictedEncodePercent != res.PredictedEncodePercent ||
		got.PredictedEncodeSeconds != res.PredictedEncodeSeconds ||
		got.PredictedEncodeSize != res.PredictedEncodeSize {
		t.Errorf("round trip changed aggregates: %+v vs %+v", got, res)
	}
	if len(got.Samples) != 1 || got.Samples[0] != res.Samples[0] {
		t.Errorf("round trip changed samples: %+v", got.Samples)
	}
}

func TestUnmarshalCorrupt(t *testing.T) {
	if _, err := UnmarshalResult([]byte("not json")); err == nil {
		t.Error("corrupt payloads must error, not default")
	}
}
