// Package sampleenc evaluates one (encode settings, CRF) point by encoding
// and scoring short samples, aggregating them into a single prediction.
package sampleenc

import (
	"encoding/json"
	"math"

	"github.com/five82/crfscan/internal/quality"
)

// percent predictions are capped into this reportable range; the cap is for
// display and caching only and never passes a result that violates the size
// ceiling.
const (
	minReportablePercent = 0.01
	maxReportablePercent = 999.0
)

// SampleOutcome is one sample's measured result.
type SampleOutcome struct {
	Index         int     `json:"index"`
	Score         float64 `json:"score"`
	ScoreInf      bool    `json:"score_inf,omitempty"`
	EncodedBytes  uint64  `json:"encoded_bytes"`
	SampleSeconds float64 `json:"sample_seconds"`
	EncodeSeconds float64 `json:"encode_seconds"`
}

// Result aggregates every sample of one evaluated point.
type Result struct {
	MeanScore              float64         `json:"mean_score"`
	ScoreInf               bool            `json:"score_inf,omitempty"`
	PredictedEncodePercent float64         `json:"predicted_encode_percent"`
	PredictedEncodeSeconds float64         `json:"predicted_encode_seconds"`
	PredictedEncodeSize    uint64          `json:"predicted_encode_size"`
	Samples                []SampleOutcome `json:"samples"`

	// FromCache marks a result served without running any subprocess.
	FromCache bool `json:"-"`
}

// aggregate reduces per-sample outcomes against the reference's full
// duration and video-stream byte budget.
func aggregate(samples []SampleOutcome, refDuration float64, videoStreamBytes uint64) *Result {
	res := &Result{Samples: samples}
	if len(samples) == 0 {
		return res
	}

	var scoreSum float64
	var encodedBytes uint64
	var sampledSeconds, encodeSeconds float64
	allInf := true

	for _, s := range samples {
		scoreSum += s.Score
		encodedBytes += s.EncodedBytes
		sampledSeconds += s.SampleSeconds
		encodeSeconds += s.EncodeSeconds
		if !s.ScoreInf {
			allInf = false
		}
	}

	res.MeanScore = scoreSum / float64(len(samples))
	res.ScoreInf = allInf

	if sampledSeconds > 0 {
		bytesPerSecond := float64(encodedBytes) / sampledSeconds
		predictedBytes := bytesPerSecond * refDuration

		if videoStreamBytes > 0 {
			res.PredictedEncodePercent = capPercent(100 * predictedBytes / float64(videoStreamBytes))
			res.PredictedEncodeSize = uint64(res.PredictedEncodePercent / 100 * float64(videoStreamBytes))
		} else {
			res.PredictedEncodeSize = uint64(predictedBytes)
		}

		res.PredictedEncodeSeconds = encodeSeconds / sampledSeconds * refDuration
	}

	return res
}

func capPercent(p float64) float64 {
	if math.IsNaN(p) || p < minReportablePercent {
		return minReportablePercent
	}
	if p > maxReportablePercent {
		return maxReportablePercent
	}
	return p
}

// clampScore folds an infinite score into its finite sentinel.
func clampScore(s quality.Score) (float64, bool) {
	if s.Inf() {
		return quality.InfiniteScoreSentinel, true
	}
	return float64(s), false
}

// Marshal serialises a result for caching.
func (r *Result) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalResult deserialises a cached result. Corrupt payloads return an
// error and read as cache misses.
func UnmarshalResult(payload []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, err
	}
	res.FromCache = true
	return &res, nil
}
