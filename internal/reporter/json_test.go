package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONReporterVmafResult(t *testing.T) {
	var out, errW bytes.Buffer
	r := NewJSONReporterWithWriter(&out, &errW)

	r.SampleEncodeComplete(EncodeSummary{
		Metric:                 "VMAF",
		Score:                  95.43,
		PredictedEncodePercent: 31.2,
		PredictedEncodeSeconds: 842.5,
		PredictedEncodeSize:    335544320,
	})

	var obj map[string]any
	if err := json.Unmarshal(out.Bytes(), &obj); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, out.String())
	}

	if obj["vmaf"] != 95.43 {
		t.Errorf("vmaf = %v, want 95.43", obj["vmaf"])
	}
	if _, present := obj["xpsnr"]; present {
		t.Error("xpsnr must be absent for a vmaf result")
	}
	if obj["predicted_encode_percent"] != 31.2 {
		t.Errorf("predicted_encode_percent = %v", obj["predicted_encode_percent"])
	}
	if obj["predicted_encode_size"] != float64(335544320) {
		t.Errorf("predicted_encode_size = %v", obj["predicted_encode_size"])
	}

	if strings.Count(out.String(), "\n") != 1 {
		t.Errorf("expected exactly one JSON object, got %q", out.String())
	}
}

func TestJSONReporterXpsnrResult(t *testing.T) {
	var out, errW bytes.Buffer
	r := NewJSONReporterWithWriter(&out, &errW)

	r.SearchComplete(SearchOutcome{
		Crf: "33",
		Summary: EncodeSummary{
			Metric: "XPSNR",
			Score:  41.2,
		},
	})

	var obj map[string]any
	if err := json.Unmarshal(out.Bytes(), &obj); err != nil {
		t.Fatal(err)
	}

	if obj["xpsnr"] != 41.2 {
		t.Errorf("xpsnr = %v, want 41.2", obj["xpsnr"])
	}
	if _, present := obj["vmaf"]; present {
		t.Error("vmaf must be absent for an xpsnr result")
	}
	if obj["crf"] != "33" {
		t.Errorf("crf = %v, want 33", obj["crf"])
	}
}

func TestJSONReporterProgressIsSilent(t *testing.T) {
	var out, errW bytes.Buffer
	r := NewJSONReporterWithWriter(&out, &errW)

	r.SearchStarted(SearchInfo{InputFile: "in.mkv"})
	r.ProbeStarted("30")
	r.StageProgress(StageProgress{Stage: StageEncoding, Percent: 50})
	r.ProbeComplete(ProbeSummary{Crf: "30"})

	if out.Len() != 0 {
		t.Errorf("progress must not reach stdout, got %q", out.String())
	}

	r.Warning("cache unavailable")
	if out.Len() != 0 {
		t.Error("warnings must not reach stdout")
	}
	if !strings.Contains(errW.String(), "cache unavailable") {
		t.Error("warnings should reach stderr")
	}
}
