package logger

import (
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{" info ", LevelInfo, false},
		{"warning", LevelWarning, false},
		{"WARN", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	prev := GetLevel()
	defer SetLevel(prev)

	SetLevel(LevelError)
	if GetLevel() != LevelError {
		t.Errorf("GetLevel() = %v, want %v", GetLevel(), LevelError)
	}
}

func TestDomainCounters(t *testing.T) {
	prevLevel := GetLevel()
	SetLevel(LevelFatal)
	SetSampleRate(1)
	defer SetLevel(prevLevel)

	skipped, warnings := SkippedRules.Load(), TotalWarnings.Load()
	WarnSkippedRule("Skipping rule", "rule_id", "r1")
	if SkippedRules.Load() != skipped+1 || TotalWarnings.Load() != warnings+1 {
		t.Error("WarnSkippedRule should count a skipped rule and a warning")
	}

	fails := ExpressionFails.Load()
	WarnExpression("Export failed")
	if ExpressionFails.Load() != fails+1 {
		t.Error("WarnExpression should count an expression failure")
	}

	scans := AudienceScans.Load()
	CountScan()
	CountScan()
	if AudienceScans.Load() != scans+2 {
		t.Error("CountScan should count every scan")
	}

	errs, http5xx := TotalErrors.Load(), Total5xxErrors.Load()
	ErrorHttp5xx()
	if TotalErrors.Load() != errs+1 || Total5xxErrors.Load() != http5xx+1 {
		t.Error("ErrorHttp5xx should count an error and a 5xx")
	}

	http4xx := Total4xxErrors.Load()
	WarnHttp4xx()
	if Total4xxErrors.Load() != http4xx+1 {
		t.Error("WarnHttp4xx should count a 4xx")
	}
}

func TestSampleRateFloor(t *testing.T) {
	SetSampleRate(0)
	if !shouldSample() {
		t.Error("a rate below 1 should write every message")
	}
	SetSampleRate(1)
}
