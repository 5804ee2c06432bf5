package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestContextArgs(t *testing.T) {
	base := context.Background()

	tests := []struct {
		name string
		ctx  context.Context
		want []any
	}{
		{"empty", base, nil},
		{"request id only", WithRequestID(base, "req-1"), []any{"request_id", "req-1"}},
		{"job id only", WithJobID(base, "job-1"), []any{"job_id", "job-1"}},
		{"both", WithJobID(WithRequestID(base, "req-1"), "job-1"),
			[]any{"request_id", "req-1", "job_id", "job-1"}},
		{"blank id ignored", WithRequestID(base, ""), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contextArgs(tt.ctx)
			if len(got) != len(tt.want) {
				t.Fatalf("contextArgs() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("contextArgs()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestInfoContextCarriesIDs(t *testing.T) {
	var buf bytes.Buffer
	old := defaultLogger
	defaultLogger = slog.New(slog.NewTextHandler(&buf, nil))
	defer func() { defaultLogger = old }()

	ctx := WithJobID(WithRequestID(context.Background(), "req-42"), "job-7")
	InfoContext(ctx, "handled")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-42") {
		t.Errorf("log line missing request id: %s", out)
	}
	if !strings.Contains(out, "job_id=job-7") {
		t.Errorf("log line missing job id: %s", out)
	}
}
