package bytefmt_test

import (
	"testing"

	"github.com/m-mizutani/hauler/pkg/utils/bytefmt"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "bare bytes", input: "1024", want: 1024},
		{name: "kilobytes", input: "16KB", want: 16 * 1024},
		{name: "megabytes", input: "16MB", want: 16 * 1024 * 1024},
		{name: "gigabytes", input: "2GB", want: 2 * 1024 * 1024 * 1024},
		{name: "short unit", input: "512k", want: 512 * 1024},
		{name: "lowercase", input: "8mb", want: 8 * 1024 * 1024},
		{name: "fractional", input: "1.5MB", want: 1536 * 1024},
		{name: "zero", input: "0", want: 0},
		{name: "surrounding spaces", input: " 4MB ", want: 4 * 1024 * 1024},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "lots", wantErr: true},
		{name: "negative", input: "-1MB", wantErr: true},
		{name: "unit only", input: "MB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bytefmt.Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{input: 0, want: "0B"},
		{input: 512, want: "512B"},
		{input: 2048, want: "2.0KB"},
		{input: 16 * 1024 * 1024, want: "16.0MB"},
		{input: 3 * 1024 * 1024 * 1024, want: "3.0GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := bytefmt.Format(tt.input); got != tt.want {
				t.Errorf("Format(%d) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
