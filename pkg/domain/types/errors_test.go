package types_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/types"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "nil error",
			err:  nil,
			want: types.ExitOK,
		},
		{
			name: "bad input",
			err:  goerr.New("exactly one input required", goerr.T(types.TagBadInput)),
			want: types.ExitBadInput,
		},
		{
			name: "environment",
			err:  goerr.New("broken config", goerr.T(types.TagEnvironment)),
			want: types.ExitEnvironment,
		},
		{
			name: "storage",
			err:  goerr.New("directory not writable", goerr.T(types.TagStorage)),
			want: types.ExitStorage,
		},
		{
			name: "transfer",
			err:  goerr.New("segment failed", goerr.T(types.TagTransfer)),
			want: types.ExitTransfer,
		},
		{
			name: "wrapped tagged error keeps its code",
			err:  fmt.Errorf("cli: %w", goerr.New("no space left", goerr.T(types.TagStorage))),
			want: types.ExitStorage,
		},
		{
			name: "untagged error falls back to general",
			err:  errors.New("something else"),
			want: types.ExitBadInput,
		},
		{
			name: "interrupt",
			err:  context.Canceled,
			want: types.ExitInterrupted,
		},
		{
			name: "interrupt wrapped in transfer error",
			err:  goerr.Wrap(context.Canceled, "transfer aborted", goerr.T(types.TagTransfer)),
			want: types.ExitInterrupted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := types.ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %v, want %v", got, tt.want)
			}
		})
	}
}
