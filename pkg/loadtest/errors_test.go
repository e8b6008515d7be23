package loadtest_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/informalsystems/wsproxy-load-test/pkg/loadtest"
)

func TestErrorCodes(t *testing.T) {
	upstream := errors.New("disk full")
	testCases := []struct {
		err      error
		code     loadtest.ErrorCode
		exitCode int
		msg      string
	}{
		{nil, loadtest.NoError, 0, ""},
		{
			loadtest.NewError(loadtest.ErrFailedToWriteResults, upstream, "wsproxy.txt"),
			loadtest.ErrFailedToWriteResults,
			int(loadtest.ErrFailedToWriteResults),
			"Failed to write results: wsproxy.txt. Caused by: disk full",
		},
		{
			fmt.Errorf("wrapped: %w", loadtest.NewError(loadtest.ErrKilled, nil)),
			loadtest.ErrKilled,
			int(loadtest.ErrKilled),
			"wrapped: Process killed",
		},
		{upstream, loadtest.NoError, 1, "disk full"},
	}
	for i, tc := range testCases {
		if tc.err != nil && tc.code != loadtest.NoError && !loadtest.IsErrorCode(tc.err, tc.code) {
			t.Errorf("Test case %d: Expected error to have code %d", i, tc.code)
		}
		if actual := loadtest.ExitCode(tc.err); actual != tc.exitCode {
			t.Errorf("Test case %d: Expected exit code %d, but got %d", i, tc.exitCode, actual)
		}
		if tc.err != nil && tc.err.Error() != tc.msg {
			t.Errorf("Test case %d: Expected message %q, but got %q", i, tc.msg, tc.err.Error())
		}
	}
	if !errors.Is(loadtest.NewError(loadtest.ErrFailedToWriteResults, upstream), upstream) {
		t.Error("Expected upstream error to be reachable through errors.Is")
	}
}
