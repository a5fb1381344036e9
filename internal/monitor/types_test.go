package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPreviewKeepsShortContent(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Hello World", Preview("Hello World"))
	exact := strings.Repeat("a", PreviewLimit)
	require.Equal(t, exact, Preview(exact))
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", PreviewLimit+10)
	got := Preview(long)
	require.True(t, strings.HasSuffix(got, "..."))
	require.Equal(t, PreviewLimit+3, len([]rune(got)))
}

func TestTargetInterval(t *testing.T) {
	t.Parallel()

	require.Equal(t, 5*time.Minute, Target{CheckIntervalMinutes: 5}.Interval())
}

func TestCheckResultOutcomes(t *testing.T) {
	t.Parallel()

	changed := CheckResult{Outcome: OutcomeChanged}
	require.True(t, changed.Success())
	require.True(t, changed.ChangeDetected())

	failed := CheckResult{Outcome: OutcomeFailed}
	require.False(t, failed.Success())
	require.False(t, failed.ChangeDetected())
}

func TestTypedErrorsUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	storageErr := &StorageError{Op: "create check record", Err: cause}
	require.ErrorIs(t, storageErr, cause)
	require.Contains(t, storageErr.Error(), "create check record")

	deliveryErr := &DeliveryError{Reason: "sendgrid", Err: cause}
	require.ErrorIs(t, deliveryErr, cause)

	var fetchErr error = &FetchError{Reason: "HTTP 403: Forbidden", Attempts: 3}
	var target *FetchError
	require.ErrorAs(t, fetchErr, &target)
	require.Equal(t, 3, target.Attempts)
}
