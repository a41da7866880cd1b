package reporting_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/reporting"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLoggingSink(t *testing.T) {
	var buf bytes.Buffer
	sink := reporting.NewLoggingSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	event := domain.NewCrossCountryConflict("acc-1", domain.MustAsset("123", "FR"), "DE", now)
	require.NoError(t, sink.Record(context.Background(), event))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, event.Description(), line["msg"])
	assert.Equal(t, "acc-1", line["account_id"])
	assert.Equal(t, "cross_country_conflict", line["kind"])
	assert.Equal(t, "123", line["asset_id"])
	assert.Equal(t, "FR", line["country_code"])
	assert.Equal(t, "DE", line["conflicting_country"])
	assert.Equal(t, event.ID, line["event_id"])
}

func TestLoggingSink_OmitsEmptyConflictingCountry(t *testing.T) {
	var buf bytes.Buffer
	sink := reporting.NewLoggingSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.Record(context.Background(),
		domain.NewSuperfluousRemoval("acc-1", domain.MustAsset("1", "US"), now)))

	assert.NotContains(t, buf.String(), "conflicting_country")
}

func TestMultiSink(t *testing.T) {
	var first, last reporting.Recorder
	boom := errors.New("boom")
	failing := reporting.SinkFunc(func(context.Context, domain.SuspiciousEvent) error { return boom })

	sink := reporting.MultiSink{&first, failing, &last}
	event := domain.NewDuplicateAssignment("acc-1", domain.MustAsset("1", "US"), now)

	err := sink.Record(context.Background(), event)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.Events(), 1)
	assert.Len(t, last.Events(), 1, "a failing sink does not stop the others")

	assert.NoError(t, reporting.MultiSink{&first}.Record(context.Background(), event))
	assert.NoError(t, reporting.Discard.Record(context.Background(), event))
}

func TestRecorder(t *testing.T) {
	var r reporting.Recorder
	event := domain.NewDuplicateAssignment("acc-1", domain.MustAsset("1", "US"), now)
	require.NoError(t, r.Record(context.Background(), event))

	events := r.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)

	r.Reset()
	assert.Empty(t, r.Events())
}
