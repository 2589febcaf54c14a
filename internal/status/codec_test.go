package status

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Date(2014, 7, 10, 10, 19, 0, 0, time.UTC)
	tests := []struct {
		name   string
		record *Record
	}{
		{
			name:   "classified record",
			record: NewRecord(ts, 1250*time.Millisecond, "## master...origin/master [ahead 1]\n M collection.json", "annexed files: 3", SyncStateAhead),
		},
		{
			name:   "empty raw sections",
			record: NewRecord(ts, 0, "", "", SyncStateUnknown),
		},
		{
			name: "never classified",
			record: &Record{
				Timestamp: ts,
				Elapsed:   3 * time.Second,
				RawStatus: "## master",
			},
		},
		{
			name:   "raw status keeps leading spaces and trailing newline",
			record: NewRecord(ts, time.Minute, " M files/ddr-test-1-1/entity.json\n?? tmp\n", "", SyncStateConflicted),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decoded, err := Decode(Encode(tt.record))
			require.NoError(t, err)
			assert.Equal(t, tt.record, decoded)
		})
	}
}

func TestEncode_Layout(t *testing.T) {
	t.Parallel()

	ts := time.Date(2014, 7, 10, 10, 19, 0, 0, time.UTC)
	r := NewRecord(ts, 2*time.Second, "## master...origin/master", "ok", SyncStateSynced)

	expected := "2014-07-10T10:19:00 2s\n%%\n## master...origin/master\n%%\nok\n%%\n" +
		`{"status":"synced","color":"success","timestamp":"2014-07-10T10:19:00"}`
	assert.Equal(t, expected, Encode(r))
}

func TestDecode_OptionalSections(t *testing.T) {
	t.Parallel()

	t.Run("missing summary section", func(t *testing.T) {
		t.Parallel()

		r, err := Decode("2014-07-10T10:19:00 2s\n%%\n## master\n%%\n\n")
		require.NoError(t, err)
		assert.Nil(t, r.SyncStatus)
		assert.Equal(t, "## master", r.RawStatus)
	})

	t.Run("only header", func(t *testing.T) {
		t.Parallel()

		r, err := Decode("2014-07-10T10:19:00 2s\n")
		require.NoError(t, err)
		assert.Nil(t, r.SyncStatus)
		assert.Empty(t, r.RawStatus)
		assert.Empty(t, r.RawAnnexStatus)
	})

	t.Run("extra sections ignored", func(t *testing.T) {
		t.Parallel()

		text := "2014-07-10T10:19:00 2s\n%%\na\n%%\nb\n%%\n" +
			`{"status":"behind","color":"warning","timestamp":"2014-07-10T10:19:00"}` + "\n%%\njunk"
		r, err := Decode(text)
		require.NoError(t, err)
		require.NotNil(t, r.SyncStatus)
		assert.Equal(t, SyncStateBehind, r.SyncStatus.State)
	})

	t.Run("summary without timestamp inherits record timestamp", func(t *testing.T) {
		t.Parallel()

		r, err := Decode("2014-07-10T10:19:00 2s\n%%\n%%\n%%\n{\"status\":\"synced\",\"color\":\"success\"}")
		require.NoError(t, err)
		require.NotNil(t, r.SyncStatus)
		assert.Equal(t, r.Timestamp, r.SyncStatus.Timestamp)
	})
}

func TestDecode_ClockElapsed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		elapsed string
		want    time.Duration
	}{
		{elapsed: "0:00:01.234567", want: 1234567 * time.Microsecond},
		{elapsed: "0:00:02", want: 2 * time.Second},
		{elapsed: "1:02:03.5", want: time.Hour + 2*time.Minute + 3*time.Second + 500*time.Millisecond},
		{elapsed: "1.5s", want: 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.elapsed, func(t *testing.T) {
			t.Parallel()

			r, err := Decode("2014-07-10T10:19:00 " + tt.elapsed + "\n%%\n## master\n%%\n%%\n")
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Elapsed)
			assert.Equal(t, "## master", r.RawStatus)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "missing elapsed", text: "2014-07-10T10:19:00\n%%\n"},
		{name: "bad timestamp", text: "07/10/2014 2s"},
		{name: "bad elapsed", text: "2014-07-10T10:19:00 soon"},
		{name: "elapsed clock out of range", text: "2014-07-10T10:19:00 0:75:00"},
		{name: "elapsed clock too short", text: "2014-07-10T10:19:00 0:01"},
		{name: "bad summary json", text: "2014-07-10T10:19:00 2s\n%%\n%%\n%%\n{nope"},
		{name: "unknown state", text: "2014-07-10T10:19:00 2s\n%%\n%%\n%%\n{\"status\":\"sideways\"}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tt.text)
			require.Error(t, err)
			var parseErr *ParseError
			assert.True(t, errors.As(err, &parseErr))
		})
	}
}

func TestTimestampFormat_SortsChronologically(t *testing.T) {
	t.Parallel()

	earlier := FormatTimestamp(time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC))
	later := FormatTimestamp(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Less(t, earlier, later)
	assert.Equal(t, "1970-01-01T00:00:00", FormatTimestamp(Epoch))
}

func TestSyncState_Color(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ColorSuccess, SyncStateSynced.Color())
	assert.Equal(t, ColorWarning, SyncStateAhead.Color())
	assert.Equal(t, ColorWarning, SyncStateBehind.Color())
	assert.Equal(t, ColorWarning, SyncStateLocked.Color())
	assert.Equal(t, ColorDanger, SyncStateConflicted.Color())
	assert.Equal(t, ColorDanger, SyncStateDiverged.Color())
	assert.Equal(t, ColorMuted, SyncStateUnknown.Color())
}
