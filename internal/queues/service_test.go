package queues

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatdesk/chatdesk/internal/schedule"
)

func TestDecodeWorkDays(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[int]bool
	}{
		{"empty input", "", nil},
		{"empty object", "{}", nil},
		{"weekdays", `{"0":false,"1":true,"6":false}`, map[int]bool{0: false, 1: true, 6: false}},
		{"out of range keys skipped", `{"7":true,"-1":true,"2":true}`, map[int]bool{2: true}},
		{"non numeric keys skipped", `{"mon":true,"3":true}`, map[int]bool{3: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw []byte
			if tt.raw != "" {
				raw = []byte(tt.raw)
			}
			got, err := decodeWorkDays(raw)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeWorkDaysInvalidJSON(t *testing.T) {
	_, err := decodeWorkDays([]byte("not json"))
	require.Error(t, err)
}

func TestQueueHours(t *testing.T) {
	start, end := "09:00", "17:00"
	q := Queue{StartWork: &start, EndWork: &end, WorkDays: map[int]bool{1: true}}
	want := schedule.Hours{Start: &start, End: &end, WorkDays: map[int]bool{1: true}}
	require.Equal(t, want, q.Hours())
}
