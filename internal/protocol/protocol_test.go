package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVoteOption_Forms(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    VoteOption
		wantErr bool
	}{
		{"string", `{"pollId":"p1","option":"Pizza"}`, "Pizza", false},
		{"object", `{"pollId":"p1","option":{"option":"Salad"}}`, "Salad", false},
		{"number", `{"pollId":"p1","option":42}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p VotePollPayload
			err := json.Unmarshal([]byte(tt.raw), &p)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, p.Option)
		})
	}
}

func TestHistoryPayloadsAreArrays(t *testing.T) {
	for _, m := range []Message{ChatHistory(nil), PollHistory(nil)} {
		raw, err := json.Marshal(m)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"payload":[]`)
	}
}
