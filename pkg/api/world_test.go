package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorldResponse_MarshalJSON(t *testing.T) {
	tests := []struct {
		name        string
		resp        WorldResponse
		wantKeys    []string
		wantMissing []string
	}{
		{
			name:        "empty snapshot keeps regions",
			resp:        WorldResponse{Mode: ModeSnapshot, Seq: 0},
			wantKeys:    []string{"mode", "regions", "seq"},
			wantMissing: []string{"diff", "trees", "animals", "noise"},
		},
		{
			name: "snapshot with regions",
			resp: WorldResponse{
				Mode:    ModeSnapshot,
				Regions: []WorldRegion{{ID: "north", Vegetation: 0.5}},
				Seq:     3,
			},
			wantKeys:    []string{"mode", "regions", "seq"},
			wantMissing: []string{"diff"},
		},
		{
			name:        "empty diff keeps diff",
			resp:        WorldResponse{Mode: ModeDiff, Seq: 7},
			wantKeys:    []string{"mode", "diff", "seq"},
			wantMissing: []string{"regions", "trees", "animals", "noise"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			require.NoError(t, err)

			var raw map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(data, &raw))
			for _, key := range tt.wantKeys {
				assert.Contains(t, raw, key)
			}
			for _, key := range tt.wantMissing {
				assert.NotContains(t, raw, key)
			}

			var decoded WorldResponse
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, tt.resp.Mode, decoded.Mode)
			assert.Equal(t, tt.resp.Seq, decoded.Seq)
		})
	}
}

func TestWorldResponse_MarshalJSONEmptyCollections(t *testing.T) {
	data, err := json.Marshal(&WorldResponse{Mode: ModeDiff, Seq: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"diff","diff":[],"seq":2}`, string(data))

	data, err = json.Marshal(WorldResponse{Mode: ModeSnapshot, Seq: 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"snapshot","regions":[],"seq":0}`, string(data))
}
