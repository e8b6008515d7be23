package loadtest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteAggregateStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	results := []AggregateResult{
		{Level: 10, Sent: 100, Succeeded: 90, Failed: 10},
		{Level: 0},
	}
	require.NoError(t, writeAggregateStats(path, results, 10*time.Second))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"level", "succeeded", "failed", "sent", "missing", "success_rate", "throughput_per_sec"},
		{"10", "90", "10", "100", "0", "0.900000", "9.000000"},
		{"0", "0", "0", "0", "0", "0.000000", "0.000000"},
	}, records)
}
