package stats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBatchColumn(t *testing.T, filePath string) []int64 {
	t.Helper()

	file, err := os.Open(filePath)
	require.NoError(t, err)
	defer file.Close()

	reader, err := ipc.NewFileReader(file)
	require.NoError(t, err)
	defer reader.Close()

	var batches []int64
	for i := 0; i < reader.NumRecords(); i++ {
		record, err := reader.Record(i)
		require.NoError(t, err)
		require.EqualValues(t, len(ColumnNames), record.NumCols())

		col, ok := record.Column(0).(*array.Int64)
		require.True(t, ok, "batch column must be Int64")
		for r := 0; r < col.Len(); r++ {
			batches = append(batches, col.Value(r))
		}
	}
	return batches
}

func TestWriteArrowRoundTrip(t *testing.T) {
	run := NewRun()
	// record out of order, as parallel workers do
	run.Record(2, Counters{FixedToHV: 2})
	run.Record(0, Counters{FixedToHV: 1, NoCalls: 5})
	run.Record(1, Counters{FixedDP: 3})

	path := filepath.Join(t.TempDir(), "stats.arrow")
	// chunk size 2 forces a partial final chunk
	require.NoError(t, run.WriteArrow(path, 2))

	assert.Equal(t, []int64{0, 1, 2}, readBatchColumn(t, path), "rows must come out in batch order")
}

func TestRunAccumulates(t *testing.T) {
	run := NewRun()
	run.Record(0, Counters{FixedToHV: 1, FixedToHET: 2, NoCalls: 3})
	run.Record(1, Counters{FixedToHV: 10, FixedDP: 4, DroppedRecords: 7})

	total := run.Total()
	assert.Equal(t, int64(11), total.FixedToHV)
	assert.Equal(t, int64(2), total.FixedToHET)
	assert.Equal(t, int64(4), total.FixedDP)
	assert.Equal(t, int64(3), total.NoCalls)
	assert.Equal(t, int64(7), total.DroppedRecords)

	assert.Equal(t, []int{0, 1}, run.Batches())
	assert.Equal(t, int64(10), run.Batch(1).FixedToHV)
}
