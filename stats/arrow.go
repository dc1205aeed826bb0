package stats

import (
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/pkg/errors"
)

// ColumnNames is the fixed schema of the per-batch QC artifact, batch number
// first. Downstream QC tooling keys on these names.
var ColumnNames = []string{
	"batch", "fixedToHV", "fixedToHET", "fixedDP", "noCalls", "droppedRecords",
}

// ArrowWriter writes one int64 row per batch to an Arrow IPC file, flushing
// in chunks.
type ArrowWriter struct {
	writer         *ipc.FileWriter
	schema         *arrow.Schema
	builders       []*array.Int64Builder
	chunkSize      int
	numRowsInChunk int
}

func NewArrowWriter(filePath string, chunkSize int) (*ArrowWriter, error) {
	pool := memory.NewGoAllocator()

	fields := make([]arrow.Field, len(ColumnNames))
	for i, name := range ColumnNames {
		fields[i] = arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int64}
	}
	schema := arrow.NewSchema(fields, nil)

	file, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}

	writer, err := ipc.NewFileWriter(file, ipc.WithSchema(schema))
	if err != nil {
		return nil, err
	}

	builders := make([]*array.Int64Builder, len(fields))
	for i := range fields {
		builders[i] = array.NewInt64Builder(pool)
	}

	return &ArrowWriter{
		writer:    writer,
		schema:    schema,
		builders:  builders,
		chunkSize: chunkSize,
	}, nil
}

// WriteRow appends the counters of one batch.
func (aw *ArrowWriter) WriteRow(batch int, c Counters) error {
	row := [...]int64{
		int64(batch), c.FixedToHV, c.FixedToHET, c.FixedDP, c.NoCalls, c.DroppedRecords,
	}
	if len(row) != len(aw.builders) {
		return errors.Errorf("mismatch in number of fields: expected %d, got %d", len(aw.builders), len(row))
	}

	for i, val := range row {
		aw.builders[i].Append(val)
	}

	aw.numRowsInChunk++
	if aw.numRowsInChunk == aw.chunkSize {
		return aw.writeChunk()
	}
	return nil
}

func (aw *ArrowWriter) writeChunk() error {
	var cols []arrow.Array
	for _, b := range aw.builders {
		// NewArray drains and resets the builder.
		cols = append(cols, b.NewArray())
	}

	record := array.NewRecord(aw.schema, cols, int64(aw.numRowsInChunk))
	defer record.Release()

	if err := aw.writer.Write(record); err != nil {
		return err
	}

	aw.numRowsInChunk = 0
	return nil
}

// Close flushes the partial chunk and finalizes the IPC footer.
func (aw *ArrowWriter) Close() error {
	if aw.numRowsInChunk > 0 {
		if err := aw.writeChunk(); err != nil {
			return err
		}
	}
	return aw.writer.Close()
}

// WriteArrow persists the per-batch counters of the run, one row per batch in
// batch order.
func (r *Run) WriteArrow(filePath string, chunkSize int) error {
	aw, err := NewArrowWriter(filePath, chunkSize)
	if err != nil {
		return errors.Wrap(err, "creating stats file")
	}

	for _, n := range r.Batches() {
		if err := aw.WriteRow(n, r.Batch(n)); err != nil {
			return err
		}
	}

	return aw.Close()
}
