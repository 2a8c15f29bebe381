package db

import (
	"context"

	"go.uber.org/zap"
)

// Chunks splits items into consecutive slices of at most size elements.
// A non-positive size yields a single chunk.
func Chunks[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// ChunkReport summarises a chunked insert. A failed chunk does not stop the
// ones after it.
type ChunkReport struct {
	Inserted     int64
	FailedRows   int
	FailedChunks []int
	Errors       []error
}

// Failed reports whether any chunk was rejected.
func (r ChunkReport) Failed() bool { return len(r.FailedChunks) > 0 }

// Add folds another report into r.
func (r *ChunkReport) Add(o ChunkReport) {
	r.Inserted += o.Inserted
	r.FailedRows += o.FailedRows
	r.FailedChunks = append(r.FailedChunks, o.FailedChunks...)
	r.Errors = append(r.Errors, o.Errors...)
}

// InsertChunks COPYs rows into table in chunks of size. Each chunk is its own
// statement; a rejected chunk is logged and counted and the remaining chunks
// still load. Context cancellation stops the loop.
func InsertChunks(ctx context.Context, pool Pool, table string, columns []string, rows [][]any, size int) ChunkReport {
	log := zap.L().With(zap.String("component", "db.chunks"), zap.String("table", table))

	var report ChunkReport
	for i, chunk := range Chunks(rows, size) {
		if err := ctx.Err(); err != nil {
			report.FailedChunks = append(report.FailedChunks, i)
			report.FailedRows += len(chunk)
			report.Errors = append(report.Errors, err)
			continue
		}

		n, err := CopyFrom(ctx, pool, table, columns, chunk)
		if err != nil {
			log.Error("chunk insert failed", zap.Int("chunk", i), zap.Int("rows", len(chunk)), zap.Error(err))
			report.FailedChunks = append(report.FailedChunks, i)
			report.FailedRows += len(chunk)
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Inserted += n
		log.Debug("chunk inserted", zap.Int("chunk", i), zap.Int64("rows", n))
	}
	return report
}
