package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// Row is one phase/bucket aggregate in Parquet format.
type Row struct {
	Phase       int32   `parquet:"phase"`
	BucketStart int64   `parquet:"bucket_start"`
	BucketEnd   int64   `parquet:"bucket_end"`
	Count       int64   `parquet:"count"`
	RealAvg     float64 `parquet:"real_avg"`
	RealMin     float64 `parquet:"real_min"`
	RealMax     float64 `parquet:"real_max"`
	RealP50     float64 `parquet:"real_p50,optional"`
	RealP90     float64 `parquet:"real_p90,optional"`
	RealP95     float64 `parquet:"real_p95,optional"`
	RealP99     float64 `parquet:"real_p99,optional"`
	ApparentAvg float64 `parquet:"apparent_avg"`
	IRMSAvg     float64 `parquet:"irms_avg"`
	VRMSAvg     float64 `parquet:"vrms_avg"`
	VRMSMin     float64 `parquet:"vrms_min"`
	VRMSMax     float64 `parquet:"vrms_max"`
	EnergyKWh   float64 `parquet:"energy_kwh"`
	FirstTs     int64   `parquet:"first_ts"`
	LastTs      int64   `parquet:"last_ts"`
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")

// compressionCodec maps a config codec name to parquet-go.
func compressionCodec(name string) compress.Codec {
	switch name {
	case "snappy":
		return &parquet.Snappy
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Zstd
	}
}

// Writer writes aggregate rows to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[Row]
	rowCount int64
	closed   bool
}

// NewWriter creates a Parquet writer at path, creating parent
// directories as needed.
func NewWriter(path, compression string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writer := parquet.NewGenericWriter[Row](f,
		parquet.Compression(compressionCodec(compression)))

	return &Writer{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends rows to the file.
func (w *Writer) Write(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// Reader reads aggregate rows from a Parquet file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[Row]
	path   string
}

// NewReader opens a Parquet file for reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[Row](f)

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// ReadAll reads every row in the file.
func (r *Reader) ReadAll() ([]Row, error) {
	rows := make([]Row, r.reader.NumRows())

	n, err := r.reader.Read(rows)
	if err != nil && n < len(rows) {
		return nil, err
	}
	return rows[:n], nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
