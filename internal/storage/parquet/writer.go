package parquet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/playertrack/internal/storage/types"
)

// MetaCutoff is the metadata key holding the sweep cutoff in Unix ms.
const MetaCutoff = "playertrack.cutoff_ms"

const partialSuffix = ".partial"

// ErrFinished is returned when writing to a committed or aborted archive.
var ErrFinished = errors.New("parquet archive already finished")

// =============================================================================
// Codecs
// =============================================================================

var codecs = map[string]compress.Codec{
	"none":   &parquet.Uncompressed,
	"snappy": &parquet.Snappy,
	"zstd":   &parquet.Zstd,
	"lz4":    &parquet.Lz4Raw,
	"gzip":   &parquet.Gzip,
}

// Codec returns the codec named name. Empty selects zstd.
func Codec(name string) (compress.Codec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "zstd"
	}
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown parquet compression %q", name)
	}
	return c, nil
}

// =============================================================================
// Rows
// =============================================================================

// Row is the on-disk shape of a sample. A failed poll has a null count.
type Row struct {
	IP          string `parquet:"ip,dict"`
	Timestamp   int64  `parquet:"timestamp"`
	PlayerCount *int32 `parquet:"playerCount,optional"`
}

func toRow(s types.Sample) Row {
	r := Row{IP: s.EntityKey, Timestamp: s.TimestampMs}
	if s.PlayerCount.Valid {
		n := int32(s.PlayerCount.N)
		r.PlayerCount = &n
	}
	return r
}

func (r Row) sample() types.Sample {
	s := types.Sample{EntityKey: r.IP, TimestampMs: r.Timestamp}
	if r.PlayerCount != nil {
		s.PlayerCount = types.Of(int(*r.PlayerCount))
	}
	return s
}

// =============================================================================
// Archive Writer
// =============================================================================

// Archive is a Parquet file being written. It is not safe for concurrent
// use; the sweeper writes one archive at a time.
type Archive struct {
	path   string
	file   *os.File
	writer *parquet.GenericWriter[Row]
	rows   int64
	done   bool
}

// Create starts an archive of the samples before cutoffMs at path.
func Create(path, compression string, cutoffMs int64) (*Archive, error) {
	codec, err := Codec(compression)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	f, err := os.Create(path + partialSuffix)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	w := parquet.NewGenericWriter[Row](f,
		parquet.Compression(codec),
		parquet.KeyValueMetadata(MetaCutoff, strconv.FormatInt(cutoffMs, 10)),
	)
	return &Archive{path: path, file: f, writer: w}, nil
}

// Write appends samples.
func (a *Archive) Write(samples []types.Sample) error {
	if a.done {
		return ErrFinished
	}
	if len(samples) == 0 {
		return nil
	}

	rows := make([]Row, len(samples))
	for i, s := range samples {
		rows[i] = toRow(s)
	}
	n, err := a.writer.Write(rows)
	a.rows += int64(n)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// Commit flushes the footer, syncs and moves the file into place.
func (a *Archive) Commit() error {
	if a.done {
		return ErrFinished
	}
	a.done = true

	if err := a.writer.Close(); err != nil {
		a.discard()
		return fmt.Errorf("close writer: %w", err)
	}
	if err := a.file.Sync(); err != nil {
		a.discard()
		return fmt.Errorf("sync archive: %w", err)
	}
	if err := a.file.Close(); err != nil {
		os.Remove(a.file.Name())
		return fmt.Errorf("close archive: %w", err)
	}
	return os.Rename(a.file.Name(), a.path)
}

// Abort drops the partial file. Safe after Commit, where it does nothing.
func (a *Archive) Abort() {
	if a.done {
		return
	}
	a.done = true
	a.discard()
}

func (a *Archive) discard() {
	a.file.Close()
	os.Remove(a.file.Name())
}

// Rows returns the number of rows written so far.
func (a *Archive) Rows() int64 {
	return a.rows
}

// Path returns the final path of the archive.
func (a *Archive) Path() string {
	return a.path
}
