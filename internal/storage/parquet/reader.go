package parquet

import (
	"fmt"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/playertrack/internal/storage/types"
)

// Contents is a decoded archive.
type Contents struct {
	// CutoffMs is the sweep cutoff recorded at creation, 0 when absent.
	CutoffMs int64

	Samples []types.Sample
}

// ReadFile decodes the archive at path.
func ReadFile(path string) (Contents, error) {
	f, err := os.Open(path)
	if err != nil {
		return Contents{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Contents{}, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return Contents{}, fmt.Errorf("open archive: %w", err)
	}

	var out Contents
	if v, ok := pf.Lookup(MetaCutoff); ok {
		if out.CutoffMs, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Contents{}, fmt.Errorf("bad %s metadata %q", MetaCutoff, v)
		}
	}

	rows, err := parquet.Read[Row](f, info.Size())
	if err != nil {
		return Contents{}, fmt.Errorf("read rows: %w", err)
	}
	out.Samples = make([]types.Sample, len(rows))
	for i, r := range rows {
		out.Samples[i] = r.sample()
	}
	return out, nil
}
