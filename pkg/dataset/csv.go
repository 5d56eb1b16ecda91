package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"batchflow/pkg/config"
	"batchflow/pkg/errutil"
	"batchflow/services/journal"
)

var Module = fx.Module("dataset.source",
	fx.Provide(NewCSVSource),
)

// CSVSource resolves dataset references to CSV files under a configured
// directory. The first record is the header; every later record becomes one
// row keyed by the header columns.
type CSVSource struct {
	dir string
}

func NewCSVSource(cfg *config.Config) *CSVSource {
	return &CSVSource{dir: cfg.Dataset.Dir}
}

func (s *CSVSource) Read(ctx context.Context, ref string) (*journal.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// references are bare file names; strip any path components so a
	// reference can never escape the dataset directory
	path := filepath.Join(s.dir, filepath.Base(ref))

	f, err := os.Open(path)
	if err != nil {
		return nil, errutil.UnsupportedMediaType(fmt.Sprintf("failed to read dataset %q", ref), errutil.WithErr(err))
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errutil.UnsupportedMediaType(fmt.Sprintf("failed to parse dataset %q", ref), errutil.WithErr(err))
	}
	if len(records) == 0 {
		return nil, errutil.UnsupportedMediaType(fmt.Sprintf("dataset %q has no header row", ref))
	}

	columns := records[0]
	rows := make([]journal.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(journal.Row, len(columns))
		for i, col := range columns {
			row[col] = record[i]
		}
		rows = append(rows, row)
	}

	return &journal.Dataset{Columns: columns, Rows: rows}, nil
}
