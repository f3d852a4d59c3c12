package corpus

import (
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// textRow matches the single-column layout dataset parquet files use for
// plain text.
type textRow struct {
	Text string `parquet:"text"`
}

// ParquetText reads the `text` column of a parquet file, one document per
// row. Files without a `text` string column are an error.
func ParquetText(path string) ([]string, error) {
	rows, err := parquet.ReadFile[textRow](path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading parquet corpus %s", path)
	}
	docs := make([]string, len(rows))
	for i, row := range rows {
		docs[i] = row.Text
	}
	return docs, nil
}
