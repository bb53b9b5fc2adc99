// Package export writes an optimization history for offline analysis.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"gopkg.in/yaml.v3"

	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

const (
	FormatYAML    = "yaml"
	FormatParquet = "parquet"
)

// Row is one observation as written to parquet. Score is the domain score; Objective is
// the minimized value the optimizer saw.
type Row struct {
	Study      string  `parquet:"name=study, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Seq        int32   `parquet:"name=seq, type=INT32"`
	TrialName  string  `parquet:"name=trial_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Point      string  `parquet:"name=point, type=BYTE_ARRAY, convertedtype=UTF8"`
	Score      float64 `parquet:"name=score, type=DOUBLE"`
	Objective  float64 `parquet:"name=objective, type=DOUBLE"`
	RecordedAt int64   `parquet:"name=recorded_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// Rows flattens record in history order. Point holds a JSON object keyed by dimension.
func Rows(record *model.OptimizationRecord) ([]Row, error) {
	rows := make([]Row, 0, record.Len())
	for i, o := range record.Observations {
		point, err := json.Marshal(pointMap(record.Dimensions, o.Point))
		if err != nil {
			return nil, fmt.Errorf("encode point %d: %w", i, err)
		}
		rows = append(rows, Row{
			Study:      record.Study,
			Seq:        int32(i),
			TrialName:  o.TrialName,
			Point:      string(point),
			Score:      -o.Score,
			Objective:  o.Score,
			RecordedAt: o.RecordedAt.UnixMilli(),
		})
	}
	return rows, nil
}

func pointMap(dimensions []string, point []any) map[string]any {
	out := make(map[string]any, len(point))
	for i, v := range point {
		name := fmt.Sprintf("x%d", i)
		if i < len(dimensions) {
			name = dimensions[i]
		}
		out[name] = v
	}
	return out
}

type yamlObservation struct {
	Seq        int            `yaml:"seq"`
	TrialName  string         `yaml:"trial_name"`
	Point      map[string]any `yaml:"point"`
	Score      float64        `yaml:"score"`
	RecordedAt string         `yaml:"recorded_at"`
}

type yamlDocument struct {
	Study        string            `yaml:"study"`
	RunID        string            `yaml:"run_id"`
	Dimensions   []string          `yaml:"dimensions"`
	Best         *yamlObservation  `yaml:"best,omitempty"`
	Observations []yamlObservation `yaml:"observations"`
}

// WriteYAML writes record to w with domain scores and the best observation first.
func WriteYAML(w io.Writer, record *model.OptimizationRecord) error {
	doc := yamlDocument{
		Study:      record.Study,
		RunID:      record.RunID,
		Dimensions: record.Dimensions,
	}
	bestIdx := -1
	for i, o := range record.Observations {
		doc.Observations = append(doc.Observations, yamlObservation{
			Seq:        i,
			TrialName:  o.TrialName,
			Point:      pointMap(record.Dimensions, o.Point),
			Score:      -o.Score,
			RecordedAt: o.RecordedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
		if bestIdx < 0 || o.Score < record.Observations[bestIdx].Score {
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		best := doc.Observations[bestIdx]
		doc.Best = &best
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode history of study '%s': %w", record.Study, err)
	}
	return enc.Close()
}

// WriteParquet writes record to a local parquet file at path.
func WriteParquet(path string, record *model.OptimizationRecord, compression string) error {
	codec, err := getCompressionCodec(compression)
	if err != nil {
		return exception.NewConfigError(fmt.Sprintf("invalid parquet compression '%s'", compression), err)
	}
	rows, err := Rows(record)
	if err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer fw.Close()

	rowGroup := int64(len(rows))
	if rowGroup == 0 {
		rowGroup = 1
	}
	pw, err := writer.NewParquetWriter(fw, new(Row), rowGroup)
	if err != nil {
		return fmt.Errorf("create parquet writer for %s: %w", path, err)
	}
	pw.CompressionType = codec

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("write row %d to %s: %w", row.Seq, path, err)
		}
	}

	err = func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("parquet writer panicked while finalizing %s: %v", path, r)
			}
		}()
		return pw.WriteStop()
	}()
	if err != nil {
		return err
	}
	logger.Infof("Export: wrote %d observations of study '%s' to %s.", len(rows), record.Study, path)
	return nil
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
