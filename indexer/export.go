package indexer

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type payoutRow struct {
	ID        string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	MatchID   int64  `parquet:"name=match_id, type=INT64"`
	Recipient string `parquet:"name=recipient, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount    string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind      string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sequence  int64  `parquet:"name=sequence, type=INT64"`
	CreatedAt string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportPayouts writes every payout with a sequence >= from to a parquet file
// at path and returns the number of rows written. Amounts stay decimal
// strings.
func (ix *Indexer) ExportPayouts(path string, from uint64) (int, error) {
	var rows []Payout
	if err := ix.db.Where("sequence >= ?", from).Order("sequence").Find(&rows).Error; err != nil {
		return 0, err
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	defer file.Close()
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(payoutRow), 1)
	if err != nil {
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &payoutRow{
			ID:        row.ID.String(),
			MatchID:   int64(row.MatchID),
			Recipient: row.Recipient,
			Amount:    row.Amount,
			Kind:      row.Kind,
			Sequence:  int64(row.Sequence),
			CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(pr); err != nil {
			_ = pw.WriteStop()
			return 0, fmt.Errorf("indexer: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return 0, fmt.Errorf("indexer: finalise parquet: %w", err)
	}
	ix.logger.Info("payouts exported", slog.String("path", path), slog.Int("rows", len(rows)))
	return len(rows), nil
}
