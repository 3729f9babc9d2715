package store

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"facturas/models"
	"facturas/pkg/extract"
)

// MonthTotal sums the amounts of the scans whose invoice date falls in Month
// (YYYY-MM).
type MonthTotal struct {
	Month string          `json:"month"`
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// MonthlySummary groups scans with an ISO date by month, newest first.
// A nil userID summarises every user.
func (s *Store) MonthlySummary(ctx context.Context, userID *uint) ([]MonthTotal, error) {
	q := s.db.WithContext(ctx).Model(&models.Scan{}).
		Select("substring(date from 1 for 7) AS month, count(*) AS count, coalesce(sum(amount_value), 0) AS total").
		Where("date ~ ?", `^\d{4}-\d{2}-\d{2}$`)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var out []MonthTotal
	if err := q.Group("month").Order("month desc").Scan(&out).Error; err != nil {
		return nil, eris.Wrap(err, "store: monthly summary")
	}
	return out, nil
}

// Reextract runs the extraction rules again over the stored OCR text of
// every scan and updates the rows whose record changed. It returns how many
// rows were updated.
func (s *Store) Reextract(ctx context.Context) (int, error) {
	var (
		batch   []models.Scan
		updated int
	)
	db := s.db.WithContext(ctx)
	res := db.Model(&models.Scan{}).FindInBatches(&batch, 100, func(_ *gorm.DB, _ int) error {
		for _, old := range batch {
			next := ScanFromRecord(old.RawText, extract.ExtractClean(old.RawText))
			if sameRecord(old, next) {
				continue
			}
			err := db.Model(&models.Scan{}).Where("id = ?", old.ID).Updates(map[string]any{
				"date":         next.Date,
				"amount":       next.Amount,
				"amount_value": next.AmountValue,
				"vendor":       next.Vendor,
				"concept":      next.Concept,
				"confidence":   next.Confidence,
			}).Error
			if err != nil {
				return eris.Wrapf(err, "store: update scan %d", old.ID)
			}
			updated++
		}
		return ctx.Err()
	})
	if res.Error != nil {
		return updated, eris.Wrap(res.Error, "store: reextract")
	}
	return updated, nil
}

func sameRecord(a, b models.Scan) bool {
	return a.Date == b.Date && a.Amount == b.Amount && a.Vendor == b.Vendor &&
		a.Concept == b.Concept && a.Confidence == b.Confidence
}
