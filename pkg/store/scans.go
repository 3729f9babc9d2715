package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"facturas/models"
	"facturas/pkg/extract"
)

// DefaultScanLimit caps list queries.
const DefaultScanLimit = 200

// ParseAmount reads an extracted amount such as "1.234,56" or "45.99". The
// last separator followed by exactly two digits is the decimal one, every
// other separator groups thousands.
func ParseAmount(s string) (decimal.Decimal, bool) {
	var digits strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			digits.WriteRune(r)
		}
	}
	clean := digits.String()
	if strings.IndexFunc(clean, func(r rune) bool { return r >= '0' && r <= '9' }) < 0 {
		return decimal.Decimal{}, false
	}

	intPart, frac := clean, ""
	if i := strings.LastIndexAny(clean, ",."); i >= 0 && len(clean)-i-1 == 2 {
		intPart, frac = clean[:i], clean[i+1:]
	}
	intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}
	num := intPart
	if frac != "" {
		num += "." + frac
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ScanFromRecord builds the history row for one extraction.
func ScanFromRecord(raw string, rec extract.Record) models.Scan {
	scan := models.Scan{
		Strategy:   models.StrategyRegex,
		RawText:    raw,
		Date:       rec.Date,
		Amount:     rec.Amount,
		Vendor:     rec.Vendor,
		Concept:    rec.Concept,
		Confidence: rec.Confidence,
	}
	if d, ok := ParseAmount(rec.Amount); ok {
		scan.AmountValue = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return scan
}

// SaveScan inserts scan and fills its id.
func (s *Store) SaveScan(ctx context.Context, scan *models.Scan) error {
	if err := s.db.WithContext(ctx).Create(scan).Error; err != nil {
		return eris.Wrap(err, "store: save scan")
	}
	return nil
}

// ScanFilter narrows ListScans. A nil UserID lists everybody's scans.
type ScanFilter struct {
	UserID *uint
	Limit  int
}

// ListScans returns the newest scans first.
func (s *Store) ListScans(ctx context.Context, f ScanFilter) ([]models.Scan, error) {
	limit := f.Limit
	if limit <= 0 || limit > DefaultScanLimit {
		limit = DefaultScanLimit
	}
	q := s.db.WithContext(ctx).Model(&models.Scan{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	var out []models.Scan
	if err := q.Order("id desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, eris.Wrap(err, "store: list scans")
	}
	return out, nil
}

// GetScan loads one scan.
func (s *Store) GetScan(ctx context.Context, id uint) (models.Scan, error) {
	var scan models.Scan
	if err := s.db.WithContext(ctx).First(&scan, id).Error; err != nil {
		return models.Scan{}, notFound(err, "store: get scan")
	}
	return scan, nil
}
