// Package process runs invoice images through OCR, extraction and storage
// outside of HTTP: one-off batches and a watched inbox directory.
package process

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"facturas/models"
	"facturas/pkg/ai"
	"facturas/pkg/extract"
	"facturas/pkg/ocr"
	"facturas/pkg/store"
)

// ScanSaver persists scans; *store.Store implements it.
type ScanSaver interface {
	SaveScan(ctx context.Context, scan *models.Scan) error
}

// Pipeline wires the collaborators of one run. Asker, Store and UserID are
// optional.
type Pipeline struct {
	Recognizer  ocr.Recognizer
	Asker       ai.Asker
	Instruction string
	Store       ScanSaver
	UserID      *uint
}

// ProcessFile reads an image from disk and processes it.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (models.Scan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Scan{}, eris.Wrapf(err, "process: read %s", path)
	}
	return p.Process(ctx, filepath.Base(path), data)
}

// Process recognises data, extracts and cleans the record, asks the model
// when one is configured and saves the scan when a store is present.
func (p *Pipeline) Process(ctx context.Context, name string, data []byte) (models.Scan, error) {
	raw, err := p.Recognizer.Recognize(ctx, data)
	if err != nil {
		return models.Scan{}, eris.Wrapf(err, "process: recognise %s", name)
	}

	scan := store.ScanFromRecord(raw, extract.ExtractClean(raw))
	scan.FileName = name
	scan.ContentType = http.DetectContentType(data)
	scan.UserID = p.UserID
	if p.Asker != nil {
		scan.Strategy = models.StrategyFull
		ApplyAI(&scan, ai.Run(ctx, p.Asker, raw, p.Instruction))
	}

	if p.Store != nil {
		if err := p.Store.SaveScan(ctx, &scan); err != nil {
			return scan, err
		}
	}
	zap.L().Debug("processed invoice",
		zap.String("file", name),
		zap.String("date", scan.Date),
		zap.String("amount", scan.Amount),
		zap.Float64("confidence", scan.Confidence),
	)
	return scan, nil
}

// ApplyAI records the model's answer on scan.
func ApplyAI(scan *models.Scan, res ai.Result) {
	scan.AIProvider = res.Provider
	scan.AIText = res.Text
	scan.AIError = res.Error
}
