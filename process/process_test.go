package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturas/models"
	"facturas/pkg/ai"
	"facturas/pkg/ocr"
)

const invoiceText = "Talleres Pérez S.L.\nFecha: 05/08/2023\nTOTAL: 145,99 €\n"

type fakeAsker struct{ err error }

func (fakeAsker) Provider() string { return "fake" }

func (f fakeAsker) Ask(_ context.Context, text, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "total 145,99", nil
}

type memSaver struct {
	mu    sync.Mutex
	scans []models.Scan
}

func (m *memSaver) SaveScan(_ context.Context, s *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uint(len(m.scans) + 1)
	m.scans = append(m.scans, *s)
	return nil
}

func textRecognizer(text string) ocr.Recognizer {
	return ocr.RecognizerFunc(func(context.Context, []byte) (string, error) { return text, nil })
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestIsImage(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]bool{
		"a.jpg":           true,
		"dir/B.JPEG":      true,
		"scan.png":        true,
		"notes.txt":       false,
		".hidden.png":     false,
		"ticket.ocr.png":  false,
		"processed":       false,
		"factura.webp":    true,
		"factura.tif":     true,
		"factura.pdf":     false,
		"/tmp/in/x.bmp":   true,
		"no-extension":    false,
		"archive.png.zip": false,
	} {
		assert.Equal(t, want, IsImage(name), name)
	}
}

func TestListImagesAndMove(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.png"), "x")
	writeFile(t, filepath.Join(dir, "a.jpg"), "x")
	writeFile(t, filepath.Join(dir, "readme.txt"), "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	files, err := ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.png")}, files)

	dst, err := MoveToProcessed(dir, files[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ProcessedDir, "a.jpg"), dst)
	assert.NoFileExists(t, files[0])
	assert.FileExists(t, dst)

	_, err = ListImages(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestRunPoolProcessesEveryFile(t *testing.T) {
	t.Parallel()
	files := []string{"1.png", "2.png", "3.png", "4.png", "5.png"}
	var (
		mu   sync.Mutex
		seen []string
	)
	RunPool(context.Background(), files, 3, func(_ context.Context, p string) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})
	sort.Strings(seen)
	assert.Equal(t, files, seen)

	var n atomic.Int32
	RunPool(context.Background(), files, 0, func(context.Context, string) { n.Add(1) })
	assert.Equal(t, int32(5), n.Load())
}

func TestRunPoolStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	RunPool(ctx, []string{"a", "b", "c", "d"}, 1, func(context.Context, string) {
		n.Add(1)
		cancel()
	})
	assert.Equal(t, int32(1), n.Load())
}

func TestWatchPicksUpNewImages(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, dir, 2, func(_ context.Context, p string) { got <- p })
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "factura.jpg"), "jpeg bytes")

	select {
	case p := <-got:
		assert.Equal(t, filepath.Join(dir, "factura.jpg"), p)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the new image")
	}

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	assert.Empty(t, got)
}

func TestWatchProcessesExistingImagesOnce(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "antigua.png")
	writeFile(t, existing, "png bytes")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, dir, 2, func(_ context.Context, p string) { got <- p })
	}()

	select {
	case p := <-got:
		assert.Equal(t, existing, p)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not process the existing image")
	}

	fresh := filepath.Join(dir, "nueva.jpg")
	writeFile(t, fresh, "jpeg bytes")
	select {
	case p := <-got:
		assert.Equal(t, fresh, p)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the new image")
	}

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	assert.Empty(t, got)
}

func TestDebounceMergesInitialWithEvents(t *testing.T) {
	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	name := filepath.Join(t.TempDir(), "factura.jpg")
	out := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = debounce(ctx, w, []string{name}, out)
	}()
	// an event for a listed file restarts its settle time instead of
	// queueing it twice
	w.Events <- fsnotify.Event{Name: name, Op: fsnotify.Write}

	select {
	case p := <-out:
		assert.Equal(t, name, p)
	case <-time.After(5 * time.Second):
		t.Fatal("listed file was never forwarded")
	}
	time.Sleep(2 * settle)
	cancel()
	<-done
	assert.Empty(t, out)
}

func TestPipelineProcessFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ticket.png")
	writeFile(t, path, "\x89PNG\r\n\x1a\nrest")

	saver := &memSaver{}
	uid := uint(7)
	p := &Pipeline{Recognizer: textRecognizer(invoiceText), Store: saver, UserID: &uid}

	scan, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), scan.ID)
	assert.Equal(t, "ticket.png", scan.FileName)
	assert.Equal(t, "image/png", scan.ContentType)
	assert.Equal(t, models.StrategyRegex, scan.Strategy)
	assert.Equal(t, "2023-08-05", scan.Date)
	assert.Equal(t, "145,99", scan.Amount)
	assert.Equal(t, "145.99", scan.AmountValue.Decimal.StringFixed(2))
	assert.Equal(t, &uid, scan.UserID)
	require.Len(t, saver.scans, 1)

	_, err = p.ProcessFile(context.Background(), filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestPipelineWithAI(t *testing.T) {
	t.Parallel()
	p := &Pipeline{Recognizer: textRecognizer(invoiceText), Asker: fakeAsker{}}
	scan, err := p.Process(context.Background(), "a.jpg", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, models.StrategyFull, scan.Strategy)
	assert.Equal(t, "fake", scan.AIProvider)
	assert.Equal(t, "total 145,99", scan.AIText)
	assert.Empty(t, scan.AIError)

	p.Asker = fakeAsker{err: errors.New("quota")}
	scan, err = p.Process(context.Background(), "a.jpg", []byte("x"))
	require.NoError(t, err, "AI failures never fail the scan")
	assert.Equal(t, "quota", scan.AIError)
	assert.Equal(t, "145,99", scan.Amount)
}

func TestPipelineRecognizerError(t *testing.T) {
	t.Parallel()
	p := &Pipeline{Recognizer: ocr.RecognizerFunc(func(context.Context, []byte) (string, error) {
		return "", ocr.ErrNoText
	})}
	_, err := p.Process(context.Background(), "blank.png", []byte("x"))
	assert.ErrorIs(t, err, ocr.ErrNoText)
}

var _ ai.Asker = fakeAsker{}
