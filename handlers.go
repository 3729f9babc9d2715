package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"facturas/models"
	"facturas/pkg/ai"
	"facturas/pkg/config"
	"facturas/pkg/extract"
	"facturas/pkg/ocr"
	"facturas/pkg/store"
	"facturas/process"
	"facturas/web"
)

// User-facing messages of the OCR routes.
const (
	msgNoImage      = "No se ha proporcionado ninguna imagen"
	msgTooLarge     = "La imagen supera el tamaño máximo permitido"
	msgProcessError = "Error al procesar la imagen"
	msgNoAI         = "El servicio de IA no está configurado"
	msgNoDB         = "La base de datos no está configurada"
)

// multipartOverhead is tolerated on top of the file size limit for the
// form boundaries and headers.
const multipartOverhead = 64 << 10

// dataStore is the persistence the server needs; *store.Store implements it.
type dataStore interface {
	RegisterUser(ctx context.Context, username, password string) (models.User, error)
	Authenticate(ctx context.Context, username, password string) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	UserByID(ctx context.Context, id uint) (models.User, error)
	CreateRefreshToken(ctx context.Context, userID uint, ttl time.Duration) (string, error)
	RotateRefreshToken(ctx context.Context, raw string, ttl time.Duration) (models.User, string, error)
	RevokeRefreshToken(ctx context.Context, raw string) error
	SaveScan(ctx context.Context, scan *models.Scan) error
	ListScans(ctx context.Context, f store.ScanFilter) ([]models.Scan, error)
	GetScan(ctx context.Context, id uint) (models.Scan, error)
	MonthlySummary(ctx context.Context, userID *uint) ([]store.MonthTotal, error)
}

// server holds the collaborators of the HTTP handlers. asker and store are
// nil when AI or the database are not configured.
type server struct {
	cfg        *config.Config
	recognizer ocr.Recognizer
	asker      ai.Asker
	store      dataStore
	jwtSecret  []byte
}

// errNoJWTSecret stops the server from signing tokens with a known key while
// accounts exist.
var errNoJWTSecret = eris.New("auth.jwt_secret must be set when db.dsn is configured")

func newServer(cfg *config.Config, rec ocr.Recognizer, asker ai.Asker, ds dataStore) (*server, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if ds != nil {
			return nil, errNoJWTSecret
		}
		zap.L().Warn("auth.jwt_secret is empty, using an insecure development secret")
		secret = "dev-insecure-secret-change"
	}
	return &server{cfg: cfg, recognizer: rec, asker: asker, store: ds, jwtSecret: []byte(secret)}, nil
}

// routes builds the gin engine.
func (s *server) routes() (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = s.cfg.Server.MaxUploadBytes()

	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	r.SetHTMLTemplate(tmpl)
	r.StaticFS("/static", web.Static())

	r.GET("/", s.homeHandler)
	r.GET("/protected", s.protectedPageHandler)
	r.GET("/healthz", s.healthHandler)

	r.POST("/register", s.registerHandler)
	r.POST("/login", s.loginHandler)
	r.POST("/refresh", s.refreshHandler)
	r.POST("/revoke_refresh", s.revokeRefreshHandler)
	r.GET("/me", s.jwtAuthMiddleware(), s.meHandler)

	api := r.Group("/api")
	if s.cfg.Auth.Required {
		api.Use(s.jwtAuthMiddleware())
	} else {
		api.Use(s.optionalAuthMiddleware())
	}
	api.POST("/ocr", s.ocrHandler)
	api.POST("/ocr/regex", s.ocrRegexHandler)
	api.POST("/ocr/ai", s.ocrAIHandler)
	api.POST("/extract", s.extractHandler)

	scans := api.Group("/scans", s.jwtAuthMiddleware())
	scans.GET("", s.listScansHandler)
	scans.GET("/summary", s.scanSummaryHandler)
	scans.GET("/:id", s.getScanHandler)
	return r, nil
}

func (s *server) homeHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"Title": "OCR para facturas con IA"})
}

func (s *server) protectedPageHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "protected.html", gin.H{"Title": "Procesador de facturas", "MaxSide": 2000})
}

func (s *server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"ai":     s.asker != nil,
		"db":     s.store != nil,
	})
}

// upload is the image of one OCR request.
type upload struct {
	name        string
	contentType string
	data        []byte
}

// readUpload reads the "image" form file, answering the request itself on
// failure.
func (s *server) readUpload(c *gin.Context) (upload, bool) {
	limit := s.cfg.Server.MaxUploadBytes()
	if c.Request.ContentLength > limit+multipartOverhead {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgTooLarge})
		return upload{}, false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	fh, err := c.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgTooLarge})
			return upload{}, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoImage})
		return upload{}, false
	}
	if fh.Size > limit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgTooLarge})
		return upload{}, false
	}
	if fh.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoImage})
		return upload{}, false
	}
	f, err := fh.Open()
	if err != nil {
		zap.L().Error("open upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgProcessError})
		return upload{}, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		zap.L().Error("read upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgProcessError})
		return upload{}, false
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return upload{name: fh.Filename, contentType: ct, data: data}, true
}

// recognize runs OCR over the upload. Blank images yield empty text, any
// other failure answers 500.
func (s *server) recognize(c *gin.Context, up upload) (string, bool) {
	raw, err := s.recognizer.Recognize(c.Request.Context(), up.data)
	if errors.Is(err, ocr.ErrNoText) {
		zap.L().Info("ocr found no text", zap.String("file", up.name))
		return "", true
	}
	if err != nil {
		zap.L().Error("ocr failed", zap.String("file", up.name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgProcessError})
		return "", false
	}
	return raw, true
}

// saveScan records the scan when a database is configured. Failures are
// logged and do not fail the request.
func (s *server) saveScan(c *gin.Context, up upload, scan models.Scan) uint {
	if s.store == nil {
		return 0
	}
	scan.FileName = up.name
	scan.ContentType = up.contentType
	if id, ok := userIDFromContext(c); ok {
		scan.UserID = &id
	}
	if err := s.store.SaveScan(c.Request.Context(), &scan); err != nil {
		zap.L().Warn("saving scan failed", zap.String("file", up.name), zap.Error(err))
		return 0
	}
	return scan.ID
}

// ocrHandler runs both strategies: the rule-based record and, when a
// provider is configured, the model's answer.
func (s *server) ocrHandler(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	raw, ok := s.recognize(c, up)
	if !ok {
		return
	}
	rec := extract.ExtractClean(raw)
	scan := store.ScanFromRecord(raw, rec)

	resp := gin.H{"raw": raw, "extraido": rec}
	if s.asker != nil {
		res := ai.Run(c.Request.Context(), s.asker, raw, s.cfg.AI.Instruction)
		scan.Strategy = models.StrategyFull
		process.ApplyAI(&scan, res)
		resp["ia"] = res
	}
	if id := s.saveScan(c, up, scan); id != 0 {
		resp["scan_id"] = id
	}
	c.JSON(http.StatusOK, resp)
}

// ocrRegexHandler answers with the rule-based record only.
func (s *server) ocrRegexHandler(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	raw, ok := s.recognize(c, up)
	if !ok {
		return
	}
	rec := extract.ExtractClean(raw)
	resp := gin.H{"raw": raw, "extraido": rec}
	if id := s.saveScan(c, up, store.ScanFromRecord(raw, rec)); id != 0 {
		resp["scan_id"] = id
	}
	c.JSON(http.StatusOK, resp)
}

// ocrAIHandler passes the model's free text through as "extraido".
func (s *server) ocrAIHandler(c *gin.Context) {
	if s.asker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgNoAI})
		return
	}
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	raw, ok := s.recognize(c, up)
	if !ok {
		return
	}
	res := ai.Run(c.Request.Context(), s.asker, raw, s.cfg.AI.Instruction)
	scan := models.Scan{Strategy: models.StrategyAI, RawText: raw}
	process.ApplyAI(&scan, res)
	id := s.saveScan(c, up, scan)
	if !res.OK {
		c.JSON(http.StatusBadGateway, gin.H{"raw": raw, "error": res.Error})
		return
	}
	resp := gin.H{"raw": raw, "extraido": res.Text}
	if id != 0 {
		resp["scan_id"] = id
	}
	c.JSON(http.StatusOK, resp)
}

// extractHandler runs the rules over text recognised elsewhere.
func (s *server) extractHandler(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "El campo text es obligatorio"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"raw": req.Text, "extraido": extract.ExtractClean(req.Text)})
}

// scanScope returns the user filter of the history routes: administrators
// see every scan. The role is read from the database, not from the token.
func (s *server) scanScope(c *gin.Context) (*uint, bool) {
	user, ok := s.currentUser(c)
	if !ok {
		return nil, false
	}
	if user.IsAdmin() {
		return nil, true
	}
	return &user.ID, true
}

func (s *server) listScansHandler(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	uid, ok := s.scanScope(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := s.store.ListScans(c.Request.Context(), store.ScanFilter{UserID: uid, Limit: limit})
	if err != nil {
		zap.L().Error("list scans", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *server) getScanHandler(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	scan, err := s.store.GetScan(c.Request.Context(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		zap.L().Error("get scan", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	uid, ok := s.scanScope(c)
	if !ok {
		return
	}
	if uid != nil && (scan.UserID == nil || *scan.UserID != *uid) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, scan)
}

// scanSummaryHandler sums the amounts of the caller's scans per month.
func (s *server) scanSummaryHandler(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	uid, ok := s.scanScope(c)
	if !ok {
		return
	}
	months, err := s.store.MonthlySummary(c.Request.Context(), uid)
	if err != nil {
		zap.L().Error("scan summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, months)
}
