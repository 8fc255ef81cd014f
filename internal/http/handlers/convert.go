package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"pdf2docx/internal/config"
	"pdf2docx/internal/domain"
	"pdf2docx/internal/infra/cache"
	"pdf2docx/internal/infra/converter"
	"pdf2docx/internal/infra/logging"
	"pdf2docx/internal/infra/metrics"
	"pdf2docx/internal/staging"
)

const (
	// FormField is the multipart field carrying the PDF.
	FormField = "file"
	// DownloadName is the attachment filename of every converted document.
	DownloadName = "converted.docx"
	// DocxMIME is the OOXML wordprocessing content type.
	DocxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// PageCounter reports how many pages a staged PDF has.
type PageCounter interface {
	PageCount(path string) (int, error)
}

// ResultCache stores converted documents by content key.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Deps are the collaborators of ConvertService. Pages and Cache may be nil.
type Deps struct {
	Area      *staging.Area
	Converter converter.Converter
	Pages     PageCounter
	Cache     ResultCache
	Metrics   *metrics.Metrics
}

// ConvertService handles POST /convert.
type ConvertService struct {
	Config *config.Config

	area    *staging.Area
	conv    converter.Converter
	pages   PageCounter
	cache   ResultCache
	metrics *metrics.Metrics
}

// NewConvertService creates a new ConvertService instance.
func NewConvertService(cfg config.Config, deps Deps) *ConvertService {
	m := deps.Metrics
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &ConvertService{
		Config:  &cfg,
		area:    deps.Area,
		conv:    deps.Converter,
		pages:   deps.Pages,
		cache:   deps.Cache,
		metrics: m,
	}
}

// HandleConvert stages the uploaded PDF, runs the converter and streams the
// DOCX back. Both staged files are removed on every return path.
func (svc *ConvertService) HandleConvert(c *fiber.Ctx) error {
	defer svc.metrics.Begin()()
	requestID := c.GetRespHeader(fiber.HeaderXRequestID)
	ctx := c.UserContext()

	pages, err := parsePageRange(c)
	if err != nil {
		return svc.fail(err)
	}

	job := svc.area.Allocate()
	defer svc.cleanup(job, requestID)

	if err := svc.stageInput(c, job, requestID); err != nil {
		return svc.fail(err)
	}

	size, err := job.VerifyInput()
	if err != nil {
		logging.Error("Uploaded file is missing, empty or unreadable", "request_id", requestID, "error", err)
		return svc.fail(err)
	}
	svc.metrics.ObserveInput(size)
	logging.Info("Temp PDF read test passed", "request_id", requestID, "bytes", size)

	if err := svc.checkPages(job, pages, requestID); err != nil {
		return svc.fail(err)
	}

	cacheKey := svc.cacheKey(job, pages, requestID)
	if cached := svc.cached(ctx, cacheKey, requestID); cached != nil {
		svc.metrics.RecordOutcome(metrics.OutcomeCacheHit)
		setDocxHeaders(c)
		return c.Send(cached)
	}

	if err := settle(ctx, svc.Config.Converter.SettleDelay); err != nil {
		return svc.fail(domain.Internal(fmt.Errorf("settle delay: %w", err)))
	}

	logging.Info("Starting conversion", "request_id", requestID, "job_id", job.ID, "pages", pages.String())
	start := time.Now()
	if err := svc.conv.Convert(ctx, job.InputPath, job.OutputPath, pages); err != nil {
		logging.Error("Error during conversion", "request_id", requestID, "job_id", job.ID, "error", err)
		return svc.fail(domain.ConversionFailed(err))
	}
	svc.metrics.ObserveConvert(time.Since(start))

	outSize, err := job.VerifyOutput()
	if err != nil {
		logging.Error("Error during conversion", "request_id", requestID, "job_id", job.ID, "error", err)
		return svc.fail(domain.ConversionFailed(err))
	}

	logging.Info("Conversion successful, sending DOCX",
		"request_id", requestID,
		"job_id", job.ID,
		"bytes", outSize,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if err := svc.sendOutput(c, job, cacheKey, requestID); err != nil {
		return svc.fail(err)
	}
	svc.metrics.RecordOutcome(metrics.OutcomeSuccess)
	return nil
}

// stageInput persists the multipart file field when the request is a
// multipart form, and the raw body otherwise. A form without the field
// stages an empty file so verification reports it as bad input.
func (svc *ConvertService) stageInput(c *fiber.Ctx, job *staging.Job, requestID string) error {
	if !isMultipart(c) {
		n, err := job.WriteInputBytes(c.Body())
		if err != nil {
			return domain.Internal(err)
		}
		logging.Info("Received binary data", "request_id", requestID, "path", job.InputPath, "bytes", n)
		return nil
	}

	fh, err := c.FormFile(FormField)
	if err != nil {
		logging.Warn("Multipart request without file field", "request_id", requestID, "field", FormField, "error", err)
		if _, werr := job.WriteInputBytes(nil); werr != nil {
			return domain.Internal(werr)
		}
		return nil
	}
	f, err := fh.Open()
	if err != nil {
		return domain.Internal(fmt.Errorf("open multipart file: %w", err))
	}
	defer f.Close()

	n, err := job.WriteInput(f)
	if err != nil {
		return domain.Internal(err)
	}
	logging.Info("Received file", "request_id", requestID, "filename", fh.Filename, "bytes", n)
	return nil
}

// checkPages validates a requested range against the document. Counting
// failures are logged and leave the range to the converter.
func (svc *ConvertService) checkPages(job *staging.Job, pages domain.PageRange, requestID string) error {
	if pages.IsAll() || svc.pages == nil {
		return nil
	}
	n, err := svc.pages.PageCount(job.InputPath)
	if err != nil {
		logging.Warn("Page count unavailable", "request_id", requestID, "error", err)
		return nil
	}
	if err := pages.Validate(n); err != nil {
		return domain.BadInput("Requested page range is outside the document.", err)
	}
	return nil
}

func (svc *ConvertService) cacheKey(job *staging.Job, pages domain.PageRange, requestID string) string {
	if svc.cache == nil {
		return ""
	}
	key, err := cache.KeyForFile(job.InputPath, pages)
	if err != nil {
		logging.Warn("Cache key failed", "request_id", requestID, "error", err)
		return ""
	}
	return key
}

func (svc *ConvertService) cached(ctx context.Context, key, requestID string) []byte {
	if key == "" {
		return nil
	}
	b, err := svc.cache.Get(ctx, key)
	if err != nil {
		logging.Warn("Redis read failed", "request_id", requestID, "error", err)
		return nil
	}
	if len(b) == 0 {
		return nil
	}
	logging.Info("DOCX cache hit", "request_id", requestID, "key", key)
	return b
}

func (svc *ConvertService) sendOutput(c *fiber.Ctx, job *staging.Job, cacheKey, requestID string) error {
	if cacheKey != "" {
		data, err := os.ReadFile(job.OutputPath)
		if err != nil {
			return domain.Internal(fmt.Errorf("read staged output: %w", err))
		}
		if err := svc.cache.Set(c.UserContext(), cacheKey, data); err != nil {
			logging.Warn("Redis write failed", "request_id", requestID, "error", err)
		}
		setDocxHeaders(c)
		return c.Send(data)
	}

	f, err := os.Open(job.OutputPath)
	if err != nil {
		return domain.Internal(fmt.Errorf("open staged output: %w", err))
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return domain.Internal(fmt.Errorf("stat staged output: %w", err))
	}
	// fasthttp closes the stream once the body is written; the path itself
	// is unlinked by cleanup while the descriptor stays readable.
	setDocxHeaders(c)
	return c.SendStream(f, int(st.Size()))
}

func (svc *ConvertService) cleanup(job *staging.Job, requestID string) {
	for _, r := range job.Cleanup() {
		switch {
		case r.Err != nil:
			svc.metrics.RecordCleanupFailure()
			logging.Warn("Failed to delete temp file", "request_id", requestID, "path", r.Path, "error", r.Err)
		case r.Removed:
			logging.Info("Deleted temp file", "request_id", requestID, "path", r.Path)
		}
	}
}

func (svc *ConvertService) fail(err error) error {
	switch domain.KindOf(err) {
	case domain.KindBadInput:
		svc.metrics.RecordOutcome(metrics.OutcomeBadInput)
	case domain.KindConversion:
		svc.metrics.RecordOutcome(metrics.OutcomeConversion)
	case domain.KindUnauthorized:
		svc.metrics.RecordOutcome(metrics.OutcomeUnauthorized)
	default:
		svc.metrics.RecordOutcome(metrics.OutcomeInternal)
	}
	return err
}

func setDocxHeaders(c *fiber.Ctx) {
	c.Attachment(DownloadName)
	c.Set(fiber.HeaderContentType, DocxMIME)
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm)
}

// parsePageRange reads the optional start/end query parameters.
func parsePageRange(c *fiber.Ctx) (domain.PageRange, error) {
	var r domain.PageRange
	for _, p := range []struct {
		name string
		dst  *int
	}{{"start", &r.Start}, {"end", &r.End}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return r, domain.BadInput(fmt.Sprintf("Invalid %s: must be an integer.", p.name), err)
		}
		*p.dst = v
	}
	if err := r.Validate(0); err != nil {
		return r, domain.BadInput("Invalid page range.", err)
	}
	return r, nil
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StatusFor maps an error to the HTTP status and caller-facing message.
func StatusFor(err error) (int, string) {
	var de *domain.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case domain.KindUnauthorized:
			return fiber.StatusUnauthorized, de.Message
		case domain.KindBadInput:
			return fiber.StatusBadRequest, de.Message
		default:
			return fiber.StatusInternalServerError, de.Message
		}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fe.Message
	}
	return fiber.StatusInternalServerError, domain.MsgInternal
}
