package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/bulksend/internal/api/dto"
	"github.com/cuongbtq/bulksend/internal/dispatch"
	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/internal/recipient"
	"github.com/cuongbtq/bulksend/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SendJob handles POST /send and POST /api/v1/jobs
// Resolves recipients from the form and enqueues a bulk send
func (h *JobHandler) SendJob(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	sheet, err := h.formFile(c, "excel")
	if err != nil {
		h.badUpload(c, err)
		return
	}
	media, err := h.formFile(c, "media")
	if err != nil {
		h.badUpload(c, err)
		return
	}

	var sheetNumbers []string
	if sheet != nil {
		sheetNumbers, err = h.resolver.ExtractSheet(sheet.name, sheet.data)
		if err != nil {
			h.logger.Warn("Could not read spreadsheet",
				slog.String("file", sheet.name),
				slog.Any("error", err),
			)
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Could not read spreadsheet: %s", err)})
			return
		}
	}

	recipients, err := h.resolver.Resolve(recipient.ParseList(c.PostForm("numbers")), sheetNumbers)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	req := dispatch.Request{
		Recipients: recipients,
		Message:    c.PostForm("message"),
		Delay:      parseDelay(c.PostForm("delay")),
	}
	if media != nil {
		req.Media = &domain.Media{
			Name:     media.name,
			MimeType: media.contentType,
			Data:     media.data,
		}
	}

	job, err := h.dispatcher.Submit(c.Request.Context(), req)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	h.logger.Info("Bulk send accepted",
		slog.String("job_id", job.ID),
		slog.Int("total", job.Total()),
		slog.Int("from_sheet", len(sheetNumbers)),
		slog.String("media", job.MediaName()),
	)

	c.JSON(http.StatusOK, dto.SendResponse{
		Status: "sending",
		Total:  job.Total(),
		JobID:  job.ID,
	})
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

// formFile reads an optional multipart file. It returns nil when the field
// is absent, empty, or the request is not multipart.
func (h *JobHandler) formFile(c *gin.Context, field string) (*upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	if fh.Size == 0 {
		return nil, nil
	}
	data, err := readFile(fh)
	if err != nil {
		return nil, err
	}
	return &upload{
		name:        fh.Filename,
		contentType: fh.Header.Get("Content-Type"),
		data:        data,
	}, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *JobHandler) badUpload(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit),
		})
		return
	}
	h.logger.Warn("Invalid upload", slog.Any("error", err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload"})
}

// parseDelay reads a millisecond delay; anything unparsable means default.
func parseDelay(s string) time.Duration {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Debug("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.dispatcher.Get(c.Request.Context(), jobID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job, true))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional status filter and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Debug("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))

	cursor, err := storage.DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.dispatcher.List(c.Request.Context(), storage.JobFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i, job := range jobs {
		resp.Jobs[i] = dto.NewJobDTO(job, false)
	}
	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = storage.EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Cancels a pending or running job
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Debug("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.dispatcher.Cancel(c.Request.Context(), jobID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	h.logger.Info("Job canceled by request", slog.String("job_id", jobID))
	c.JSON(http.StatusOK, dto.NewJobDTO(job, false))
}
