package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/core/ports"
)

const DefaultMaxImageBytes int64 = 8 << 20

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

type SubmitAnalysisUseCase struct {
	repo     ports.AnalysisRepository
	storage  ports.ImageStorage
	queue    ports.MessageQueue
	maxBytes int64
	now      func() time.Time
}

func NewSubmitAnalysisUseCase(
	repo ports.AnalysisRepository,
	storage ports.ImageStorage,
	queue ports.MessageQueue,
	maxBytes int64,
) *SubmitAnalysisUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &SubmitAnalysisUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		maxBytes: maxBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SubmitAnalysisUseCase) Submit(ctx context.Context, input domain.SubmitInput) (*domain.Analysis, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "submit analysis", errors.New("missing user identity"))
	}
	if input.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit analysis", errors.New("image is required"))
	}
	if input.Location != nil {
		if err := input.Location.Validate(); err != nil {
			return nil, err
		}
	}

	data, err := io.ReadAll(io.LimitReader(input.Body, uc.maxBytes+1))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read image", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit analysis", errors.New("image is empty"))
	}
	if int64(len(data)) > uc.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit analysis", fmt.Errorf("image exceeds %d bytes", uc.maxBytes))
	}

	contentType, err := resolveImageType(input.ContentType, data)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	key := fmt.Sprintf("analyses/%s/%s_%s", input.UserID, id, sanitizeFilename(input.Filename))

	stored, err := uc.storage.Upload(ctx, key, contentType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	now := uc.now()
	tags := input.Tags
	if tags == nil {
		tags = []string{}
	}
	analysis := &domain.Analysis{
		ID:           id,
		UserID:       input.UserID,
		ImageURL:     stored.URL,
		ImageKey:     stored.Key,
		Status:       domain.StatusPending,
		Diseases:     []domain.Disease{},
		HealthStatus: domain.HealthUnknown,
		Location:     input.Location,
		Notes:        strings.TrimSpace(input.Notes),
		Tags:         tags,
		IsPublic:     input.IsPublic,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.repo.Create(ctx, analysis); err != nil {
		if delErr := uc.storage.Delete(ctx, stored.Key); delErr != nil {
			slog.Warn("orphan_image_cleanup_failed", "image_key", stored.Key, "error", delErr)
		}
		return nil, fmt.Errorf("create analysis: %w", err)
	}

	if err := uc.queue.PublishAnalysisSubmitted(ctx, analysis.ID); err != nil {
		msg := fmt.Sprintf("schedule processing: %v", err)
		if failErr := uc.repo.TransitionStatus(ctx, analysis.ID, domain.StatusPending, domain.StatusFailed, msg); failErr != nil {
			slog.Error("mark_unscheduled_failed", "analysis_id", analysis.ID, "error", failErr)
		}
		return nil, domain.WrapError(domain.ErrTemporary, "publish analysis", err)
	}

	return analysis, nil
}

// resolveImageType trusts the sniffed type over the declared one.
func resolveImageType(declared string, data []byte) (string, error) {
	sniffed := http.DetectContentType(data)
	if _, ok := allowedImageTypes[sniffed]; ok {
		return sniffed, nil
	}
	declared = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	return "", domain.WrapError(
		domain.ErrInvalidInput,
		"validate image",
		fmt.Errorf("unsupported image type %q (declared %q), allowed: jpeg, png, webp", sniffed, declared),
	)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "image.bin"
	}
	return base
}
