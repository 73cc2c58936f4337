package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"facegate/internal/faceauth/service"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/httputil"
)

// maxBodyBytes caps request bodies; embeddings plus a few hundred frame
// summaries fit comfortably under this.
const maxBodyBytes = 4 << 20

//go:generate mockgen -source=handlers_face.go -destination=mocks/face-service.go -package=mocks FaceService

// FaceService defines the pipeline operations the face handler needs.
type FaceService interface {
	Enroll(ctx context.Context, req service.EnrollRequest) (service.EnrollResult, error)
	Verify(ctx context.Context, req service.VerifyRequest) (service.VerifyResult, error)
}

// FaceHandler wires enrollment and verification endpoints to the service.
type FaceHandler struct {
	service FaceService
	logger  *slog.Logger
}

// NewFaceHandler constructs a face handler with its dependencies.
func NewFaceHandler(svc FaceService, logger *slog.Logger) *FaceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FaceHandler{service: svc, logger: logger}
}

// Register mounts face endpoints on the router.
func (h *FaceHandler) Register(r chi.Router) {
	r.Post("/v1/face/enroll", h.handleEnroll)
	r.Post("/v1/face/verify", h.handleVerify)
}

func (h *FaceHandler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var wire EnrollRequest
	if !decodeBody(w, r, &wire) {
		return
	}

	req, err := wire.Parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Enroll(ctx, req)
	if err != nil {
		h.logEnrollFailure(ctx, wire.IdentityID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "enrollment completed",
		"identity_id", wire.IdentityID,
		"profile_id", result.ProfileID,
		"warnings", len(result.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromEnrollResult(result))
}

func (h *FaceHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var wire VerifyRequest
	if !decodeBody(w, r, &wire) {
		return
	}

	req, err := wire.Parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Verify(ctx, req)
	if err != nil {
		if dErrors.IsBusinessRejection(err) {
			h.logger.InfoContext(ctx, "verification rejected",
				"type", wire.Type,
				"reason", dErrors.CodeOf(err),
			)
		} else {
			h.logger.ErrorContext(ctx, "verification failed",
				"type", wire.Type,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "verification succeeded",
		"identity_id", result.IdentityID,
		"tier", result.Tier,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromVerifyResult(result))
}

func (h *FaceHandler) logEnrollFailure(ctx context.Context, identityID string, err error) {
	if dErrors.IsBusinessRejection(err) {
		h.logger.InfoContext(ctx, "enrollment rejected",
			"identity_id", identityID,
			"reason", dErrors.CodeOf(err),
		)
		return
	}
	h.logger.ErrorContext(ctx, "enrollment failed",
		"identity_id", identityID,
		"error", err,
	)
}

// decodeBody decodes a JSON body into dst, writing the error response
// itself when decoding fails.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return false
	}
	return true
}
