package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"facegate/internal/faceauth/models"
	"facegate/internal/faceauth/service"
	"facegate/internal/monitor"
	"facegate/internal/transport/http/mocks"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
)

type HandlerSuite struct {
	suite.Suite

	face    *mocks.MockFaceService
	scanner *mocks.MockAlertScanner
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.face = mocks.NewMockFaceService(ctrl)
	s.scanner = mocks.NewMockAlertScanner(ctrl)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = NewRouter(
		NewFaceHandler(s.face, logger),
		NewAlertHandler(s.scanner, logger),
	)
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) enrollBody() EnrollRequest {
	return EnrollRequest{
		IdentityID: "550e8400-e29b-41d4-a716-446655440000",
		Embedding:  []float32{0.1, 0.2, 0.3},
		Capture: CapturePayload{
			SessionID:   "sess-1",
			Raw:         []byte("frame-bytes"),
			CapturedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			ModifiedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			DurationMs:  2000,
			FrameRate:   30,
			Fingerprint: "device-1",
			Frames: []FramePayload{
				{OffsetMs: 0, Blinked: true, TextureScore: 0.95, DepthScore: 0.95, MicroMovementScore: 0.95},
			},
		},
		Challenges: []string{"blink"},
		Method:     "hybrid",
	}
}

func (s *HandlerSuite) TestEnrollSuccess() {
	profileID := id.NewProfileID()
	s.face.EXPECT().
		Enroll(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req service.EnrollRequest) (service.EnrollResult, error) {
			s.Equal("550e8400-e29b-41d4-a716-446655440000", req.IdentityID.String())
			s.Len(req.Embedding, 3)
			s.Len(req.Capture.Frames, 1)
			s.Equal(2*time.Second, req.Capture.Meta.Duration)
			return service.EnrollResult{ProfileID: profileID, Warnings: []string{"similar profile exists"}}, nil
		})

	w := s.do(http.MethodPost, "/v1/face/enroll", s.enrollBody())

	s.Equal(http.StatusCreated, w.Code)
	var resp EnrollResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(profileID.String(), resp.ProfileID)
	s.Equal([]string{"similar profile exists"}, resp.Warnings)
}

func (s *HandlerSuite) TestEnrollRejections() {
	s.Run("duplicate identity maps to conflict", func() {
		s.face.EXPECT().
			Enroll(gomock.Any(), gomock.Any()).
			Return(service.EnrollResult{}, dErrors.New(dErrors.CodeDuplicateIdentity, "matches another identity"))

		w := s.do(http.MethodPost, "/v1/face/enroll", s.enrollBody())

		s.Equal(http.StatusConflict, w.Code)
		var resp map[string]string
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal("duplicate_identity", resp["error"])
	})

	s.Run("liveness failure maps to forbidden", func() {
		s.face.EXPECT().
			Enroll(gomock.Any(), gomock.Any()).
			Return(service.EnrollResult{}, dErrors.New(dErrors.CodeLivenessFailed, "spoof indicators"))

		w := s.do(http.MethodPost, "/v1/face/enroll", s.enrollBody())
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("bad identity id rejected before the service", func() {
		body := s.enrollBody()
		body.IdentityID = "not-a-uuid"

		w := s.do(http.MethodPost, "/v1/face/enroll", body)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("malformed body rejected", func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/face/enroll", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestVerifySuccess() {
	identityID, err := id.ParseIdentityID("550e8400-e29b-41d4-a716-446655440000")
	s.Require().NoError(err)
	profileID := id.NewProfileID()
	expires := time.Date(2026, 3, 14, 12, 5, 0, 0, time.UTC)

	s.face.EXPECT().
		Verify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req service.VerifyRequest) (service.VerifyResult, error) {
			s.Equal(models.AttemptPayment, req.Type)
			s.Require().NotNil(req.ExpectedIdentity)
			s.Equal(identityID, *req.ExpectedIdentity)
			return service.VerifyResult{
				IdentityID:             identityID,
				ProfileID:              profileID,
				Similarity:             0.91,
				Tier:                   models.TierHigh,
				RequiresAdditionalAuth: false,
				Session: models.VerificationSession{
					Token:     "signed.jwt.token",
					Status:    models.SessionCompleted,
					ExpiresAt: expires,
				},
			}, nil
		})

	body := VerifyRequest{
		Embedding:        []float32{0.1, 0.2, 0.3},
		Capture:          s.enrollBody().Capture,
		Challenges:       []string{"blink"},
		Method:           "hybrid",
		ExpectedIdentity: identityID.String(),
		Type:             "payment",
	}
	w := s.do(http.MethodPost, "/v1/face/verify", body)

	s.Equal(http.StatusOK, w.Code)
	var resp VerifyResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(identityID.String(), resp.IdentityID)
	s.Equal("high", resp.Tier)
	s.InDelta(0.91, resp.Similarity, 1e-9)
	s.Equal("signed.jwt.token", resp.Session.Token)
	s.Equal("completed", resp.Session.Status)
}

func (s *HandlerSuite) TestVerifyDefaultsToVerificationType() {
	s.face.EXPECT().
		Verify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req service.VerifyRequest) (service.VerifyResult, error) {
			s.Equal(models.AttemptVerification, req.Type)
			s.Nil(req.ExpectedIdentity)
			return service.VerifyResult{}, dErrors.New(dErrors.CodeNoMatch, "no profile above threshold")
		})

	body := VerifyRequest{
		Embedding: []float32{0.1, 0.2, 0.3},
		Capture:   s.enrollBody().Capture,
		Method:    "passive",
	}
	w := s.do(http.MethodPost, "/v1/face/verify", body)

	s.Equal(http.StatusUnauthorized, w.Code)
	var resp map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("no_match", resp["error"])
}

func (s *HandlerSuite) TestScan() {
	identityID, err := id.ParseIdentityID("550e8400-e29b-41d4-a716-446655440000")
	s.Require().NoError(err)

	s.Run("returns alerts for the requested window", func() {
		s.scanner.EXPECT().
			Scan(gomock.Any(), 15*time.Minute).
			Return([]monitor.Alert{{
				Severity:          monitor.SeverityHigh,
				Type:              monitor.AlertBruteForce,
				IdentityID:        &identityID,
				RecommendedAction: "lock identity pending review",
				Timestamp:         time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			}}, nil)

		w := s.do(http.MethodGet, "/v1/face/alerts/scan?window=15m", nil)

		s.Equal(http.StatusOK, w.Code)
		var resp ScanResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(int64(900), resp.WindowSeconds)
		s.Require().Len(resp.Alerts, 1)
		s.Equal("high", resp.Alerts[0].Severity)
		s.Equal("brute_force", resp.Alerts[0].Type)
		s.Equal(identityID.String(), resp.Alerts[0].IdentityID)
	})

	s.Run("defaults to one hour", func() {
		s.scanner.EXPECT().
			Scan(gomock.Any(), time.Hour).
			Return(nil, nil)

		w := s.do(http.MethodGet, "/v1/face/alerts/scan", nil)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("rejects bad windows", func() {
		w := s.do(http.MethodGet, "/v1/face/alerts/scan?window=yesterday", nil)
		s.Equal(http.StatusBadRequest, w.Code)

		w = s.do(http.MethodGet, "/v1/face/alerts/scan?window=-5m", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestHealth() {
	w := s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"status":"ok"}`, w.Body.String())
}
