package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"github.com/plaenen/assetlimits/pkg/domain"
)

const maxBodyBytes = 1 << 20

// AccountService is the part of limiting.Service the API calls.
type AccountService interface {
	AssignAsset(ctx context.Context, accountID domain.AccountID, asset domain.Asset) ([]domain.SuspiciousEvent, error)
	RemoveAsset(ctx context.Context, accountID domain.AccountID, asset domain.Asset) ([]domain.SuspiciousEvent, error)
	FindAssets(ctx context.Context, accountID domain.AccountID) ([]domain.Asset, bool, error)
}

// assetRequest is the body of POST /api/accounts/{accountId}/assets.
type assetRequest struct {
	ID          string `json:"id" valid:"required~Id must not be blank.,runelength(1|255)~Id must be at most 255 characters."`
	CountryCode string `json:"countryCode" valid:"required~Country code must not be blank.,runelength(1|16)~Country code must be at most 16 characters."`
}

type assetResponse struct {
	ID          string `json:"id"`
	CountryCode string `json:"countryCode"`
}

type errorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Limit   *int   `json:"limit,omitempty"`
}

func (s *Server) handleFindAssets(w http.ResponseWriter, r *http.Request) {
	accountID := domain.AccountID(chi.URLParam(r, "accountId"))

	assets, found, err := s.accounts.FindAssets(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	out := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, assetResponse{ID: string(a.ID), CountryCode: string(a.CountryCode)})
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleAssignAsset(w http.ResponseWriter, r *http.Request) {
	accountID := domain.AccountID(chi.URLParam(r, "accountId"))

	var req assetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Message: "Request body must be a JSON asset."})
		return
	}
	if err := validateRequest(&req); err != nil {
		s.writeError(w, r, err)
		return
	}

	asset, err := domain.NewAsset(req.ID, req.CountryCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.accounts.AssignAsset(r.Context(), accountID, asset); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", assetLocation(accountID, asset))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	accountID := domain.AccountID(chi.URLParam(r, "accountId"))

	asset, err := domain.NewAsset(chi.URLParam(r, "assetId"), r.URL.Query().Get("countryCode"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.accounts.RemoveAsset(r.Context(), accountID, asset); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "health check failed", "error", err)
			s.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps service errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *domain.ValidationError
		limitErr      *domain.LimitExceededError
	)

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		w.WriteHeader(http.StatusNotFound)

	case errors.As(err, &limitErr):
		limit := limitErr.Limit
		s.writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{Message: limitErr.Error(), Limit: &limit})

	case errors.As(err, &validationErr):
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Message: validationErr.Message, Field: validationErr.Field})

	case errors.Is(err, domain.ErrConcurrencyConflict):
		s.writeJSON(w, r, http.StatusConflict, errorResponse{Message: "The account was modified concurrently, please retry."})

	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Message: "Internal server error."})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to encode JSON response", "error", err)
	}
}

// validateRequest runs the struct tag rules and reports the first failure as
// a *domain.ValidationError named after the JSON field.
func validateRequest(req interface{}) error {
	if _, err := govalidator.ValidateStruct(req); err != nil {
		var errs govalidator.Errors
		if !errors.As(err, &errs) || len(errs.Errors()) == 0 {
			return &domain.ValidationError{Message: err.Error()}
		}

		var fieldErr govalidator.Error
		if errors.As(errs.Errors()[0], &fieldErr) {
			return &domain.ValidationError{
				Field:   jsonFieldName(req, fieldErr.Name),
				Message: fieldErr.Err.Error(),
			}
		}
		return &domain.ValidationError{Message: errs.Errors()[0].Error()}
	}
	return nil
}

func jsonFieldName(v interface{}, goName string) string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if f, ok := t.FieldByName(goName); ok {
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" {
			return tag
		}
	}
	return goName
}

func assetLocation(accountID domain.AccountID, asset domain.Asset) string {
	q := url.Values{"countryCode": []string{string(asset.CountryCode)}}
	return fmt.Sprintf("/api/accounts/%s/assets/%s?%s",
		url.PathEscape(string(accountID)), url.PathEscape(string(asset.ID)), q.Encode())
}
