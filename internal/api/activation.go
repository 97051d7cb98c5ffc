package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"servotv/internal/activation"
	"servotv/internal/audit"
	"servotv/internal/entitlement"
)

type ActivationHandler struct {
	activations *activation.Service
	recorder    *audit.Recorder
}

func NewActivationHandler(activations *activation.Service, recorder *audit.Recorder) *ActivationHandler {
	return &ActivationHandler{activations: activations, recorder: recorder}
}

type ActivateCodeRequest struct {
	ActivationCode       string `json:"activationCode" validate:"required,len=6,numeric"`
	SubscriptionDuration string `json:"subscriptionDuration" validate:"required,oneof=1year lifetime"`
	Username             string `json:"username" validate:"omitempty,min=3,max=32"`
	MediaLink            string `json:"mediaLink" validate:"omitempty,url,max=2048"`
}

type ActivateCodeResponse struct {
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	DeviceUID       string `json:"device_uid"`
	ExpirationDate  string `json:"expiration_date"`
	PointsDeducted  int    `json:"points_deducted"`
	RemainingPoints int    `json:"remaining_points"`
}

// POST /api/v1/activate-code consumes a pending code and debits the
// reseller, both in one transaction, so a code can never be both "used" and
// "unpaid for".
func (h *ActivationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateCodeRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	_, resellerID := GetSubject(r)

	kind, ok := entitlement.ParseKind(req.SubscriptionDuration)
	if !ok {
		badRequest(w, "subscriptionDuration must be 1year or lifetime")
		return
	}

	result, err := h.activations.Redeem(activation.RedeemRequest{
		ResellerID: resellerID,
		Code:       req.ActivationCode,
		Kind:       kind,
		Username:   req.Username,
		MediaLink:  req.MediaLink,
	})
	if err != nil {
		h.writeRedeemError(w, err)
		return
	}

	h.recorder.Record(audit.Entry{
		Actor:        audit.Reseller(resellerID),
		Action:       "code.redeem",
		Description:  "redeemed activation code " + req.ActivationCode,
		ResourceType: "user",
		ResourceID:   result.User.ID,
		IPAddress:    r.RemoteAddr,
	})

	expiration := ""
	if result.Entitlement.ExpiresAt != nil {
		expiration = result.Entitlement.ExpiresAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusCreated, ActivateCodeResponse{
		UserID:          result.User.ID,
		Username:        result.User.Username,
		DeviceUID:       result.Device.DeviceUID,
		ExpirationDate:  expiration,
		PointsDeducted:  kind.PointsCost(),
		RemainingPoints: result.RemainingPoints,
	})
}

func (h *ActivationHandler) writeRedeemError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, activation.ErrCodeNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Activation code not found")
	case errors.Is(err, activation.ErrCodeUsed):
		writeError(w, http.StatusBadRequest, ErrCodeCodeUsed, "Activation code has already been used")
	case errors.Is(err, activation.ErrCodeExpired):
		writeError(w, http.StatusBadRequest, ErrCodeCodeExpired, "Activation code has expired")
	case errors.Is(err, activation.ErrInsufficientPoints):
		writeError(w, http.StatusBadRequest, ErrCodeInsufficientPoints, "Insufficient points balance")
	case errors.Is(err, activation.ErrResellerInactive):
		forbidden(w, ErrCodeForbidden, "Account is disabled")
	case errors.Is(err, activation.ErrUsernameTaken):
		conflict(w, "Username is already taken")
	case errors.Is(err, activation.ErrInvalidKind):
		badRequest(w, "subscriptionDuration must be 1year or lifetime")
	default:
		slog.Error("error redeeming activation code", "error", err)
		internalError(w)
	}
}
