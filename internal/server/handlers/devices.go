package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/soundlines/internal/crypto"
	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/server/jwt"
	"github.com/iudanet/soundlines/internal/server/storage"
	"github.com/iudanet/soundlines/internal/validation"
	"github.com/iudanet/soundlines/pkg/api"
)

// DeviceHandler обрабатывает регистрацию и вход телефонов
type DeviceHandler struct {
	logger  *slog.Logger
	devices storage.DeviceStorage
	tokens  *jwt.Service
}

// NewDeviceHandler создает новый handler для устройств
func NewDeviceHandler(logger *slog.Logger, devices storage.DeviceStorage, tokens *jwt.Service) *DeviceHandler {
	return &DeviceHandler{
		logger:  logger,
		devices: devices,
		tokens:  tokens,
	}
}

// Register обрабатывает POST /api/v1/devices/register
// Регистрация нового телефона
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Парсим request body
	var req api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode register request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateDeviceName(req.Name); err != nil {
		h.logger.WarnContext(ctx, "invalid device name", slog.String("name", req.Name), slog.Any("error", err))
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateSecret(req.Secret); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := crypto.HashSecret(req.Secret)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash device secret", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	device := &models.Device{
		ID:         uuid.New().String(),
		Name:       req.Name,
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.devices.CreateDevice(ctx, device); err != nil {
		if errors.Is(err, storage.ErrDeviceAlreadyExists) {
			h.logger.WarnContext(ctx, "device already exists", slog.String("name", req.Name))
			sendError(h.logger, w, "device name already taken", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create device", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "device registered successfully",
		slog.String("name", req.Name),
		slog.String("device_id", device.ID))

	sendJSON(h.logger, w, api.RegisterResponse{
		DeviceID: device.ID,
		Message:  "Device registered successfully",
	}, http.StatusCreated)
}

// Login обрабатывает POST /api/v1/devices/login
// Проверяет секрет устройства и выдаёт JWT
func (h *DeviceHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode login request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateDeviceName(req.Name); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Secret == "" {
		sendError(h.logger, w, "secret is required", http.StatusBadRequest)
		return
	}

	device, err := h.devices.GetDeviceByName(ctx, req.Name)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceNotFound) {
			h.logger.WarnContext(ctx, "login failed: device not found", slog.String("name", req.Name))
			sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get device", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := crypto.VerifySecret(req.Secret, device.SecretHash); err != nil {
		h.logger.WarnContext(ctx, "login failed: invalid secret", slog.String("name", req.Name))
		sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, expiresIn, err := h.tokens.GenerateToken(device.ID, device.Name)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.devices.UpdateLastSeen(ctx, device.ID, time.Now().UTC()); err != nil {
		// Не критичная ошибка, логируем но не прерываем
		h.logger.WarnContext(ctx, "failed to update last seen", slog.Any("error", err))
	}

	h.logger.InfoContext(ctx, "device logged in successfully",
		slog.String("name", req.Name),
		slog.String("device_id", device.ID))

	sendJSON(h.logger, w, api.TokenResponse{
		AccessToken: token,
		DeviceID:    device.ID,
		ExpiresIn:   expiresIn,
	}, http.StatusOK)
}
