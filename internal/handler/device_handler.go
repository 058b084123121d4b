package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/kintai/internal/metrics"
	"github.com/hitoshi/kintai/internal/middleware"
	"github.com/hitoshi/kintai/internal/model"
	"github.com/hitoshi/kintai/internal/repository"
)

// adminTokenHeader は管理APIの認証トークンを運ぶヘッダー名。
const adminTokenHeader = "X-Admin-Token"

// DeviceHandler は端末の照会と許可リスト管理のHTTPハンドラー。
type DeviceHandler struct {
	devices    repository.DeviceRepository
	collector  metrics.MetricsCollector
	adminToken string
}

// NewDeviceHandler はDeviceHandlerを生成する。
// adminTokenが空の場合、管理APIは常に拒否される。
func NewDeviceHandler(devices repository.DeviceRepository, collector metrics.MetricsCollector, adminToken string) *DeviceHandler {
	return &DeviceHandler{
		devices:    devices,
		collector:  collector,
		adminToken: adminToken,
	}
}

// deviceResponse は端末状態のAPIレスポンス。
type deviceResponse struct {
	DeviceID string `json:"device_id"`
	Allowed  bool   `json:"allowed"`
	Label    string `json:"label,omitempty"`
}

// upsertDeviceRequest は端末登録リクエストのボディ。
type upsertDeviceRequest struct {
	DeviceID string `json:"device_id"`
	Label    string `json:"label"`
}

// GetDevice は自端末の識別子と許可状態を返す。
// GET /api/device
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := deviceResponse{DeviceID: deviceID}

	device, err := h.devices.FindByDeviceID(r.Context(), deviceID)
	if err != nil {
		if h.collector != nil {
			h.collector.RecordStorageError()
		}
		handleServiceError(w, err)
		return
	}
	if device != nil {
		resp.Allowed = device.Active
		resp.Label = device.Label
	}

	if !resp.Allowed && h.collector != nil {
		h.collector.RecordDeviceDenied()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpsertDevice は端末を許可リストに登録する。
// POST /api/admin/devices
func (h *DeviceHandler) UpsertDevice(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAdmin(w, r) {
		return
	}

	var req upsertDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if _, err := uuid.Parse(req.DeviceID); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_DEVICE_ID",
			Message:  "端末IDの形式が不正です。",
			Category: "validation",
			Action:   "端末に表示されているUUID形式のIDを指定してください。",
		})
		return
	}

	device := &model.Device{
		DeviceID: req.DeviceID,
		Label:    req.Label,
		Active:   true,
	}
	if err := h.devices.Upsert(r.Context(), device); err != nil {
		if h.collector != nil {
			h.collector.RecordStorageError()
		}
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(deviceResponse{
		DeviceID: device.DeviceID,
		Allowed:  device.Active,
		Label:    device.Label,
	})
}

// DeactivateDevice は端末の許可を取り消す。
// DELETE /api/admin/devices/{id}
func (h *DeviceHandler) DeactivateDevice(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAdmin(w, r) {
		return
	}

	deviceID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(deviceID); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_DEVICE_ID",
			Message:  "端末IDの形式が不正です。",
			Category: "validation",
			Action:   "端末に表示されているUUID形式のIDを指定してください。",
		})
		return
	}

	if err := h.devices.Deactivate(r.Context(), deviceID); err != nil {
		if h.collector != nil {
			h.collector.RecordStorageError()
		}
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// authorizeAdmin は管理トークンを定数時間比較で検証する。
// トークン未設定の環境では管理APIを無効化する。
func (h *DeviceHandler) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	token := r.Header.Get(adminTokenHeader)
	if h.adminToken == "" || token == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewAdminForbiddenError())
		return false
	}
	return true
}
