package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/registry-core/internal/registry"
)

// deviceResponse is the representation of a single device.
type deviceResponse struct {
	Registry string           `json:"registry"`
	DeviceID string           `json:"device_id"`
	Device   *registry.Device `json:"device"`
}

type setMetadataRequest struct {
	Metadata []registry.Pair `json:"metadata"`
}

type setDataRequest struct {
	Data []registry.Pair `json:"data"`
}

type setMetadataParamRequest struct {
	Param string `json:"param"`
	Value string `json:"value"`
}

// deviceParams extracts the registry and device names from the URL.
func deviceParams(w http.ResponseWriter, r *http.Request) (reg, dev string, ok bool) {
	reg, ok = pathParam(r, "registry")
	if !ok {
		writeBadRequest(w, "invalid registry name")
		return "", "", false
	}
	dev, ok = pathParam(r, "device")
	if !ok {
		writeBadRequest(w, "invalid device name")
		return "", "", false
	}
	return reg, dev, true
}

// handleGetDevice returns one device and its handle.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	reg, dev, ok := deviceParams(w, r)
	if !ok {
		return
	}
	s.writeDevice(w, r, reg, dev)
}

// handleDeviceExists reports whether a device name is taken in a registry.
func (s *Server) handleDeviceExists(w http.ResponseWriter, r *http.Request) {
	reg, dev, ok := deviceParams(w, r)
	if !ok {
		return
	}

	exists, err := s.store.DeviceExists(reg, dev)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"registry": reg,
		"device":   dev,
		"exists":   exists,
	})
}

// handleSetDeviceMetadata replaces a device's metadata.
func (s *Server) handleSetDeviceMetadata(w http.ResponseWriter, r *http.Request) {
	reg, dev, ok := deviceParams(w, r)
	if !ok {
		return
	}

	var req setMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.store.SetDeviceMetadata(r.Context(), identityFromContext(r.Context()), reg, dev, req.Metadata); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeDevice(w, r, reg, dev)
}

// handleSetDeviceData replaces a device's data.
func (s *Server) handleSetDeviceData(w http.ResponseWriter, r *http.Request) {
	reg, dev, ok := deviceParams(w, r)
	if !ok {
		return
	}

	var req setDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.store.SetDeviceData(r.Context(), identityFromContext(r.Context()), reg, dev, req.Data); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeDevice(w, r, reg, dev)
}

// handleSetDeviceMetadataParam appends one metadata pair. Only the registry
// owner may do this.
func (s *Server) handleSetDeviceMetadataParam(w http.ResponseWriter, r *http.Request) {
	reg, dev, ok := deviceParams(w, r)
	if !ok {
		return
	}

	var req setMetadataParamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.store.SetDeviceMetadataParam(r.Context(), identityFromContext(r.Context()), reg, dev, req.Param, req.Value); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeDevice(w, r, reg, dev)
}

func (s *Server) writeDevice(w http.ResponseWriter, r *http.Request, reg, dev string) {
	device, id, err := s.store.Device(reg, dev)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceResponse{
		Registry: reg,
		DeviceID: id,
		Device:   device,
	})
}
