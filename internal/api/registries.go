package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/registry-core/internal/registry"
	"github.com/nerrad567/registry-core/internal/store"
)

// createRegistryRequest is the body of POST /registries.
type createRegistryRequest struct {
	Name string `json:"name"`
}

// pathParam returns a chi URL parameter as a plain name. chi matches on
// r.URL.RawPath when Go kept one (an escaped "/" in a name) and on the
// already-decoded r.URL.Path otherwise, so only the former is unescaped.
func pathParam(r *http.Request, key string) (string, bool) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, true
	}
	v, err := url.PathUnescape(v)
	if err != nil {
		return "", false
	}
	return v, true
}

// handleListRegistries returns every registry in creation order.
func (s *Server) handleListRegistries(w http.ResponseWriter, _ *http.Request) {
	regs := s.store.Registries()
	writeJSON(w, http.StatusOK, map[string]any{
		"registries": regs,
		"count":      len(regs),
	})
}

// handleCreateRegistry creates a registry owned by the caller.
func (s *Server) handleCreateRegistry(w http.ResponseWriter, r *http.Request) {
	var req createRegistryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	reg, err := s.store.CreateRegistry(r.Context(), identityFromContext(r.Context()), req.Name)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// handleGetRegistry returns one registry with its devices.
func (s *Server) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	name, ok := pathParam(r, "registry")
	if !ok {
		writeBadRequest(w, "invalid registry name")
		return
	}

	reg, err := s.store.Registry(name)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// handleRegistryExists reports whether a registry name is taken.
func (s *Server) handleRegistryExists(w http.ResponseWriter, r *http.Request) {
	name, ok := pathParam(r, "registry")
	if !ok {
		writeBadRequest(w, "invalid registry name")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"registry": name,
		"exists":   s.store.RegistryExists(name),
	})
}

// handleIsOwner reports whether an identity owns the registry. The identity
// defaults to the caller and may be overridden with ?identity=.
// A missing registry yields false, not 404.
func (s *Server) handleIsOwner(w http.ResponseWriter, r *http.Request) {
	name, ok := pathParam(r, "registry")
	if !ok {
		writeBadRequest(w, "invalid registry name")
		return
	}

	identity := identityFromContext(r.Context())
	if q := r.URL.Query().Get("identity"); q != "" {
		identity = registry.Identity(q)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"registry": name,
		"identity": identity,
		"is_owner": s.store.IsOwner(name, identity),
	})
}

// handleAddDevice adds a device to a registry.
func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	name, ok := pathParam(r, "registry")
	if !ok {
		writeBadRequest(w, "invalid registry name")
		return
	}

	var spec store.DeviceSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id, err := s.store.AddDevice(r.Context(), identityFromContext(r.Context()), name, spec)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	dev, _, err := s.store.Device(name, spec.Name)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, deviceResponse{
		Registry: name,
		DeviceID: id,
		Device:   dev,
	})
}
