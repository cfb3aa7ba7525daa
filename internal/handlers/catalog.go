package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/servly-app/servlygo/internal/models"
)

// listProviders serves the provider catalog: read-through from the
// marketplace when online (refreshing the cache), cached snapshots when not
func (r *Router) listProviders(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if r.monitor.IsOnline() {
		providers, err := r.client.FetchProviders(ctx)
		if err == nil {
			entries := make([]models.CachedEntity, 0, len(providers))
			for i := range providers {
				entry, err := models.NewCachedEntity(models.EntityKindProvider, providers[i].ID, providers[i])
				if err != nil {
					continue
				}
				entries = append(entries, entry)
			}
			if err := r.cache.Put(ctx, entries); err != nil {
				log.Printf("⚠️ Failed to cache provider catalog: %v", err)
			}
			respondJSON(w, http.StatusOK, map[string]interface{}{"providers": providers, "cached": false})
			return
		}
		log.Printf("⚠️ Provider fetch failed, falling back to cache: %v", err)
	}

	entries, err := r.cache.GetAll(ctx, models.EntityKindProvider)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read cached providers")
		return
	}
	providers := make([]models.Provider, 0, len(entries))
	for i := range entries {
		var p models.Provider
		if err := entries[i].DecodeSnapshot(&p); err != nil {
			continue
		}
		providers = append(providers, p)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"providers": providers, "cached": true})
}

// listServices serves the service catalog with the same read-through policy
func (r *Router) listServices(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if r.monitor.IsOnline() {
		services, err := r.client.FetchServices(ctx)
		if err == nil {
			entries := make([]models.CachedEntity, 0, len(services))
			for i := range services {
				entry, err := models.NewCachedEntity(models.EntityKindService, services[i].ID, services[i])
				if err != nil {
					continue
				}
				entries = append(entries, entry)
			}
			if err := r.cache.Put(ctx, entries); err != nil {
				log.Printf("⚠️ Failed to cache service catalog: %v", err)
			}
			respondJSON(w, http.StatusOK, map[string]interface{}{"services": services, "cached": false})
			return
		}
		log.Printf("⚠️ Service fetch failed, falling back to cache: %v", err)
	}

	entries, err := r.cache.GetAll(ctx, models.EntityKindService)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read cached services")
		return
	}
	services := make([]models.Service, 0, len(entries))
	for i := range entries {
		var s models.Service
		if err := entries[i].DecodeSnapshot(&s); err != nil {
			continue
		}
		services = append(services, s)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"services": services, "cached": true})
}

// updatePreferences writes provider preferences straight through to the
// marketplace. Preference changes are never queued: a stale auto-accept
// flag silently applied hours later surprises providers, so offline
// attempts are refused outright.
func (r *Router) updatePreferences(w http.ResponseWriter, req *http.Request) {
	if !r.monitor.IsOnline() {
		respondError(w, http.StatusServiceUnavailable, "Preference changes require a connection")
		return
	}

	var prefs map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&prefs); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	providerID := mux.Vars(req)["id"]
	if err := r.client.UpdatePreferences(req.Context(), providerID, prefs); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Preferences updated"})
}
