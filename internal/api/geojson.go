package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// CompanyAssetsGeoJSON exports a company's located assets as a GeoJSON
// FeatureCollection for map frontends. Assets without coordinates are
// omitted.
func (h *Handler) CompanyAssetsGeoJSON(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	company, err := h.store.GetCompany(r.Context(), id)
	if err != nil {
		zap.L().Error("get company failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load company")
		return
	}
	if company == nil {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}

	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, a := range company.Assets {
		if !a.HasCoordinates() {
			continue
		}
		props := map[string]any{
			"name":        a.Name,
			"company":     company.Name,
			"commodities": a.Commodities,
		}
		if a.Status != nil {
			props["status"] = *a.Status
		}
		if a.Country != nil {
			props["country"] = *a.Country
		}
		if a.StateProvince != nil {
			props["state_province"] = *a.StateProvince
		}
		if a.Town != nil {
			props["town"] = *a.Town
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         a.ID,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{*a.Longitude, *a.Latitude}),
			Properties: props,
		})
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		zap.L().Error("marshal geojson failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to encode assets")
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}
