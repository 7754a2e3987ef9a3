package handler

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/api/response"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// AssetOpener reads archived files. *storage.FileStore satisfies it.
type AssetOpener interface {
	Open(key string) (*os.File, error)
}

// NewDownloadAssetHandler returns an http.HandlerFunc for
// GET /api/assets/{id}/download?index=n. Archived files are streamed from
// local storage; anything else redirects to the recorded URL.
func NewDownloadAssetHandler(svc JobService, files AssetOpener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		jobID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			assetNotFound(w)
			return
		}
		index := 0
		if raw := r.URL.Query().Get("index"); raw != "" {
			index, err = strconv.Atoi(raw)
			if err != nil || index < 0 {
				assetNotFound(w)
				return
			}
		}

		job, err := svc.GetJob(r.Context(), jobID, id.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if job.Status != models.JobStatusCompleted || index >= len(job.AssetURLs) {
			assetNotFound(w)
			return
		}

		var asset models.Asset
		if assets := models.AssetsFromMeta(job.Meta); index < len(assets) {
			asset = assets[index]
		}
		if asset.LocalPath == "" {
			http.Redirect(w, r, job.AssetURLs[index], http.StatusFound)
			return
		}

		f, err := files.Open(asset.LocalPath)
		if err != nil {
			slog.Warn("archived asset unavailable", "job_id", jobID, "local_path", asset.LocalPath, "error", err)
			if asset.OriginalURL != "" {
				http.Redirect(w, r, asset.OriginalURL, http.StatusFound)
				return
			}
			assetNotFound(w)
			return
		}
		defer f.Close()

		serveFile(w, r, f, asset)
	}
}

func serveFile(w http.ResponseWriter, r *http.Request, f *os.File, asset models.Asset) {
	info, err := f.Stat()
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not read asset", nil)
		return
	}
	if asset.ContentType != "" {
		w.Header().Set("Content-Type", asset.ContentType)
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(asset.LocalPath)+`"`)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func assetNotFound(w http.ResponseWriter) {
	response.Error(w, http.StatusNotFound, "NOT_FOUND", "Asset not found", nil)
}
