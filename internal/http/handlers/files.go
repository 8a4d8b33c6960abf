package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomoima525/daily-diary/internal/storage"
)

// DownloadFile serves an object from the filesystem store when the request
// carries a valid signed token for exactly that key.
func (a *App) DownloadFile(w http.ResponseWriter, r *http.Request) {
	if a.Files == nil {
		a.NotFound(w, r)
		return
	}
	key, err := url.PathUnescape(strings.TrimPrefix(chi.URLParam(r, "*"), "/"))
	if err != nil {
		a.clientError(w, http.StatusBadRequest, "invalid path")
		return
	}
	token := r.URL.Query().Get("token")
	if key == "" || token == "" {
		a.clientError(w, http.StatusForbidden, "missing token")
		return
	}
	signedKey, err := a.Files.Signer().Verify(token)
	if err != nil || signedKey != key {
		a.clientError(w, http.StatusForbidden, "invalid or expired token")
		return
	}

	rc, err := a.Files.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.NotFound(w, r)
			return
		}
		a.serverError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentTypeFor(key))
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("Cache-Control", "max-age=86400")

	if f, ok := rc.(*os.File); ok {
		modTime := time.Time{}
		if info, err := f.Stat(); err == nil {
			modTime = info.ModTime()
		}
		http.ServeContent(w, r, path.Base(key), modTime, f)
		return
	}
	_, _ = io.Copy(w, rc)
}

func contentTypeFor(key string) string {
	switch ext := strings.ToLower(path.Ext(key)); ext {
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}
