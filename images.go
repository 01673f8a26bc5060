/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Question images live in fixed named slots, one per (category, points)
// pair, so the display clients can request them by name without any
// lookup table. Uploads assign files to slots; the resolver tries the
// known extensions in order.

// imageExtensions is the resolver's probe order.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

var mainImageTargets = []string{
	"Kombinatorika_5", "Kombinatorika_10", "Kombinatorika_15", "Kombinatorika_25",
	"Struktur_Aljabar_5", "Struktur_Aljabar_10", "Struktur_Aljabar_15", "Struktur_Aljabar_25",
	"Analisis_Riil_5", "Analisis_Riil_10", "Analisis_Riil_15", "Analisis_Riil_25",
	"Aljabar_Linear_5", "Aljabar_Linear_10", "Aljabar_Linear_15", "Aljabar_Linear_25",
	"Analisis_Kompleks_5", "Analisis_Kompleks_10", "Analisis_Kompleks_15", "Analisis_Kompleks_25",
}

var simImageTargets = []string{
	"sim_Kombinatorika_5", "sim_Kombinatorika_10", "sim_Kombinatorika_15",
	"sim_Kombinatorika_20", "sim_Kombinatorika_25",
}

// ImageStore holds the two image folders (main game and simulation) under
// one root. The lock covers multi-file operations like clear, so a
// concurrent upload never sees a half-cleared folder.
type ImageStore struct {
	root string
	mu   sync.Mutex
}

func newImageStore(root string) (*ImageStore, error) {
	store := &ImageStore{root: root}

	for _, mode := range []string{"asli", "sim"} {
		if err := os.MkdirAll(store.folder(mode), 0755); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// normalizeMode collapses every mode except "sim" to the main game.
func normalizeMode(mode string) string {
	if mode == "sim" {
		return "sim"
	}
	return "asli"
}

// normalizeExt keeps known image extensions and stores everything else
// as .jpg.
func normalizeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if slices.Contains(imageExtensions, ext) {
		return ext
	}
	return ".jpg"
}

func imageTargets(mode string) []string {
	if normalizeMode(mode) == "sim" {
		return simImageTargets
	}
	return mainImageTargets
}

func (s *ImageStore) folder(mode string) string {
	return filepath.Join(s.root, normalizeMode(mode))
}

// resolve returns the stored path for a slot, trying the known extensions
// in order.
func (s *ImageStore) resolve(mode, name string) (string, bool) {
	for _, ext := range imageExtensions {
		path := filepath.Join(s.folder(mode), name+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// save writes an uploaded file into a slot, replacing any stored image of
// the same name regardless of its extension.
func (s *ImageStore) save(mode, target, filename string, data io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder := s.folder(mode)

	for _, ext := range imageExtensions {
		_ = os.Remove(filepath.Join(folder, target+ext))
	}

	stored := target + normalizeExt(filename)

	out, err := os.Create(filepath.Join(folder, stored))
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, data); err != nil {
		return "", err
	}

	return stored, nil
}

// count reports how many stored files carry an image extension.
func (s *ImageStore) count(mode string) int {
	entries, err := os.ReadDir(s.folder(mode))
	if err != nil {
		return 0
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			total++
		}
	}
	return total
}

// clear removes every stored image in a mode's folder, returning how many
// were removed.
func (s *ImageStore) clear(mode string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.folder(mode))
	if err != nil {
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}
		if os.Remove(filepath.Join(s.folder(mode), entry.Name())) == nil {
			removed++
		}
	}
	return removed
}

type imageCounts struct {
	Asli int `json:"asli"`
	Sim  int `json:"sim"`
}

func (s *ImageStore) counts() imageCounts {
	return imageCounts{
		Asli: s.count("asli"),
		Sim:  s.count("sim"),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func serveImage(cfg *Config, store *ImageStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		path, ok := store.resolve(ps.ByName("mode"), ps.ByName("name"))
		if !ok {
			http.Error(w, "Image not found", http.StatusNotFound)
			return
		}

		securityHeaders(cfg, w)
		http.ServeFile(w, r, path)
	}
}

// serveBulkUpload assigns the uploaded files to the mode's slots in order;
// files beyond the slot list are skipped.
func serveBulkUpload(cfg *Config, store *ImageStore, mode string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		if err := r.ParseMultipartForm(64 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid multipart form"})
			return
		}

		targets := imageTargets(mode)

		saved := 0
		skipped := 0
		savedFiles := []string{}
		var totalBytes int64

		var headers []*multipart.FileHeader
		if r.MultipartForm != nil {
			headers = r.MultipartForm.File["images"]
		}

		for index, header := range headers {
			if index >= len(targets) {
				skipped++
				continue
			}

			src, err := header.Open()
			if err != nil {
				skipped++
				continue
			}

			stored, err := store.save(mode, targets[index], header.Filename, src)
			src.Close()
			if err != nil {
				skipped++
				continue
			}

			saved++
			totalBytes += header.Size
			savedFiles = append(savedFiles, stored)
		}

		logf(cfg, "IMAGES: Saved %d/%d files (%s) to %q from %s in %s",
			saved,
			len(headers),
			humanReadableSize(totalBytes),
			mode,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"saved":   saved,
			"skipped": skipped,
			"files":   savedFiles,
			"counts":  store.counts(),
		})
	}
}

// serveSingleUpload stores one file into a named slot. The target must be
// one of the mode's known slots.
func serveSingleUpload(cfg *Config, store *ImageStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid multipart form"})
			return
		}

		mode := normalizeMode(r.FormValue("mode"))
		target := r.FormValue("target")

		if !slices.Contains(imageTargets(mode), target) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "unknown target"})
			return
		}

		src, header, err := r.FormFile("image")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing file"})
			return
		}
		defer src.Close()

		stored, err := store.save(mode, target, header.Filename, src)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "upload failed"})
			return
		}

		logf(cfg, "IMAGES: Saved %q (%s) to %q from %s",
			stored,
			humanReadableSize(header.Size),
			mode,
			realIP(r),
		)

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"filename": stored,
			"counts":   store.counts(),
		})
	}
}

func serveCounts(store *ImageStore) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"counts": store.counts(),
		})
	}
}

func serveClearAll(cfg *Config, store *ImageStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		removed := imageCounts{
			Asli: store.clear("asli"),
			Sim:  store.clear("sim"),
		}

		logf(cfg, "IMAGES: Cleared %d images for %s", removed.Asli+removed.Sim, realIP(r))

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"removed": removed,
			"counts":  store.counts(),
		})
	}
}

func registerImageRoutes(cfg *Config, mux *httprouter.Router, store *ImageStore) {
	mux.GET(cfg.prefix+"/image/:mode/:name", serveImage(cfg, store))
	mux.POST(cfg.prefix+"/upload/asli", serveBulkUpload(cfg, store, "asli"))
	mux.POST(cfg.prefix+"/upload/sim", serveBulkUpload(cfg, store, "sim"))
	mux.POST(cfg.prefix+"/upload/single", serveSingleUpload(cfg, store))
	mux.GET(cfg.prefix+"/counts", serveCounts(store))
	mux.POST(cfg.prefix+"/clear/all", serveClearAll(cfg, store))
}
