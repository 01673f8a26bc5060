package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/julienschmidt/httprouter"
)

func newImageTestServer(t *testing.T) (*httptest.Server, *ImageStore) {
	t.Helper()

	cfg := &Config{imagesDir: t.TempDir()}

	store, err := newImageStore(cfg.imagesDir)
	if err != nil {
		t.Fatalf("newImageStore: %v", err)
	}

	mux := httprouter.New()
	registerImageRoutes(cfg, mux, store)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, store
}

func multipartBody(t *testing.T, field string, filenames []string, contents []string, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range values {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %q: %v", key, err)
		}
	}

	for i, name := range filenames {
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file %q: %v", name, err)
		}
		if _, err := part.Write([]byte(contents[i])); err != nil {
			t.Fatalf("write form file %q: %v", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	return &buf, writer.FormDataContentType()
}

func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestImageResolverExtensionOrder(t *testing.T) {
	srv, store := newImageTestServer(t)

	folder := store.folder("asli")
	if err := os.WriteFile(filepath.Join(folder, "Kombinatorika_5.jpg"), []byte("jpg bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(folder, "Kombinatorika_5.png"), []byte("png bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/image/asli/Kombinatorika_5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	data, _ := io.ReadAll(resp.Body)
	if string(data) != "png bytes" {
		t.Errorf("served %q, want the .png variant", data)
	}
}

func TestImageResolverMissing(t *testing.T) {
	srv, _ := newImageTestServer(t)

	resp, err := http.Get(srv.URL + "/image/asli/Kombinatorika_5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestBulkUploadAssignsSlotsInOrder(t *testing.T) {
	srv, store := newImageTestServer(t)

	names := []string{"a.png", "b.webp", "c.bmp"}
	contents := []string{"one", "two", "three"}

	body, contentType := multipartBody(t, "images", names, contents, nil)

	resp, err := http.Post(srv.URL+"/upload/asli", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	result := decodeJSON(t, resp.Body)

	if result["ok"] != true {
		t.Fatalf("ok = %v, want true", result["ok"])
	}
	if result["saved"].(float64) != 3 {
		t.Errorf("saved = %v, want 3", result["saved"])
	}

	files := result["files"].([]any)
	// Unknown extensions are stored as .jpg.
	want := []string{"Kombinatorika_5.png", "Kombinatorika_10.webp", "Kombinatorika_15.jpg"}
	for i, name := range want {
		if files[i] != name {
			t.Errorf("files[%d] = %v, want %q", i, files[i], name)
		}
	}

	if got := store.count("asli"); got != 3 {
		t.Errorf("count(asli) = %d, want 3", got)
	}
}

func TestBulkUploadSkipsExtraFiles(t *testing.T) {
	srv, store := newImageTestServer(t)

	names := make([]string, 7)
	contents := make([]string, 7)
	for i := range names {
		names[i] = "file.png"
		contents[i] = "x"
	}

	body, contentType := multipartBody(t, "images", names, contents, nil)

	resp, err := http.Post(srv.URL+"/upload/sim", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	result := decodeJSON(t, resp.Body)

	if result["saved"].(float64) != 5 {
		t.Errorf("saved = %v, want 5", result["saved"])
	}
	if result["skipped"].(float64) != 2 {
		t.Errorf("skipped = %v, want 2", result["skipped"])
	}
	if got := store.count("sim"); got != 5 {
		t.Errorf("count(sim) = %d, want 5", got)
	}
}

func TestSingleUpload(t *testing.T) {
	srv, store := newImageTestServer(t)

	t.Run("valid target replaces other extensions", func(t *testing.T) {
		folder := store.folder("sim")
		if err := os.WriteFile(filepath.Join(folder, "sim_Kombinatorika_5.png"), []byte("old"), 0644); err != nil {
			t.Fatal(err)
		}

		body, contentType := multipartBody(t, "image", []string{"soal.heic"}, []string{"new"}, map[string]string{
			"mode":   "sim",
			"target": "sim_Kombinatorika_5",
		})

		resp, err := http.Post(srv.URL+"/upload/single", contentType, body)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		result := decodeJSON(t, resp.Body)

		if result["filename"] != "sim_Kombinatorika_5.jpg" {
			t.Errorf("filename = %v, want sim_Kombinatorika_5.jpg", result["filename"])
		}
		if _, err := os.Stat(filepath.Join(folder, "sim_Kombinatorika_5.png")); !os.IsNotExist(err) {
			t.Error("stale .png variant was not removed")
		}
		if got := store.count("sim"); got != 1 {
			t.Errorf("count(sim) = %d, want 1", got)
		}
	})

	t.Run("unknown target rejected", func(t *testing.T) {
		body, contentType := multipartBody(t, "image", []string{"soal.png"}, []string{"x"}, map[string]string{
			"mode":   "asli",
			"target": "Fisika_5",
		})

		resp, err := http.Post(srv.URL+"/upload/single", contentType, body)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}

		result := decodeJSON(t, resp.Body)
		if result["ok"] != false {
			t.Errorf("ok = %v, want false", result["ok"])
		}
	})
}

func TestClearAll(t *testing.T) {
	srv, store := newImageTestServer(t)

	for _, mode := range []string{"asli", "sim"} {
		if err := os.WriteFile(filepath.Join(store.folder(mode), "Kombinatorika_5.png"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Post(srv.URL+"/clear/all", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	result := decodeJSON(t, resp.Body)

	removed := result["removed"].(map[string]any)
	if removed["asli"].(float64) != 1 || removed["sim"].(float64) != 1 {
		t.Errorf("removed = %v, want 1 per mode", removed)
	}

	counts := result["counts"].(map[string]any)
	if counts["asli"].(float64) != 0 || counts["sim"].(float64) != 0 {
		t.Errorf("counts = %v, want zeroes", counts)
	}
}

func TestCounts(t *testing.T) {
	srv, store := newImageTestServer(t)

	if err := os.WriteFile(filepath.Join(store.folder("asli"), "Kombinatorika_5.png"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	// Non-image files are not counted.
	if err := os.WriteFile(filepath.Join(store.folder("asli"), "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/counts")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	result := decodeJSON(t, resp.Body)

	counts := result["counts"].(map[string]any)
	if counts["asli"].(float64) != 1 {
		t.Errorf("counts.asli = %v, want 1", counts["asli"])
	}
}
