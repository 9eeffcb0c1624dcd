package host

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LocalHost is a self-contained Host backed by a JSON project document on
// disk. It exists so the bridge can run and be driven end to end without the
// real content application; pipelines embed their own Host instead.
type LocalHost struct {
	version string

	mu          sync.Mutex
	projectPath string
	dirty       bool
	doc         *projectDocument
}

// projectDocument is the on-disk project format.
type projectDocument struct {
	Name      string                  `json:"name"`
	Settings  map[string]any          `json:"settings"`
	Resources map[string]resourceInfo `json:"resources"`
	Maps      []string                `json:"maps"`
}

type resourceInfo struct {
	Path        string `json:"path"`
	Usage       string `json:"usage"`
	Destination string `json:"destination"`
}

// defaultMaps are the map slots a fresh project exposes for export.
var defaultMaps = []string{"basecolor", "normal", "roughness", "metallic"}

func NewLocalHost(version string) *LocalHost {
	return &LocalHost{version: version}
}

func newProjectDocument(name string) *projectDocument {
	return &projectDocument{
		Name:      name,
		Settings:  make(map[string]any),
		Resources: make(map[string]resourceInfo),
		Maps:      append([]string(nil), defaultMaps...),
	}
}

// NewProject creates a fresh unsaved project. Not a wire command; the
// embedding application calls this and announces it with NEW_PROJECT_CREATED.
func (h *LocalHost) NewProject(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.doc = newProjectDocument(name)
	h.projectPath = ""
	h.dirty = true
}

func (h *LocalHost) Version() map[string]any {
	return map[string]any{"painter": h.version}
}

func (h *LocalHost) CurrentProjectPath() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.projectPath, nil
}

func (h *LocalHost) OpenProject(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open project: %w", err)
	}

	var doc projectDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse project %s: %w", path, err)
	}
	if doc.Settings == nil {
		doc.Settings = make(map[string]any)
	}
	if doc.Resources == nil {
		doc.Resources = make(map[string]resourceInfo)
	}
	if len(doc.Maps) == 0 {
		doc.Maps = append([]string(nil), defaultMaps...)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.doc = &doc
	h.projectPath = path
	h.dirty = false
	return path, nil
}

func (h *LocalHost) SaveProject() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return false, fmt.Errorf("no project open")
	}
	if h.projectPath == "" {
		return false, fmt.Errorf("project has never been saved, use SAVE_PROJECT_AS")
	}
	return h.saveLocked(h.projectPath)
}

func (h *LocalHost) SaveProjectAs(path string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return false, fmt.Errorf("no project open")
	}
	ok, err := h.saveLocked(path)
	if err != nil {
		return false, err
	}
	h.projectPath = path
	return ok, nil
}

func (h *LocalHost) saveLocked(path string) (bool, error) {
	data, err := json.MarshalIndent(h.doc, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to serialize project: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write project: %w", err)
	}
	h.dirty = false
	return true, nil
}

func (h *LocalHost) CloseProject() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return false, nil
	}
	h.doc = nil
	h.projectPath = ""
	h.dirty = false
	return true, nil
}

func (h *LocalHost) NeedsSaving(path string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return false, nil
	}
	// A path argument asks about that specific project; only the open one can
	// have unsaved changes
	if path != "" && path != h.projectPath {
		return false, nil
	}
	return h.dirty, nil
}

func (h *LocalHost) ImportProjectResource(path, usage, destination string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("resource file not found: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return "", fmt.Errorf("no project open")
	}

	url := resourceURL(destination, filepath.Base(path))
	h.doc.Resources[url] = resourceInfo{Path: path, Usage: usage, Destination: destination}
	h.dirty = true
	return url, nil
}

// resourceURL builds the shortlink-style identifier peers use to refer to an
// imported resource.
func resourceURL(destination, name string) string {
	if destination == "" {
		destination = "project"
	}
	return fmt.Sprintf("resource://%s/%s", destination, name)
}

func (h *LocalHost) UpdateDocumentResources(oldURL, newURL string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return 0, fmt.Errorf("no project open")
	}

	info, ok := h.doc.Resources[oldURL]
	if !ok {
		return 0, nil
	}
	delete(h.doc.Resources, oldURL)
	h.doc.Resources[newURL] = info
	h.dirty = true
	return 1, nil
}

func (h *LocalHost) DocumentResources() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return nil, fmt.Errorf("no project open")
	}

	urls := make([]string, 0, len(h.doc.Resources))
	for url := range h.doc.Resources {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls, nil
}

func (h *LocalHost) ResourceInfo(url string) (map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return nil, fmt.Errorf("no project open")
	}
	info, ok := h.doc.Resources[url]
	if !ok {
		return nil, fmt.Errorf("unknown resource: %s", url)
	}
	return map[string]any{
		"url":         url,
		"path":        info.Path,
		"usage":       info.Usage,
		"destination": info.Destination,
	}, nil
}

func (h *LocalHost) ProjectSetting(key string) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return nil, fmt.Errorf("no project open")
	}
	value, ok := h.doc.Settings[key]
	if !ok {
		return nil, fmt.Errorf("unknown project setting: %s", key)
	}
	return value, nil
}

func (h *LocalHost) SetProjectSetting(key string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return fmt.Errorf("no project open")
	}
	h.doc.Settings[key] = value
	h.dirty = true
	return nil
}

func (h *LocalHost) ProjectExportPath() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return "", fmt.Errorf("no project open")
	}
	// An explicit export_path setting wins over the derived location
	if custom, ok := h.doc.Settings["export_path"].(string); ok && custom != "" {
		return custom, nil
	}
	if h.projectPath == "" {
		return "", fmt.Errorf("project has never been saved, no export path")
	}
	return filepath.Join(filepath.Dir(h.projectPath), "export"), nil
}

func (h *LocalHost) MapExportInformation() ([]MapExportInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return nil, fmt.Errorf("no project open")
	}

	exportPath := ""
	if h.projectPath != "" {
		exportPath = filepath.Join(filepath.Dir(h.projectPath), "export")
	}

	infos := make([]MapExportInfo, 0, len(h.doc.Maps))
	for _, m := range h.doc.Maps {
		infos = append(infos, MapExportInfo{
			Stack:       h.doc.Name,
			Map:         m,
			Destination: filepath.Join(exportPath, mapFileName(h.doc.Name, m)),
		})
	}
	return infos, nil
}

func (h *LocalHost) ExportDocumentMaps(destination string) (map[string]string, error) {
	h.mu.Lock()
	if h.doc == nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("no project open")
	}
	name := h.doc.Name
	maps := append([]string(nil), h.doc.Maps...)
	h.mu.Unlock()

	if err := os.MkdirAll(destination, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export destination: %w", err)
	}

	infos := make(map[string]string, len(maps))
	for _, m := range maps {
		path := filepath.Join(destination, mapFileName(name, m))
		if err := os.WriteFile(path, []byte{}, 0644); err != nil {
			return nil, fmt.Errorf("failed to export map %s: %w", m, err)
		}
		infos[m] = path
	}
	return infos, nil
}

func mapFileName(project, mapName string) string {
	if project == "" {
		project = "untitled"
	}
	return fmt.Sprintf("%s_%s.png", project, mapName)
}

func (h *LocalHost) ExtractThumbnail(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.doc == nil {
		return fmt.Errorf("no project open")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	if err := os.WriteFile(path, []byte{}, 0644); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return nil
}

// ExecuteStatement supports a few introspection statements. Arbitrary
// scripting needs the real application behind the Host.
func (h *LocalHost) ExecuteStatement(statement string) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch strings.TrimSpace(statement) {
	case "painter.version":
		return h.version, nil
	case "project.name":
		if h.doc == nil {
			return nil, fmt.Errorf("no project open")
		}
		return h.doc.Name, nil
	default:
		return nil, fmt.Errorf("unsupported statement: %s", statement)
	}
}
