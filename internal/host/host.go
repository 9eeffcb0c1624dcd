package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/texelworks/painterlink/internal/bridge"
	"github.com/texelworks/painterlink/internal/protocol"
)

// Host is the surface the bridge drives on behalf of the peer: project
// lifecycle, resources, settings and map export. Implementations adapt a real
// content application; LocalHost is a self-contained reference.
type Host interface {
	// Version reports application version information. The "painter" key is
	// what peers key on.
	Version() map[string]any

	CurrentProjectPath() (string, error)
	OpenProject(path string) (string, error)
	SaveProject() (bool, error)
	SaveProjectAs(path string) (bool, error)
	CloseProject() (bool, error)
	NeedsSaving(path string) (bool, error)

	// ImportProjectResource brings a file under project management and
	// returns its resource url.
	ImportProjectResource(path, usage, destination string) (string, error)
	UpdateDocumentResources(oldURL, newURL string) (int, error)
	DocumentResources() ([]string, error)
	ResourceInfo(url string) (map[string]any, error)

	ProjectSetting(key string) (any, error)
	SetProjectSetting(key string, value any) error

	ProjectExportPath() (string, error)
	MapExportInformation() ([]MapExportInfo, error)
	// ExportDocumentMaps writes the project's maps under destination and
	// returns map name to written path. It may take a while; the bridge runs
	// it off the dispatch path.
	ExportDocumentMaps(destination string) (map[string]string, error)

	ExtractThumbnail(path string) error
	ExecuteStatement(statement string) (any, error)
}

// MapExportInfo describes one exportable map of the current project.
type MapExportInfo struct {
	Stack       string `json:"stack"`
	Map         string `json:"map"`
	Destination string `json:"destination"`
}

// Options carries the bridge callbacks the command table needs beyond the
// Host itself.
type Options struct {
	// Notify pushes an outbound command to the peer. Required for the async
	// export flow.
	Notify func(method string, params protocol.Params)
	// SetDebug flips runtime debug logging and reports the new state.
	SetDebug func(enabled bool) bool
}

// RegisterAll binds the full command table to the registry. Call it once
// before the listener starts accepting.
func RegisterAll(reg *bridge.Registry, h Host, opts Options) {
	reg.Register("GET_VERSION", func(protocol.Params) (any, error) {
		return h.Version(), nil
	})

	reg.Register("GET_CURRENT_PROJECT_PATH", func(protocol.Params) (any, error) {
		return h.CurrentProjectPath()
	})

	reg.Register("OPEN_PROJECT", func(p protocol.Params) (any, error) {
		path, ok := p.String("path")
		if !ok {
			return nil, fmt.Errorf("missing parameter: path")
		}
		return h.OpenProject(path)
	})

	reg.Register("SAVE_PROJECT", func(protocol.Params) (any, error) {
		return h.SaveProject()
	})

	reg.Register("SAVE_PROJECT_AS", func(p protocol.Params) (any, error) {
		path, ok := p.String("path")
		if !ok {
			return nil, fmt.Errorf("missing parameter: path")
		}
		return h.SaveProjectAs(path)
	})

	reg.Register("CLOSE_PROJECT", func(protocol.Params) (any, error) {
		return h.CloseProject()
	})

	reg.Register("NEEDS_SAVING", func(p protocol.Params) (any, error) {
		path, _ := p.String("path")
		return h.NeedsSaving(path)
	})

	reg.Register("IMPORT_PROJECT_RESOURCE", func(p protocol.Params) (any, error) {
		path, ok := p.String("path")
		if !ok {
			return nil, fmt.Errorf("missing parameter: path")
		}
		usage, _ := p.String("usage")
		destination, _ := p.String("destination")
		return h.ImportProjectResource(path, usage, destination)
	})

	reg.Register("UPDATE_DOCUMENT_RESOURCES", func(p protocol.Params) (any, error) {
		oldURL, ok := p.String("old_url")
		if !ok {
			return nil, fmt.Errorf("missing parameter: old_url")
		}
		newURL, ok := p.String("new_url")
		if !ok {
			return nil, fmt.Errorf("missing parameter: new_url")
		}
		return h.UpdateDocumentResources(oldURL, newURL)
	})

	reg.Register("DOCUMENT_RESOURCES", func(protocol.Params) (any, error) {
		return h.DocumentResources()
	})

	reg.Register("GET_RESOURCE_INFO", func(p protocol.Params) (any, error) {
		url, ok := p.String("url")
		if !ok {
			return nil, fmt.Errorf("missing parameter: url")
		}
		return h.ResourceInfo(url)
	})

	reg.Register("GET_PROJECT_SETTINGS", func(p protocol.Params) (any, error) {
		key, ok := p.String("key")
		if !ok {
			return nil, fmt.Errorf("missing parameter: key")
		}
		return h.ProjectSetting(key)
	})

	reg.Register("SET_PROJECT_SETTINGS", func(p protocol.Params) (any, error) {
		key, ok := p.String("key")
		if !ok {
			return nil, fmt.Errorf("missing parameter: key")
		}
		value, ok := p.Get("value")
		if !ok {
			return nil, fmt.Errorf("missing parameter: value")
		}
		if err := h.SetProjectSetting(key, value); err != nil {
			return nil, err
		}
		return true, nil
	})

	reg.Register("GET_PROJECT_EXPORT_PATH", func(protocol.Params) (any, error) {
		return h.ProjectExportPath()
	})

	reg.Register("GET_MAP_EXPORT_INFORMATION", func(protocol.Params) (any, error) {
		return h.MapExportInformation()
	})

	// Acks immediately; the peer learns the outcome from the EXPORT_FINISHED
	// push once the maps are on disk
	reg.Register("EXPORT_DOCUMENT_MAPS", func(p protocol.Params) (any, error) {
		destination, ok := p.String("destination")
		if !ok {
			return nil, fmt.Errorf("missing parameter: destination")
		}
		go func() {
			infos, err := h.ExportDocumentMaps(destination)
			if err != nil {
				slog.Error("Map export failed", "destination", destination, "error", err)
				infos = map[string]string{}
			}
			if opts.Notify != nil {
				opts.Notify("EXPORT_FINISHED", protocol.Params{"map_infos": infos})
			}
		}()
		return true, nil
	})

	reg.Register("EXTRACT_THUMBNAIL", func(p protocol.Params) (any, error) {
		path, ok := p.String("path")
		if !ok {
			return nil, fmt.Errorf("missing parameter: path")
		}
		if err := h.ExtractThumbnail(path); err != nil {
			return nil, err
		}
		return path, nil
	})

	reg.Register("EXECUTE_STATEMENT", func(p protocol.Params) (any, error) {
		statement, ok := p.String("statement")
		if !ok {
			return nil, fmt.Errorf("missing parameter: statement")
		}
		return h.ExecuteStatement(statement)
	})

	reg.Register("TOGGLE_DEBUG_LOGGING", func(p protocol.Params) (any, error) {
		enabled, ok := p.Bool("enabled")
		if !ok {
			return nil, fmt.Errorf("missing parameter: enabled")
		}
		if opts.SetDebug == nil {
			return false, nil
		}
		return opts.SetDebug(enabled), nil
	})

	registerLogForwarding(reg)
}

// registerLogForwarding surfaces the peer's log traffic in the host log so one
// terminal shows both sides of the conversation.
func registerLogForwarding(reg *bridge.Registry) {
	forward := func(level slog.Level) bridge.Handler {
		return func(p protocol.Params) (any, error) {
			message, _ := p.String("message")
			slog.Log(context.Background(), level, "peer: "+message)
			return true, nil
		}
	}

	reg.Register("LOG_DEBUG", forward(slog.LevelDebug))
	reg.Register("LOG_INFO", forward(slog.LevelInfo))
	reg.Register("LOG_WARNING", forward(slog.LevelWarn))
	reg.Register("LOG_ERROR", forward(slog.LevelError))
	reg.Register("LOG_EXCEPTION", forward(slog.LevelError))
}
