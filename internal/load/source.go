package load

import (
	"fmt"

	"csvschema/internal/config"
	"csvschema/internal/datasource"
	"csvschema/internal/datasource/file"
	"csvschema/internal/datasource/httpds"
)

// SourceFor builds the datasource described by cfg. client may be nil.
func SourceFor(cfg config.Source, client *httpds.Client) (datasource.Source, error) {
	switch cfg.Kind {
	case "file":
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("source.file.path is empty")
		}
		kind, err := file.NormalizeCompression(cfg.File.Compression)
		if err != nil {
			return nil, err
		}
		return &file.Local{Path: cfg.File.Path, Compression: kind}, nil
	case "http":
		if cfg.HTTP == nil || cfg.HTTP.URL == "" {
			return nil, fmt.Errorf("source.http.url is empty")
		}
		if client == nil {
			client = httpds.NewClient(httpds.Config{InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify})
		}
		return httpds.Source{Client: client, URL: cfg.HTTP.URL}, nil
	default:
		return nil, fmt.Errorf("unsupported source.kind=%q", cfg.Kind)
	}
}
