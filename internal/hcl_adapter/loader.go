package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/ucdpipe/internal/config"
	"github.com/vk/ucdpipe/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file under paths and merges their blocks into one
// model. A pipeline or fallback block may appear at most once across all
// files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	model := &config.Model{}
	parser := hclparse.NewParser()

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, p := range root.Pipelines {
			if model.Pipeline != nil {
				return nil, fmt.Errorf("in %s: pipeline '%s' declared, but pipeline '%s' already exists", file, p.ID, model.Pipeline.ID)
			}
			model.Pipeline = translatePipeline(p)
		}
		for _, s := range root.Sources {
			src, err := translateSource(ctx, s)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Sources = append(model.Sources, src)
		}
		for _, r := range root.Routes {
			route, err := translateRoute(ctx, r)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Routes = append(model.Routes, route)
		}
		for _, f := range root.Fallbacks {
			if model.Fallback != nil {
				return nil, fmt.Errorf("in %s: only one fallback block is allowed", file)
			}
			fb, err := translateFallback(ctx, f)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Fallback = fb
		}
	}

	logger.Debug("HCL loading complete.", "sources", len(model.Sources), "routes", len(model.Routes), "fallback", model.Fallback != nil)
	return model, nil
}

// findAllHCLFiles walks all given paths and returns a sorted, de-duplicated
// list of the .hcl files found. Sorting keeps source declaration order
// stable when a pipeline is split over several files.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			add(path)
			continue
		}

		var dirFiles []string
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				dirFiles = append(dirFiles, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(dirFiles)
		for _, p := range dirFiles {
			add(p)
		}
	}
	return allFiles, nil
}
