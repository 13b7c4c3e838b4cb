package commands

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/windmill-io/windmill/internal/catalog"
	"github.com/windmill-io/windmill/internal/cli/config"
	"github.com/windmill-io/windmill/internal/handler"
	"github.com/windmill-io/windmill/internal/index"
	"github.com/windmill-io/windmill/internal/logging"
	"github.com/windmill-io/windmill/internal/metadata"
)

// options holds the persistent flags.
type options struct {
	configPath string
	logLevel   string
	noColor    bool

	// catalog overrides the built-in operator catalog.
	catalog func() (index.Catalog, error)
}

// app is the configured environment a command runs in.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	catalog func() (index.Catalog, error)
}

func (o *options) load() (*app, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, catalog: o.catalog}
	if a.catalog == nil {
		a.catalog = defaultCatalog
	}
	return a, nil
}

func defaultCatalog() (index.Catalog, error) {
	cat, err := catalog.Default()
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// builder creates descriptor handlers honoring the inference and merge
// settings.
func (a *app) builder() (*handler.Builder, error) {
	extractor := metadata.NewExtractor(metadata.WithTypeInference(a.cfg.Inference.FromDefaults))

	var mergeOpts []metadata.MergerOption
	if a.cfg.Merge.Root != "" {
		mergeOpts = append(mergeOpts, metadata.WithRoot(a.cfg.Merge.Root))
	}
	return handler.NewBuilder(handler.Options{
		Merger: metadata.NewMerger(extractor, mergeOpts...),
	})
}

// index builds the operator index over the catalog.
func (a *app) index() (*index.Index, error) {
	cat, err := a.catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load operator catalog: %w", err)
	}
	b, err := a.builder()
	if err != nil {
		return nil, err
	}
	return index.New(cat, index.WithBuilder(b), index.WithLogger(a.logger))
}

// operators marshals the catalog. Broken operators fail the call unless
// allowPartial is set, in which case they are logged and the healthy entries
// are returned.
func (a *app) operators(allowPartial bool) ([]map[string]any, error) {
	idx, err := a.index()
	if err != nil {
		return nil, err
	}
	list, err := idx.MarshallOperatorList()
	if err != nil {
		var ie *index.IntrospectionError
		if !errors.As(err, &ie) {
			return nil, err
		}
		if !allowPartial {
			return nil, fmt.Errorf("%w (rerun with --allow-partial to keep the %d healthy operators)", err, len(list))
		}
		a.logger.Warn("some operators were skipped", zap.Int("operators", len(list)), zap.Error(err))
	}
	return list, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}
