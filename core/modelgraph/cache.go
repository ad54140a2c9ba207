package modelgraph

import (
	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"quote-engine/core/determinism"
	"quote-engine/internal/logging"

	"go.uber.org/zap"
)

// Loader parses and compiles model documents, caching compiled runtimes by
// the content hash of their serialized form. Concurrent loads of the same
// model are collapsed to a single parse+compile (load-or-wait, never a lock
// held across inference).
type Loader struct {
	cache *ristretto.Cache[string, *GraphRuntime]
	group singleflight.Group
}

// NewLoader creates a loader caching up to maxModels compiled graphs
func NewLoader(maxModels int64) (*Loader, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *GraphRuntime]{
		NumCounters: maxModels * 10,
		MaxCost:     maxModels,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Loader{cache: cache}, nil
}

// Load returns a compiled runtime for the serialized model document
func (l *Loader) Load(data []byte) (Runtime, error) {
	key := determinism.ComputeHash(data).Hex()

	if rt, ok := l.cache.Get(key); ok {
		return rt, nil
	}

	v, err, shared := l.group.Do(key, func() (interface{}, error) {
		if rt, ok := l.cache.Get(key); ok {
			return rt, nil
		}
		doc, err := Parse(data)
		if err != nil {
			return nil, err
		}
		rt, err := Compile(doc)
		if err != nil {
			return nil, err
		}
		l.cache.Set(key, rt, 1)
		logging.Debug("compiled model graph",
			zap.String("hash", key[:16]),
			zap.String("graph", rt.GraphName()))
		return rt, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.Debug("model graph load coalesced", zap.String("hash", key[:16]))
	}
	return v.(*GraphRuntime), nil
}

// Close releases the underlying cache
func (l *Loader) Close() {
	l.cache.Close()
}
