package memory_test

import (
	"testing"

	"github.com/opst/karfab/pkg/cache/index"
	"github.com/opst/karfab/pkg/cache/index/indextest"
	"github.com/opst/karfab/pkg/cache/index/memory"
)

func TestMemoryIndex(t *testing.T) {
	indextest.Run(t, func(*testing.T) index.Interface { return memory.New() })
}
