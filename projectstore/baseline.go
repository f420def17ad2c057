package projectstore

import (
	"github.com/snow-wind-001/CodeRecoder/changedetect"
)

// baselineAdapter adapts indexDocument.FileBaselines to changedetect.Baseline.
// It is only ever used while the store's save_data lock is held, so it needs
// no synchronization of its own.
type baselineAdapter struct {
	m map[string]FileBaseline
}

func (b *baselineAdapter) Get(relativePath string) (changedetect.BaselineEntry, bool) {
	entry, ok := b.m[relativePath]
	if !ok {
		return changedetect.BaselineEntry{}, false
	}

	return toDetectEntry(entry), true
}

func (b *baselineAdapter) Set(entry changedetect.BaselineEntry) {
	b.m[entry.RelativePath] = fromDetectEntry(entry)
}

func (b *baselineAdapter) Len() int {
	return len(b.m)
}

func (b *baselineAdapter) ForEach(fn func(changedetect.BaselineEntry)) {
	for _, entry := range b.m {
		fn(toDetectEntry(entry))
	}
}

func toDetectEntry(e FileBaseline) changedetect.BaselineEntry {
	return changedetect.BaselineEntry{
		RelativePath: e.RelativePath,
		Size:         e.Size,
		MtimeMs:      e.MtimeMs,
		ContentHash:  e.ContentHash,
		LineCount:    e.LineCount,
	}
}

func fromDetectEntry(e changedetect.BaselineEntry) FileBaseline {
	return FileBaseline{
		RelativePath: e.RelativePath,
		Size:         e.Size,
		MtimeMs:      e.MtimeMs,
		ContentHash:  e.ContentHash,
		LineCount:    e.LineCount,
	}
}
