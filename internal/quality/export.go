package quality

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// exportEntry is one session's slot in the export document: either a full
// report or an error marker, never both.
type exportEntry struct {
	*Report
	Error string `json:"error,omitempty"`
}

// exportDocument is the on-disk shape written by [Processor.ExportResults].
type exportDocument struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Sessions    map[string]exportEntry `json:"sessions"`
}

// ExportResults writes a JSON document containing the report of every live
// session to path. Sessions without transcript data are included with an
// error marker instead of failing the export; only I/O and encoding problems
// produce an error.
func (p *Processor) ExportResults(path string) error {
	ids := p.SessionIDs()

	doc := exportDocument{
		GeneratedAt: p.now(),
		Sessions:    make(map[string]exportEntry, len(ids)),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			report, err := p.SessionReport(id)

			entry := exportEntry{Report: report}
			if errors.Is(err, ErrNoData) {
				entry = exportEntry{Error: err.Error()}
			} else if err != nil {
				return err
			}

			mu.Lock()
			doc.Sessions[id] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("quality: export: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("quality: export: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("quality: export: write %s: %w", path, err)
	}

	p.log.Info("exported quality results", "path", path, "sessions", len(ids))
	return nil
}
