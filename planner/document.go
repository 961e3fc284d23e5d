package planner

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/embedsync/core"
)

// Version is written to every plan document.
const Version = "1.0"

// DefaultDocumentType labels entries without an explicit type.
const DefaultDocumentType = "CRAN"

// Entry is one unit of planned work.
type Entry struct {
	QID          string `json:"qid"`
	Component    string `json:"component"`
	DocumentType string `json:"document_type,omitempty"`
}

// Document is the on-disk plan format.
type Document struct {
	PlannerVersion  string    `json:"planner_version"`
	CreatedAt       time.Time `json:"created_at"`
	StateDBChecksum string    `json:"state_db_checksum"`
	PackageID       string    `json:"package_id"`
	Entries         []Entry   `json:"entries"`
}

// Refs returns the entries as artifact references, in document order.
func (d Document) Refs() []core.ArtifactRef {
	refs := make([]core.ArtifactRef, len(d.Entries))
	for i, e := range d.Entries {
		refs[i] = core.ArtifactRef{EntityID: e.QID, Key: e.Component}
	}
	return refs
}

// Encode writes d as indented JSON.
func Encode(w io.Writer, d Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode plan %s: %w", d.PackageID, err)
	}
	return nil
}

// Parse reads a plan document. Entries missing qid or component are
// dropped with a warning and counted in skipped.
func Parse(r io.Reader, logger *slog.Logger) (doc Document, skipped int, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var raw Document
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Document{}, 0, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	doc = raw
	doc.Entries = make([]Entry, 0, len(raw.Entries))
	for i, e := range raw.Entries {
		e.QID = strings.TrimSpace(e.QID)
		e.Component = strings.TrimSpace(e.Component)
		if err := core.ValidateArtifactRef(core.ArtifactRef{EntityID: e.QID, Key: e.Component}); err != nil {
			logger.Warn("skipping incomplete plan entry",
				"package_id", raw.PackageID, "index", i, "qid", e.QID, "component", e.Component, "err", err)
			skipped++
			continue
		}
		doc.Entries = append(doc.Entries, e)
	}
	return doc, skipped, nil
}

// FileName normalizes a plan name to its file name, adding ".json" when
// missing.
func FileName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(name, ".json") {
		return name
	}
	return name + ".json"
}

// PackageID returns the identifier of the n-th package (1-based).
func PackageID(workerPrefix string, n int) string {
	return fmt.Sprintf("plan_%s%02d", workerPrefix, n)
}
