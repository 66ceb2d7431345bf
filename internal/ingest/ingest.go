// Package ingest loads source documents, splits them into overlapping
// chunks, embeds each chunk, and persists the result to the chunk store.
// Ingestion is a one-shot batch operation; queries never trigger it.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docquery/docquery/internal/embed"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/store"
)

// Ingestor drives the load → split → embed → upsert sequence.
type Ingestor struct {
	store    store.ChunkStore
	embedder embed.Embedder
	splitter *Splitter
	log      *slog.Logger
}

func New(st store.ChunkStore, em embed.Embedder, sp *Splitter, log *slog.Logger) *Ingestor {
	if sp == nil {
		sp = NewSplitter(DefaultChunkSize, DefaultOverlap)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{store: st, embedder: em, splitter: sp, log: log}
}

// Document is one loaded unit of source text before splitting: a whole
// .md/.txt file, or a single page of a PDF. Page is 0 for unpaginated
// sources.
type Document struct {
	SourcePath string
	Page       int
	Text       string
}

// LoadDir reads the top-level .md, .txt, and .pdf files under dir. PDFs
// yield one Document per page so provenance survives chunking.
// Subdirectories are not descended into, and a readme in the data folder is
// skipped since it is usually instructions rather than content.
func LoadDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir %s: %w", dir, err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.EqualFold(name, "readme.md") {
			continue
		}
		path := filepath.Join(dir, name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".md", ".txt":
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			docs = append(docs, Document{SourcePath: path, Text: string(data)})
		case ".pdf":
			pages, err := loadPDF(path)
			if err != nil {
				return nil, err
			}
			docs = append(docs, pages...)
		}
	}
	return docs, nil
}

// Run ingests every document under dir. It returns the number of chunks
// written. An empty or missing corpus is reported, not treated as an error
// beyond the underlying read failure.
func (in *Ingestor) Run(ctx context.Context, dir string) (int, error) {
	ctx, span := observability.StartIngestSpan(ctx, dir)
	defer span.End()

	docs, err := LoadDir(dir)
	if err != nil {
		observability.RecordError(span, err)
		return 0, err
	}
	if len(docs) == 0 {
		in.log.Warn("no documents found", "dir", dir)
		return 0, nil
	}

	chunks, err := in.chunkDocuments(ctx, docs)
	if err != nil {
		observability.RecordError(span, err)
		return 0, err
	}

	if err := in.store.Upsert(ctx, chunks); err != nil {
		err = fmt.Errorf("upsert chunks: %w", err)
		observability.RecordError(span, err)
		return 0, err
	}
	observability.RecordIngestResult(span, len(docs), len(chunks))
	observability.Metrics().IngestedChunksTotal.Add(float64(len(chunks)))
	in.log.Info("ingest complete", "documents", len(docs), "chunks", len(chunks))
	return len(chunks), nil
}

// chunkDocuments splits and embeds every document, carrying page provenance
// through to the stored chunks.
func (in *Ingestor) chunkDocuments(ctx context.Context, docs []Document) ([]store.Chunk, error) {
	var chunks []store.Chunk
	for _, doc := range docs {
		pieces := in.splitter.Split(doc.Text)
		for i, text := range pieces {
			vec, err := in.embedder.Embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("embed chunk %d of %s: %w", i, doc.SourcePath, err)
			}
			chunks = append(chunks, store.Chunk{
				ID:         chunkID(doc, i),
				Text:       text,
				SourcePath: doc.SourcePath,
				Page:       doc.Page,
				Embedding:  vec,
			})
		}
		in.log.Info("split document", "source", doc.SourcePath, "page", doc.Page, "chunks", len(pieces))
	}
	return chunks, nil
}

// chunkID derives a stable chunk id. Paginated sources keep the page in the
// id so equal chunk offsets on different pages never collide, and re-ingest
// upserts in place either way.
func chunkID(doc Document, i int) string {
	if doc.Page > 0 {
		return doc.SourcePath + "#page=" + strconv.Itoa(doc.Page) + ":" + strconv.Itoa(i)
	}
	return doc.SourcePath + ":" + strconv.Itoa(i)
}
