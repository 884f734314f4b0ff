package jobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Document — страница вики в поисковом индексе.
type Document struct {
	Path     string   `json:"path"`
	Title    string   `json:"title"`
	Headings []string `json:"headings,omitempty"`
	Words    int      `json:"words"`
	Terms    []string `json:"terms"`
}

// Index — поисковый индекс вики.
type Index struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Documents   []Document `json:"documents"`
}

// Indexer строит поисковый индекс по markdown-файлам.
type Indexer struct {
	contentDir string
	indexPath  string
	now        func() time.Time
	logger     *slog.Logger
}

// IndexerConfig — конфигурация Indexer.
type IndexerConfig struct {
	ContentDir string // каталог с markdown
	IndexPath  string // файл индекса
	Logger     *slog.Logger
}

// NewIndexer создаёт Indexer.
func NewIndexer(cfg IndexerConfig) *Indexer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Indexer{
		contentDir: cfg.ContentDir,
		indexPath:  cfg.IndexPath,
		now:        time.Now,
		logger:     cfg.Logger.With("job", SearchReindex),
	}
}

// Execute строит индекс и атомарно заменяет файл индекса.
func (x *Indexer) Execute(ctx context.Context) error {
	if x.indexPath == "" {
		return fmt.Errorf("search index path is not configured")
	}

	idx, err := x.Build(ctx)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(x.indexPath, idx); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	x.logger.Info("search index rebuilt", "documents", len(idx.Documents), "path", x.indexPath)
	return nil
}

// Validate строит индекс в памяти, не записывая его.
func (x *Indexer) Validate(ctx context.Context) error {
	idx, err := x.Build(ctx)
	if err != nil {
		return err
	}
	x.logger.Info("search reindex dry run", "documents", len(idx.Documents), "path", x.indexPath)
	return nil
}

// Build обходит каталог и строит индекс. Скрытые каталоги (.git) пропускаются.
func (x *Indexer) Build(ctx context.Context) (*Index, error) {
	if x.contentDir == "" {
		return nil, fmt.Errorf("content directory is not configured")
	}

	idx := &Index{GeneratedAt: x.now().UTC(), Documents: make([]Document, 0)}

	err := filepath.WalkDir(x.contentDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != x.contentDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(x.contentDir, path)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		idx.Documents = append(idx.Documents, parseDocument(filepath.ToSlash(rel), data))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", x.contentDir, err)
	}

	sort.Slice(idx.Documents, func(i, j int) bool {
		return idx.Documents[i].Path < idx.Documents[j].Path
	})
	return idx, nil
}

func isMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// parseDocument извлекает заголовок, подзаголовки и термы.
// Заголовок — первый "# " заголовок, иначе имя файла.
func parseDocument(path string, data []byte) Document {
	doc := Document{Path: path}
	terms := make(map[string]struct{})

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	inCode := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if strings.HasPrefix(line, "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}

		if strings.HasPrefix(line, "#") {
			heading := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if heading != "" {
				if doc.Title == "" && strings.HasPrefix(line, "# ") {
					doc.Title = heading
				} else {
					doc.Headings = append(doc.Headings, heading)
				}
			}
			line = heading
		}

		for _, w := range strings.FieldsFunc(line, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			doc.Words++
			if len([]rune(w)) > 2 {
				terms[strings.ToLower(w)] = struct{}{}
			}
		}
	}

	if doc.Title == "" {
		base := filepath.Base(path)
		doc.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	doc.Terms = make([]string, 0, len(terms))
	for t := range terms {
		doc.Terms = append(doc.Terms, t)
	}
	sort.Strings(doc.Terms)
	return doc
}

// writeFileAtomic пишет JSON во временный файл рядом с path и переименовывает его.
func writeFileAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
