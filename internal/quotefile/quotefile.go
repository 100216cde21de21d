// Package quotefile reads and writes the canonical per-language quote files.
package quotefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// Quote is one published entry in a canonical file.
type Quote struct {
	Text        string `json:"text"`
	BritishText string `json:"britishText,omitempty"`
	ApprovedBy  string `json:"approvedBy,omitempty"`
	Source      string `json:"source"`
	Length      int    `json:"length"`
	ID          int    `json:"id"`
}

// File is the canonical quote file for one language. Groups are the length
// buckets downstream consumers use; they are preserved verbatim except when
// a brand new file is initialized.
type File struct {
	Language string  `json:"language"`
	Groups   [][]int `json:"groups"`
	Quotes   []Quote `json:"quotes"`
}

var defaultGroups = [][]int{{0, 100}, {101, 300}, {301, 600}, {601, 9999}}

// Repository owns the quote files inside one version-controlled working copy.
type Repository struct {
	root   string
	subdir string
}

func New(root, subdir string) *Repository {
	return &Repository{root: root, subdir: subdir}
}

// RelPath returns the slash-separated path of a language file relative to the
// working copy root, the form the version control layer stages by.
func (r *Repository) RelPath(language string) string {
	return path.Join(r.subdir, language+".json")
}

func (r *Repository) filePath(language string) string {
	return filepath.Join(r.root, filepath.FromSlash(r.subdir), language+".json")
}

// Load reads the canonical file for a language. A language without a file
// surfaces as an error satisfying errors.Is(err, os.ErrNotExist).
func (r *Repository) Load(language string) (*File, error) {
	payload, err := os.ReadFile(r.filePath(language))
	if err != nil {
		return nil, fmt.Errorf("read quote file for %s: %w", language, err)
	}
	var file File
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("decode quote file for %s: %w", language, err)
	}
	return &file, nil
}

// Save serializes the whole structure back to its on-disk location.
func (r *Repository) Save(file *File) error {
	payload, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quote file for %s: %w", file.Language, err)
	}
	target := r.filePath(file.Language)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create quotes dir: %w", err)
	}
	if err := os.WriteFile(target, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write quote file for %s: %w", file.Language, err)
	}
	return nil
}

// NewFile initializes a canonical file for a language that has none yet.
func NewFile(language string) *File {
	groups := make([][]int, 0, len(defaultGroups))
	for _, bucket := range defaultGroups {
		groups = append(groups, []int{bucket[0], bucket[1]})
	}
	return &File{Language: language, Groups: groups, Quotes: []Quote{}}
}

// NextID allocates the next quote id for an existing file. A file holding no
// quotes has no maximum id to advance, which is an internal fault rather than
// a normal allocation path.
func NextID(file *File) (int, error) {
	if len(file.Quotes) == 0 {
		return 0, fmt.Errorf("quote file for %s holds no quotes to derive an id from", file.Language)
	}
	max := file.Quotes[0].ID
	for _, quote := range file.Quotes[1:] {
		if quote.ID > max {
			max = quote.ID
		}
	}
	return max + 1, nil
}

// Append adds a quote after everything already published, keeping prior order.
func (f *File) Append(quote Quote) {
	f.Quotes = append(f.Quotes, quote)
}
