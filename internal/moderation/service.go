// Package moderation runs the pipeline from community submission to a
// published entry in a version-controlled canonical quote file.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"quotedesk/api/internal/config"
	"quotedesk/api/internal/gitrepo"
	"quotedesk/api/internal/quotefile"
	"quotedesk/api/internal/similarity"
	"quotedesk/api/internal/staging"
	"quotedesk/api/internal/util"
)

var languagePattern = regexp.MustCompile(`^\w+$`)

type stagingStore interface {
	CountPending(ctx context.Context, language string) (int, error)
	Insert(ctx context.Context, quote staging.PendingQuote) error
	Get(ctx context.Context, id string) (staging.PendingQuote, error)
	ListOldest(ctx context.Context, language string, limit int) ([]staging.PendingQuote, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type quoteFiles interface {
	Load(language string) (*quotefile.File, error)
	Save(file *quotefile.File) error
	RelPath(language string) string
}

type Service struct {
	cfg     config.Config
	staging stagingStore
	files   quoteFiles
	git     gitrepo.Gateway
	log     zerolog.Logger

	langMu    sync.Mutex
	langLocks map[string]*sync.Mutex
}

func New(cfg config.Config, store staging.Store, files *quotefile.Repository, gateway gitrepo.Gateway, log zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		staging:   store,
		files:     files,
		git:       gateway,
		log:       log,
		langLocks: make(map[string]*sync.Mutex),
	}
}

type SubmitStatus string

const (
	StatusStaged            SubmitStatus = "staged"
	StatusQueueFull         SubmitStatus = "queue_full"
	StatusLanguageMissing   SubmitStatus = "language_missing"
	StatusPossibleDuplicate SubmitStatus = "possible_duplicate"
)

type SubmitInput struct {
	Text        string
	Source      string
	Language    string
	SubmittedBy string
}

// SubmitResult reports the submission outcome. Pending is set when the quote
// was staged, Match when a published near-duplicate blocked staging.
type SubmitResult struct {
	Status  SubmitStatus
	Pending *staging.PendingQuote
	Match   *similarity.Match
}

// Submit stages a community quote for a language that already has a canonical
// file. Submissions never create language files and never touch git; a near
// duplicate of published text is reported instead of staged.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	language := strings.ToLower(input.Language)
	if !languagePattern.MatchString(language) {
		return SubmitResult{}, domainError(http.StatusUnprocessableEntity, "INVALID_LANGUAGE",
			fmt.Sprintf("language %q must be a single word", input.Language), nil)
	}

	pending, err := s.staging.CountPending(ctx, language)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("count pending for %s: %w", language, err)
	}
	if pending >= s.cfg.MaxPending {
		return SubmitResult{Status: StatusQueueFull}, nil
	}

	file, err := s.files.Load(language)
	if errors.Is(err, os.ErrNotExist) {
		return SubmitResult{Status: StatusLanguageMissing}, nil
	}
	if err != nil {
		return SubmitResult{}, err
	}

	if match, ok := similarity.BestMatch(input.Text, candidates(file)); ok && match.Score >= s.cfg.SubmitThreshold {
		return SubmitResult{Status: StatusPossibleDuplicate, Match: &match}, nil
	}

	quote := staging.PendingQuote{
		ID:          util.NewID("pq"),
		Text:        input.Text,
		Source:      input.Source,
		Language:    language,
		SubmittedBy: input.SubmittedBy,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.staging.Insert(ctx, quote); err != nil {
		return SubmitResult{}, fmt.Errorf("stage quote: %w", err)
	}

	s.log.Info().Str("id", quote.ID).Str("language", language).Msg("quote staged")
	return SubmitResult{Status: StatusStaged, Pending: &quote}, nil
}

// List returns the oldest unresolved submissions for one language, or across
// all languages for the wildcard scope.
func (s *Service) List(ctx context.Context, language string) ([]staging.PendingQuote, error) {
	language = strings.ToLower(language)
	if language != staging.AllLanguages && !languagePattern.MatchString(language) {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_LANGUAGE",
			fmt.Sprintf("language %q must be a single word", language), nil)
	}

	items, err := s.staging.ListOldest(ctx, language, s.cfg.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return items, nil
}

type ApproveInput struct {
	PendingID    string
	ApprovedBy   string
	EditedText   string
	EditedSource string
}

// ApproveResult carries the published quote and the operator-facing message
// naming the file it landed in.
type ApproveResult struct {
	Quote   quotefile.Quote
	Message string
}

// Approve publishes a staged quote: pull, duplicate check, append, persist,
// commit, push, then remove the entry from staging. Any failure before the
// push leaves the staging entry intact so the approval can be retried; a
// staging cleanup failure after a successful push is reported as
// PUBLISH_INCOMPLETE because the quote is already public at that point.
func (s *Service) Approve(ctx context.Context, input ApproveInput) (ApproveResult, error) {
	pending, err := s.staging.Get(ctx, input.PendingID)
	if err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			return ApproveResult{}, domainError(http.StatusNotFound, "NOT_FOUND", "Pending quote not found", nil)
		}
		return ApproveResult{}, fmt.Errorf("load pending quote: %w", err)
	}

	language := strings.ToLower(pending.Language)
	if !languagePattern.MatchString(language) {
		return ApproveResult{}, domainError(http.StatusUnprocessableEntity, "INVALID_LANGUAGE",
			fmt.Sprintf("staged language %q must be a single word", pending.Language), nil)
	}

	if err := s.git.Available(); err != nil {
		return ApproveResult{}, domainError(http.StatusServiceUnavailable, "GATEWAY_UNAVAILABLE",
			"Version control gateway unavailable", err.Error())
	}

	text := pending.Text
	if input.EditedText != "" {
		text = input.EditedText
	}
	source := pending.Source
	if input.EditedSource != "" {
		source = input.EditedSource
	}

	lock := s.languageLock(language)
	lock.Lock()
	defer lock.Unlock()

	if err := s.git.Pull(ctx); err != nil {
		return ApproveResult{}, fmt.Errorf("pull canonical state: %w", err)
	}

	// A language with no canonical file yet gets one here; submissions for it
	// were rejected, but a moderator approving an already staged entry is the
	// one place a new language bucket may appear.
	file, err := s.files.Load(language)
	created := false
	if errors.Is(err, os.ErrNotExist) {
		file = quotefile.NewFile(language)
		created = true
	} else if err != nil {
		return ApproveResult{}, err
	}

	if match, ok := similarity.BestMatch(text, candidates(file)); ok && match.Score >= s.cfg.ApproveThreshold {
		return ApproveResult{}, domainError(http.StatusConflict, "DUPLICATE_QUOTE",
			"An equivalent quote is already published", map[string]any{
				"matchId":    match.ID,
				"matchText":  match.Text,
				"similarity": match.Score,
			})
	}

	id := 1
	if !created {
		id, err = quotefile.NextID(file)
		if err != nil {
			return ApproveResult{}, fmt.Errorf("allocate quote id: %w", err)
		}
	}

	quote := quotefile.Quote{
		Text:       text,
		ApprovedBy: input.ApprovedBy,
		Source:     source,
		Length:     utf8.RuneCountInString(text),
		ID:         id,
	}
	file.Append(quote)

	if err := s.files.Save(file); err != nil {
		return ApproveResult{}, err
	}

	relPath := s.files.RelPath(language)
	if err := s.git.Add(relPath); err != nil {
		return ApproveResult{}, err
	}
	commit, err := s.git.Commit(fmt.Sprintf("Added quote to %s.json (id %d)", language, id))
	if err != nil {
		return ApproveResult{}, err
	}
	if err := s.git.Push(ctx); err != nil {
		return ApproveResult{}, fmt.Errorf("push %s: %w", relPath, err)
	}

	// The quote is public once the push lands. An entry some concurrent
	// action already removed is fine; any other cleanup failure means the
	// staged copy survived publication and an operator has to reconcile.
	if err := s.staging.Delete(ctx, pending.ID); err != nil && !errors.Is(err, staging.ErrNotFound) {
		s.log.Error().Err(err).
			Str("id", pending.ID).
			Str("language", language).
			Str("commit", commit).
			Msg("quote published but staging entry not removed")
		return ApproveResult{}, domainError(http.StatusInternalServerError, "PUBLISH_INCOMPLETE",
			"Quote published but the staging entry could not be removed", map[string]any{
				"quote":  quote,
				"commit": commit,
			})
	}

	s.log.Info().Int("quoteId", id).Str("language", language).Str("commit", commit).Msg("quote published")
	return ApproveResult{
		Quote:   quote,
		Message: fmt.Sprintf("Quote approved and published to %s.json", language),
	}, nil
}

// Refuse drops a staged quote. Canonical files are never touched.
func (s *Service) Refuse(ctx context.Context, pendingID string) error {
	if err := s.staging.Delete(ctx, pendingID); err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Pending quote not found", nil)
		}
		return fmt.Errorf("refuse pending quote: %w", err)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.staging.Ping(ctx)
}

func (s *Service) GatewayReady() error {
	return s.git.Available()
}

// languageLock serializes approvals per language so concurrent approvals
// cannot allocate the same id or interleave pulls and pushes on one file.
func (s *Service) languageLock(language string) *sync.Mutex {
	s.langMu.Lock()
	defer s.langMu.Unlock()

	lock, ok := s.langLocks[language]
	if !ok {
		lock = &sync.Mutex{}
		s.langLocks[language] = lock
	}
	return lock
}

func candidates(file *quotefile.File) []similarity.Candidate {
	out := make([]similarity.Candidate, 0, len(file.Quotes))
	for _, quote := range file.Quotes {
		out = append(out, similarity.Candidate{ID: quote.ID, Text: quote.Text})
	}
	return out
}
