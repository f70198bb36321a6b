// Package pipeline orchestrates one translation job end to end.
//
// A job flows through a fixed sequence of stages: extract leaves,
// build the glossary, translate in batches, validate, retry in bulk,
// fall back per item, optionally review quality, and reconstruct the
// document. The two retry loops (bulk and quality) are individually
// bounded, so the state machine always terminates. Stubborn items keep
// their source text rather than blocking the job; the summary reports
// how many did.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/packlate/packlate/chunk"
	"github.com/packlate/packlate/credential"
	"github.com/packlate/packlate/dispatch"
	"github.com/packlate/packlate/document"
	"github.com/packlate/packlate/glossary"
	"github.com/packlate/packlate/placeholder"
)

// ---------------------------------------------------------------------------
// Stages
// ---------------------------------------------------------------------------

// Stage names one state of the job state machine. Stages also label
// progress callbacks.
type Stage string

const (
	StageExtract     Stage = "extract"
	StageGlossary    Stage = "glossary"
	StageTranslate   Stage = "translate"
	StageValidate    Stage = "validate"
	StageRetry       Stage = "retry"
	StageFallback    Stage = "fallback"
	StageReview      Stage = "review"
	StageReconstruct Stage = "reconstruct"
	StageComplete    Stage = "complete"
)

// Configuration failures abort a job before any dispatch.
var (
	// ErrEmptyDocument means the input had no string leaves to inspect.
	ErrEmptyDocument = errors.New("document has no translatable content")
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options configures one translation job. Zero values fall back to
// defaults.
type Options struct {
	// TargetLanguage names the language translations are produced in
	// (default "Korean").
	TargetLanguage string
	// MaxRetries bounds bulk retry rounds (default 3).
	MaxRetries int
	// FallbackRetries bounds per-item attempts after bulk retries are
	// exhausted (default 2).
	FallbackRetries int
	// MaxTokensPerChunk is the estimated-token budget per batch
	// (default 3000).
	MaxTokensPerChunk int

	// Cache maps source text to known-good translations. Hits never
	// reach the backend.
	Cache map[string]string

	// UseGlossary enables the glossary stage.
	UseGlossary bool
	// GlossaryPath is the persisted glossary store. Loaded before the
	// job and written back after it when UseGlossary is set.
	GlossaryPath string
	// PresetGlossary seeds the glossary ahead of the persisted store.
	PresetGlossary []glossary.Term

	// EnableReview turns on the quality review stage.
	EnableReview bool
	// MaxQualityRetries bounds issue-triggered retranslation rounds
	// (default 1).
	MaxQualityRetries int

	// IsTranslated overrides the target-script heuristic used to skip
	// already-translated leaves. Defaults to document.IsKoreanText.
	IsTranslated func(string) bool

	// OnProgress is invoked at coarse checkpoints: batch completions
	// and retry round boundaries. Never called per item.
	OnProgress func(stage Stage, current, total int, message string)

	// Logger receives structured job logs.
	Logger *logrus.Logger
}

func (o *Options) effectiveLanguage() string {
	if o.TargetLanguage == "" {
		return "Korean"
	}
	return o.TargetLanguage
}

func (o *Options) effectiveMaxRetries() int {
	if o.MaxRetries <= 0 {
		return 3
	}
	return o.MaxRetries
}

func (o *Options) effectiveFallbackRetries() int {
	if o.FallbackRetries <= 0 {
		return 2
	}
	return o.FallbackRetries
}

func (o *Options) effectiveChunkTokens() int {
	if o.MaxTokensPerChunk <= 0 {
		return 3000
	}
	return o.MaxTokensPerChunk
}

func (o *Options) effectiveMaxQualityRetries() int {
	if o.MaxQualityRetries <= 0 {
		return 1
	}
	return o.MaxQualityRetries
}

func (o *Options) progress(stage Stage, current, total int, message string) {
	if o.OnProgress != nil {
		o.OnProgress(stage, current, total, message)
	}
}

func (o *Options) logger() *logrus.Logger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// ---------------------------------------------------------------------------
// Summary
// ---------------------------------------------------------------------------

// Summary is the final accounting for one job.
type Summary struct {
	JobID string

	// Leaves counts non-empty string leaves in the input.
	Leaves int
	// FromCache counts leaves resolved by the translation cache.
	FromCache int
	// WorkItems counts unique items dispatched to the backend.
	WorkItems int
	// Translated counts work items that ended with an accepted
	// translation.
	Translated int
	// Fallbacks counts items that kept their source text after every
	// retry level was exhausted.
	Fallbacks int
	// BulkRounds counts bulk retry rounds actually run.
	BulkRounds int
	// QualityIssues counts defects flagged during review.
	QualityIssues int
	// QualityRetranslated counts items replaced by the quality
	// retranslation round.
	QualityRetranslated int

	Elapsed time.Duration
}

// ---------------------------------------------------------------------------
// Translator
// ---------------------------------------------------------------------------

// Translator runs translation jobs against one dispatch engine.
type Translator struct {
	engine *dispatch.Engine
	opts   Options
}

// New wires an engine and options into a translator.
func New(engine *dispatch.Engine, opts Options) *Translator {
	return &Translator{engine: engine, opts: opts}
}

// Translate runs one job over doc and returns the translated document
// plus a summary. The output always has the same shape as the input.
// Cancellation aborts in-flight dispatches and returns the partial
// result alongside the context error. Only configuration failures
// (empty input, no usable credential) return a nil document.
func (t *Translator) Translate(ctx context.Context, doc any) (any, *Summary, error) {
	if doc == nil || countStringLeaves(doc) == 0 {
		return nil, nil, ErrEmptyDocument
	}

	j := &job{
		t:            t,
		rawDoc:       doc,
		protector:    placeholder.NewProtector(),
		translations: make(map[string]string),
		exhausted:    make(map[string]bool),
		gloss:        glossary.New(),
	}
	j.summary.JobID = uuid.NewString()
	start := time.Now()

	log := t.opts.logger().WithFields(logrus.Fields{
		"job":    j.summary.JobID,
		"target": t.opts.effectiveLanguage(),
	})
	log.Info("translation job started")

	state := StageExtract
	var jobErr error
	for state != StageComplete {
		if err := ctx.Err(); err != nil && state != StageReconstruct {
			jobErr = err
			state = StageReconstruct
			continue
		}

		var err error
		switch state {
		case StageExtract:
			state, err = j.runExtract(ctx)
		case StageGlossary:
			state = j.runGlossary(ctx)
		case StageTranslate:
			state = j.runTranslate(ctx)
		case StageValidate:
			state = j.runValidate()
		case StageRetry:
			state = j.runRetry(ctx)
		case StageFallback:
			state = j.runFallback(ctx)
		case StageReview:
			state = j.runReview(ctx)
		case StageReconstruct:
			state = j.runReconstruct()
		}
		if err != nil {
			return nil, nil, err
		}
		if j.err != nil && jobErr == nil {
			jobErr = j.err
		}
	}

	j.summary.Elapsed = time.Since(start)
	log.WithFields(logrus.Fields{
		"translated": j.summary.Translated,
		"cached":     j.summary.FromCache,
		"fallbacks":  j.summary.Fallbacks,
		"elapsed":    j.summary.Elapsed,
	}).Info("translation job finished")

	return j.output, &j.summary, jobErr
}

// ---------------------------------------------------------------------------
// Job state
// ---------------------------------------------------------------------------

// job carries all per-job state. It is owned by one Translate call and
// never shared across jobs; the mutex serializes worker writes within
// a stage.
type job struct {
	t         *Translator
	protector *placeholder.Protector

	rawDoc any // input document as the caller gave it
	doc    any // id-substituted document
	items  []document.Item
	byID   map[string]document.Item

	mu           sync.Mutex
	translations map[string]string
	exhausted    map[string]bool

	gloss *glossary.Glossary

	retryCount        int
	qualityRetryCount int
	unresolved        []unresolvedItem

	err     error // first non-fatal dispatch breakdown, reported with partial output
	output  any
	summary Summary
}

func (j *job) opts() *Options { return &j.t.opts }

// set stores a translation for id under the job lock.
func (j *job) set(id, text string) {
	j.mu.Lock()
	j.translations[id] = text
	j.mu.Unlock()
}

// merge folds one batch response into the translation map. Records
// whose id does not belong to the batch are dropped; retry results
// must additionally pass the acceptance check so a good translation is
// never replaced by a worse one.
func (j *job) merge(batch []document.Item, records []dispatch.TranslationRecord, isRetry bool) {
	inBatch := make(map[string]document.Item, len(batch))
	for _, it := range batch {
		inBatch[it.ID] = it
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range records {
		item, ok := inBatch[r.ID]
		if !ok {
			continue
		}
		if isRetry && !acceptable(item, r.Text) {
			continue
		}
		j.translations[r.ID] = r.Text
	}
}

// ---------------------------------------------------------------------------
// Stage: extract
// ---------------------------------------------------------------------------

func (j *job) runExtract(ctx context.Context) (Stage, error) {
	opts := j.opts()

	processed, items, stats := document.Extract(j.rawDoc, document.ExtractOptions{
		Cache:        opts.Cache,
		IsTranslated: opts.IsTranslated,
		Protect:      j.protector.Protect,
	})

	j.doc = processed
	j.items = items
	j.byID = make(map[string]document.Item, len(items))
	for _, it := range items {
		j.byID[it.ID] = it
	}

	j.summary.Leaves = stats.Leaves
	j.summary.FromCache = stats.Cached
	j.summary.WorkItems = stats.WorkItems

	opts.logger().WithFields(logrus.Fields{
		"leaves":     stats.Leaves,
		"cached":     stats.Cached,
		"work_items": stats.WorkItems,
		"tokens":     j.protector.Count(),
	}).Info("extraction complete")
	opts.progress(StageExtract, stats.WorkItems, stats.Leaves, "extraction complete")

	if len(items) == 0 {
		return StageReconstruct, nil
	}
	if j.t.engine.ActiveCredentials() == 0 {
		return StageComplete, credential.ErrNoCredentials
	}
	if opts.UseGlossary {
		return StageGlossary, nil
	}
	return StageTranslate, nil
}

// ---------------------------------------------------------------------------
// Stage: glossary
// ---------------------------------------------------------------------------

func (j *job) runGlossary(ctx context.Context) Stage {
	opts := j.opts()

	// Preset first, then the persisted store, then mined pairs. Later
	// sources only add meanings.
	j.gloss.Merge(opts.PresetGlossary)
	if opts.GlossaryPath != "" {
		stored, err := glossary.Load(opts.GlossaryPath)
		if err != nil {
			opts.logger().WithError(err).Warn("glossary store unreadable, continuing without it")
		} else {
			j.gloss.Merge(stored)
		}
	}
	isTranslated := opts.IsTranslated
	if isTranslated == nil {
		isTranslated = document.IsKoreanText
	}
	j.gloss.Merge(glossary.MineFromPairs(opts.Cache, isTranslated))

	// Backend term extraction over source chunks. Failed chunks are
	// logged and skipped; the glossary stays best-effort.
	batches := chunk.Split(j.items, opts.effectiveChunkTokens())
	var done int32
	err := dispatch.RunParallel(ctx, batches, j.t.engine.MaxConcurrent(), func(ctx context.Context, _ int, batch []document.Item) error {
		sys, user := termsPrompt(opts.effectiveLanguage(), batch)
		resp, err := j.t.engine.Invoke(ctx, dispatch.Request{
			System:      sys,
			User:        user,
			Temperature: 0.1,
			Schema:      dispatch.SchemaTerms,
		})
		if err != nil {
			if errors.Is(err, credential.ErrNoCredentials) {
				return err
			}
			opts.logger().WithError(err).Warn("term extraction batch failed")
			return nil
		}
		for _, r := range resp.Terms {
			j.gloss.Add(r.Term, glossary.Meaning{Translation: r.Translation, Context: r.Context})
		}
		n := atomic.AddInt32(&done, 1)
		opts.progress(StageGlossary, int(n), len(batches), "terms extracted")
		return nil
	})
	if err != nil {
		j.err = err
		return StageReconstruct
	}

	opts.logger().WithField("terms", j.gloss.Len()).Info("glossary ready")
	return StageTranslate
}

// ---------------------------------------------------------------------------
// Stage: translate / retry
// ---------------------------------------------------------------------------

func (j *job) runTranslate(ctx context.Context) Stage {
	batches := chunk.Split(j.items, j.opts().effectiveChunkTokens())
	if err := j.dispatchBatches(ctx, StageTranslate, batches, 0.3, false); err != nil {
		j.err = err
		return StageReconstruct
	}
	return StageValidate
}

func (j *job) runRetry(ctx context.Context) Stage {
	opts := j.opts()
	j.retryCount++
	j.summary.BulkRounds = j.retryCount
	dispatch.RecordRetryRound("bulk")

	items := make([]document.Item, len(j.unresolved))
	for i, u := range j.unresolved {
		items[i] = u.Item
	}

	// Each round raises the randomness parameter to coax a different
	// result out of the backend.
	temperature := minFloat(1.0, 0.1*float64(j.retryCount))

	opts.logger().WithFields(logrus.Fields{
		"round":       j.retryCount,
		"items":       len(items),
		"temperature": temperature,
		"reasons":     reasonCounts(j.unresolved),
	}).Warn("bulk retry round")
	opts.progress(StageRetry, j.retryCount, opts.effectiveMaxRetries(), "bulk retry round")

	batches := chunk.Split(items, opts.effectiveChunkTokens())
	if err := j.dispatchBatches(ctx, StageRetry, batches, temperature, true); err != nil {
		j.err = err
		return StageReconstruct
	}
	return StageValidate
}

func (j *job) dispatchBatches(ctx context.Context, stage Stage, batches [][]document.Item, temperature float64, isRetry bool) error {
	opts := j.opts()
	var done int32

	return dispatch.RunParallel(ctx, batches, j.t.engine.MaxConcurrent(), func(ctx context.Context, _ int, batch []document.Item) error {
		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = it.Original
		}
		terms := j.gloss.FilterRelevant(texts)

		var sys, user string
		if isRetry {
			sys, user = retryPrompt(opts.effectiveLanguage(), terms, batch)
		} else {
			sys, user = translatePrompt(opts.effectiveLanguage(), terms, batch)
		}

		resp, err := j.t.engine.Invoke(ctx, dispatch.Request{
			System:      sys,
			User:        user,
			Temperature: temperature,
			Schema:      dispatch.SchemaTranslations,
		})
		if err != nil {
			if errors.Is(err, credential.ErrNoCredentials) {
				return err
			}
			// Batch stays unresolved; the retry ladder picks it up.
			opts.logger().WithError(err).WithField("items", len(batch)).Warn("translation batch failed")
			return nil
		}

		j.merge(batch, resp.Translations, isRetry)
		n := atomic.AddInt32(&done, 1)
		opts.progress(stage, int(n), len(batches), "batch translated")
		return nil
	})
}

// ---------------------------------------------------------------------------
// Stage: validate
// ---------------------------------------------------------------------------

func (j *job) runValidate() Stage {
	resolved, unresolved := classify(j.items, j.translations)

	// Items that already exhausted the fallback ladder keep their
	// source text for good; re-flagging them would loop forever.
	kept := unresolved[:0]
	for _, u := range unresolved {
		if !j.exhausted[u.ID] {
			kept = append(kept, u)
		}
	}
	j.unresolved = kept

	opts := j.opts()
	opts.progress(StageValidate, resolved, len(j.items), "validation complete")

	if len(j.unresolved) == 0 {
		opts.logger().Info("all items resolved")
		return j.afterResolution()
	}
	if j.retryCount >= opts.effectiveMaxRetries() {
		return StageFallback
	}
	return StageRetry
}

func (j *job) afterResolution() Stage {
	if j.opts().EnableReview && j.qualityRetryCount < j.opts().effectiveMaxQualityRetries() {
		return StageReview
	}
	return StageReconstruct
}

// ---------------------------------------------------------------------------
// Stage: per-item fallback
// ---------------------------------------------------------------------------

func (j *job) runFallback(ctx context.Context) Stage {
	opts := j.opts()
	dispatch.RecordRetryRound("fallback")
	opts.logger().WithField("items", len(j.unresolved)).Warn("entering per-item fallback")
	opts.progress(StageFallback, 0, len(j.unresolved), "per-item fallback")

	var done int32
	err := dispatch.RunParallel(ctx, j.unresolved, j.t.engine.MaxConcurrent(), func(ctx context.Context, _ int, u unresolvedItem) error {
		if err := j.fallbackItem(ctx, u.Item); err != nil {
			return err
		}
		n := atomic.AddInt32(&done, 1)
		opts.progress(StageFallback, int(n), len(j.unresolved), "fallback item finished")
		return nil
	})
	if err != nil {
		j.err = err
	}
	j.unresolved = nil
	return j.afterResolution()
}

// fallbackItem retries one item in isolation, enumerating the exact
// placeholder tokens the result must contain. Exhaustion is terminal:
// the item keeps its source text and the job moves on.
func (j *job) fallbackItem(ctx context.Context, item document.Item) error {
	opts := j.opts()
	terms := j.gloss.FilterRelevant([]string{item.Original})

	for attempt := 0; attempt <= opts.effectiveFallbackRetries(); attempt++ {
		sys, user := fallbackPrompt(opts.effectiveLanguage(), terms, item)
		resp, err := j.t.engine.Invoke(ctx, dispatch.Request{
			System:      sys,
			User:        user,
			Temperature: minFloat(1.0, 0.2*float64(attempt+1)),
			Schema:      dispatch.SchemaTranslations,
		})
		if err != nil {
			if errors.Is(err, credential.ErrNoCredentials) {
				return err
			}
			opts.logger().WithError(err).WithFields(logrus.Fields{
				"item":    item.ID,
				"attempt": attempt + 1,
			}).Warn("fallback attempt failed")
		} else {
			for _, r := range resp.Translations {
				if r.ID == item.ID && acceptable(item, r.Text) {
					j.set(item.ID, r.Text)
					return nil
				}
			}
		}

		if attempt < opts.effectiveFallbackRetries() {
			pause := minDuration(2*time.Second, time.Duration(attempt+1)*500*time.Millisecond)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pause):
			}
		}
	}

	j.mu.Lock()
	j.translations[item.ID] = item.Original
	j.exhausted[item.ID] = true
	j.summary.Fallbacks++
	j.mu.Unlock()
	dispatch.RecordFallbackItem()
	opts.logger().WithField("item", item.ID).Warn("item kept source text after exhausting retries")
	return nil
}

// ---------------------------------------------------------------------------
// Stage: reconstruct
// ---------------------------------------------------------------------------

func (j *job) runReconstruct() Stage {
	// Cancellation can land here before extraction ran; the input
	// itself is then the most faithful partial result.
	if j.doc == nil {
		j.doc = j.rawDoc
	}

	results := make(map[string]string, len(j.items))
	translated := 0
	for _, item := range j.items {
		if _, ok := checkItem(item, j.translations); ok {
			results[item.ID] = j.translations[item.ID]
			if !j.exhausted[item.ID] {
				translated++
			}
		} else {
			// Never leave a raw id in the output.
			results[item.ID] = item.Original
		}
	}
	j.summary.Translated = translated

	rebuilt := document.Rebuild(j.doc, results)
	j.output = document.MapLeaves(rebuilt, j.protector.Restore)

	opts := j.opts()
	if opts.UseGlossary && opts.GlossaryPath != "" && j.gloss.Len() > 0 {
		if err := glossary.Save(opts.GlossaryPath, j.gloss.Terms()); err != nil {
			opts.logger().WithError(err).Warn("saving glossary failed")
		}
	}

	opts.progress(StageReconstruct, len(j.items), len(j.items), "document rebuilt")
	return StageComplete
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func countStringLeaves(doc any) int {
	n := 0
	document.MapLeaves(doc, func(s string) string {
		n++
		return s
	})
	return n
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
