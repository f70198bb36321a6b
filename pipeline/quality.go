package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/packlate/packlate/credential"
	"github.com/packlate/packlate/dispatch"
)

// ---------------------------------------------------------------------------
// Quality review
// ---------------------------------------------------------------------------

// reviewCharBudget caps the combined original+translated text per
// review call.
const reviewCharBudget = 4000

// runReview sends every original/translated pair to the backend for
// defect detection, then retranslates flagged items once. The round is
// best-effort: a failed review batch drops its pairs, never the job.
func (j *job) runReview(ctx context.Context) Stage {
	opts := j.opts()

	pairs := j.reviewPairs()
	if len(pairs) == 0 {
		return StageReconstruct
	}

	batches := reviewChunks(pairs, reviewCharBudget)
	opts.logger().WithFields(logrus.Fields{
		"pairs":   len(pairs),
		"batches": len(batches),
	}).Info("quality review started")

	issuesByItem := make(map[string][]dispatch.IssueRecord)
	var issuesMu sync.Mutex
	var done int32

	err := dispatch.RunParallel(ctx, batches, j.t.engine.MaxConcurrent(), func(ctx context.Context, _ int, batch []reviewPair) error {
		sys, user := reviewPrompt(opts.effectiveLanguage(), batch)
		resp, err := j.t.engine.Invoke(ctx, dispatch.Request{
			System:      sys,
			User:        user,
			Temperature: 0.1,
			Schema:      dispatch.SchemaIssues,
		})
		if err != nil {
			if errors.Is(err, credential.ErrNoCredentials) {
				return err
			}
			opts.logger().WithError(err).Warn("review batch failed")
			return nil
		}

		inBatch := make(map[string]bool, len(batch))
		for _, p := range batch {
			inBatch[p.ID] = true
		}
		issuesMu.Lock()
		for _, issue := range resp.Issues {
			if inBatch[issue.ItemID] {
				issuesByItem[issue.ItemID] = append(issuesByItem[issue.ItemID], issue)
			}
		}
		issuesMu.Unlock()

		n := atomic.AddInt32(&done, 1)
		opts.progress(StageReview, int(n), len(batches), "review batch finished")
		return nil
	})
	if err != nil {
		j.err = err
		return StageReconstruct
	}

	total := 0
	for _, list := range issuesByItem {
		total += len(list)
	}
	j.summary.QualityIssues += total
	if total == 0 {
		opts.logger().Info("quality review found no issues")
		return StageReconstruct
	}

	opts.logger().WithFields(logrus.Fields{
		"items":  len(issuesByItem),
		"issues": total,
	}).Warn("quality review flagged items")

	j.qualityRetryCount++
	dispatch.RecordRetryRound("quality")
	j.requalify(ctx, issuesByItem)
	return StageValidate
}

// reviewPairs collects the items that ended with a real translation.
// Items that kept their source text after fallback exhaustion are not
// worth reviewing.
func (j *job) reviewPairs() []reviewPair {
	pairs := make([]reviewPair, 0, len(j.items))
	for _, item := range j.items {
		if j.exhausted[item.ID] {
			continue
		}
		translated, ok := j.translations[item.ID]
		if !ok {
			continue
		}
		pairs = append(pairs, reviewPair{ID: item.ID, Original: item.Original, Translated: translated})
	}
	return pairs
}

// reviewChunks packs pairs into batches under a combined character
// budget, preserving item order. An oversized pair gets its own batch.
func reviewChunks(pairs []reviewPair, budget int) [][]reviewPair {
	var batches [][]reviewPair
	var current []reviewPair
	size := 0

	for _, p := range pairs {
		cost := len(p.Original) + len(p.Translated)
		if len(current) > 0 && size+cost > budget {
			batches = append(batches, current)
			current = nil
			size = 0
		}
		current = append(current, p)
		size += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// requalify retranslates flagged items in one round. Results pass the
// usual acceptance check; anything still bad lands back in validation.
func (j *job) requalify(ctx context.Context, issuesByItem map[string][]dispatch.IssueRecord) {
	opts := j.opts()

	flagged := make([]flaggedItem, 0, len(issuesByItem))
	for id, issues := range issuesByItem {
		item, ok := j.byID[id]
		if !ok {
			continue
		}
		flagged = append(flagged, flaggedItem{
			ID:         id,
			Original:   item.Original,
			Translated: j.translations[id],
			Issues:     issues,
		})
	}
	sort.Slice(flagged, func(a, b int) bool { return flagged[a].ID < flagged[b].ID })

	batches := flaggedChunks(flagged, opts.effectiveChunkTokens())
	var retranslated int32

	err := dispatch.RunParallel(ctx, batches, j.t.engine.MaxConcurrent(), func(ctx context.Context, _ int, batch []flaggedItem) error {
		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.Original
		}
		sys, user := requalifyPrompt(opts.effectiveLanguage(), j.gloss.FilterRelevant(texts), batch)

		resp, err := j.t.engine.Invoke(ctx, dispatch.Request{
			System:      sys,
			User:        user,
			Temperature: 0.3,
			Schema:      dispatch.SchemaTranslations,
		})
		if err != nil {
			if errors.Is(err, credential.ErrNoCredentials) {
				return err
			}
			opts.logger().WithError(err).Warn("quality retranslation batch failed")
			return nil
		}

		inBatch := make(map[string]bool, len(batch))
		for _, f := range batch {
			inBatch[f.ID] = true
		}
		for _, r := range resp.Translations {
			if !inBatch[r.ID] {
				continue
			}
			item := j.byID[r.ID]
			if acceptable(item, r.Text) {
				j.set(r.ID, r.Text)
				atomic.AddInt32(&retranslated, 1)
			}
		}
		return nil
	})
	if err != nil {
		j.err = err
		return
	}

	j.summary.QualityRetranslated += int(retranslated)
	opts.logger().WithField("retranslated", retranslated).Info("quality retranslation finished")
	opts.progress(StageReview, len(flagged), len(flagged), "quality retranslation finished")
}

// flaggedChunks packs flagged items under the same estimated-token
// budget translation batches use, counting both text versions.
func flaggedChunks(items []flaggedItem, budget int) [][]flaggedItem {
	var batches [][]flaggedItem
	var current []flaggedItem
	size := 0

	for _, f := range items {
		cost := (len(f.Original)+len(f.Translated))/4 + 1
		if len(current) > 0 && size+cost > budget {
			batches = append(batches, current)
			current = nil
			size = 0
		}
		current = append(current, f)
		size += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
