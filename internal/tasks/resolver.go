package tasks

import (
	"log/slog"
	"sort"

	"github.com/minahq/mina/internal/textsim"
)

// ClusterThreshold is the normalized title similarity at or above which two
// candidates are considered the same underlying task. It is a property of the
// resolution algorithm, not a per-call knob.
const ClusterThreshold = 0.70

// Resolver deduplicates candidate task lists. It holds no per-call state;
// a single Resolver is safe for concurrent use.
type Resolver struct {
	metaFilter MetaFilter
	log        *slog.Logger
}

// ResolverOption configures a [Resolver].
type ResolverOption func(*Resolver)

// WithMetaFilter replaces [DefaultMetaFilter]. A nil filter keeps every
// candidate.
func WithMetaFilter(f MetaFilter) ResolverOption {
	return func(r *Resolver) {
		if f == nil {
			f = KeepAllFilter
		}
		r.metaFilter = f
	}
}

// WithResolverLogger sets the logger. Defaults to [slog.Default].
func WithResolverLogger(log *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = log }
}

// NewResolver creates a Resolver with the default meta-commentary filter.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		metaFilter: DefaultMetaFilter,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// cluster tracks one group of near-duplicate candidates during resolution.
// rep points at the current representative by original candidate index.
type cluster struct {
	repTitle string // normalized title of the representative
	repIndex int    // index into the original candidate slice
	repScore float64
}

// Resolve filters and deduplicates candidates extracted from transcript.
//
// Candidates flagged by the meta filter are dropped first. The survivors are
// clustered in input order: each candidate is compared against the
// representatives of existing clusters and joins the first whose normalized
// title similarity is at least [ClusterThreshold], otherwise it founds a new
// cluster. Within a cluster the candidate with the highest ConfidenceScore
// wins; on an exact tie the earlier candidate is kept, which makes resolution
// fully deterministic for a given input order.
//
// The result preserves the winners' original relative order. Empty input
// yields an empty (non-nil) slice.
func (r *Resolver) Resolve(transcript string, candidates []CandidateTask) []ResolvedTask {
	clusters := make([]cluster, 0, len(candidates))
	dropped := 0

	for i, c := range candidates {
		if r.metaFilter(transcript, c) {
			dropped++
			continue
		}

		title := textsim.NormalizeTitle(c.Title)
		joined := false
		for j := range clusters {
			if textsim.Ratio(title, clusters[j].repTitle) >= ClusterThreshold {
				// Strictly greater: ties keep the first-seen candidate.
				if c.ConfidenceScore > clusters[j].repScore {
					clusters[j].repTitle = title
					clusters[j].repIndex = i
					clusters[j].repScore = c.ConfidenceScore
				}
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, cluster{
				repTitle: title,
				repIndex: i,
				repScore: c.ConfidenceScore,
			})
		}
	}

	winners := make([]int, 0, len(clusters))
	for _, cl := range clusters {
		winners = append(winners, cl.repIndex)
	}
	sort.Ints(winners)

	resolved := make([]ResolvedTask, 0, len(winners))
	for _, idx := range winners {
		resolved = append(resolved, ResolvedTask{CandidateTask: candidates[idx]})
	}

	if dropped > 0 || len(resolved) < len(candidates) {
		r.log.Debug("resolved candidate tasks",
			"candidates", len(candidates),
			"meta_dropped", dropped,
			"resolved", len(resolved))
	}
	return resolved
}
