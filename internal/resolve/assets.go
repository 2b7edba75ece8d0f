package resolve

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/wikimirror/internal/collect"
	"git.home.luguber.info/inful/wikimirror/internal/confluence"
	"git.home.luguber.info/inful/wikimirror/internal/layout"
	"git.home.luguber.info/inful/wikimirror/internal/logfields"
)

type assetState int

const (
	assetDownloaded assetState = iota
	assetReused
	assetFailed
)

// imageJob groups every img tag on one page that shares a destination; the
// download runs once and the rewrite applies to all of them.
type imageJob struct {
	src   string
	dest  string
	nodes []*html.Node
	state assetState
}

// rewriteImages downloads every remote-origin image referenced by the page
// and repoints the tags at the local copies. The destination is derived
// from the attachment's owning page when the URL names one, else from the
// page itself. A failed download keeps the original reference; the page
// still converts.
func (r *Resolver) rewriteImages(ctx context.Context, doc *html.Node, page *collect.Page, stats *Stats) {
	base := r.remote.BaseURL()
	pagePath := r.fileMap[page.ID]

	var order []string
	jobs := make(map[string]*imageJob)
	for _, img := range elementsByTag(doc, "img") {
		src := attrValue(img, "src")
		if src == "" || !confluence.IsLikelyAsset(src, base) {
			continue
		}
		owner := page.ID
		if id, ok := confluence.ExtractAttachmentOwner(src); ok {
			owner = id
		}
		dest := layout.AssetPath(owner, src)
		job, exists := jobs[dest]
		if !exists {
			job = &imageJob{src: src, dest: dest}
			jobs[dest] = job
			order = append(order, dest)
		}
		job.nodes = append(job.nodes, img)
	}
	if len(order) == 0 {
		return
	}

	r.runDownloads(ctx, jobs, order)

	for _, dest := range order {
		job := jobs[dest]
		switch job.state {
		case assetFailed:
			stats.record(OutcomeAssetFailed)
			continue
		case assetDownloaded:
			stats.AssetsDownloaded++
		case assetReused:
			stats.AssetsReused++
		}
		rel := layout.Relative(pagePath, job.dest)
		for _, img := range job.nodes {
			setAttr(img, "src", rel)
		}
	}
}

// runDownloads fetches each distinct destination, fanning out up to the
// configured concurrency. Downloads are independent, so ordering does not
// matter; the shared downloaded set provides the run-wide dedup.
func (r *Resolver) runDownloads(ctx context.Context, jobs map[string]*imageJob, order []string) {
	workers := r.assetConcurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(order) {
		workers = len(order)
	}

	work := make(chan *imageJob)
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for job := range work {
				job.state = r.ensureAsset(ctx, job.src, job.dest)
			}
		}()
	}
	for _, dest := range order {
		work <- jobs[dest]
	}
	close(work)
	wg.Wait()
}

// ensureAsset downloads a destination at most once per run. Later
// references reuse the first outcome, including failures, so a dead asset
// is not refetched for every page that embeds it.
func (r *Resolver) ensureAsset(ctx context.Context, src, dest string) assetState {
	r.mu.Lock()
	ok, attempted := r.downloaded[dest]
	r.mu.Unlock()
	if attempted {
		if ok {
			return assetReused
		}
		return assetFailed
	}

	err := r.remote.DownloadAsset(ctx, src, r.destination(dest))
	r.mu.Lock()
	r.downloaded[dest] = err == nil
	r.mu.Unlock()
	if err != nil {
		slog.Warn("asset unavailable, keeping original reference",
			logfields.URL(src),
			logfields.Path(dest),
			logfields.Error(err))
		return assetFailed
	}
	return assetDownloaded
}
