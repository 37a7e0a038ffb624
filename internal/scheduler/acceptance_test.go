package scheduler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/edgecomet/atlascrawl/internal/blobstore"
	"github.com/edgecomet/atlascrawl/internal/checkpoint"
	"github.com/edgecomet/atlascrawl/internal/config"
	"github.com/edgecomet/atlascrawl/internal/dataset"
	atlasfetch "github.com/edgecomet/atlascrawl/internal/fetch"
	"github.com/edgecomet/atlascrawl/internal/frontier"
	"github.com/edgecomet/atlascrawl/internal/normalize"
	"github.com/edgecomet/atlascrawl/internal/rategovernor"
	"github.com/edgecomet/atlascrawl/internal/robots"
	"github.com/edgecomet/atlascrawl/internal/schema"
	"github.com/edgecomet/atlascrawl/internal/scheduler"
	"github.com/edgecomet/atlascrawl/internal/urlfilter"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

// fixture bundles one scenario's built Deps together with the frontier and
// dataset manager the scheduler wraps, plus a teardown func, since tests
// need to inspect frontier/dataset state the Scheduler itself doesn't
// expose.
type fixture struct {
	deps      scheduler.Deps
	frontier  *frontier.Frontier
	datasets  *dataset.Manager
	normalize *normalize.Normalizer
	teardown  func()
}

// newFixture wires a full Scheduler Deps bundle against real collaborators
// (frontier, normalizer, urlfilter, a miniredis-backed rate governor,
// robots disabled, a fasthttp fetcher with SSRF protection off so it can
// reach an httptest.Server) — everything RenderModeRaw needs, without a
// real browser.
func newFixture(stagingDir string, frontierCfg frontier.Config) *fixture {
	logger := zaptest.NewLogger(GinkgoT())

	registry, err := schema.New()
	Expect(err).NotTo(HaveOccurred())

	blobs, err := blobstore.New(filepath.Join(stagingDir, "blobs"), logger)
	Expect(err).NotTo(HaveOccurred())

	datasets := dataset.NewManager(filepath.Join(stagingDir, "datasets"), registry, false, logger)
	normalizer := normalize.New(normalize.ParamKeep)
	fr := frontier.New(normalizer, frontierCfg)
	filt := urlfilter.New(nil, nil)

	mr, err := miniredis.Run()
	Expect(err).NotTo(HaveOccurred())
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	governor := rategovernor.New(rdb, rategovernor.Config{GlobalConcurrency: 8, DefaultRPS: 1000}, logger)

	robotsEval := robots.New(robots.Config{RespectRobots: false, UserAgent: "AtlasCrawlTest/1.0"}, logger)

	ssrfOff := false
	fetcher := atlasfetch.New(atlasfetch.Config{
		Timeout:        5 * time.Second,
		SSRFProtection: &ssrfOff,
		HeaderPolicy:   atlasfetch.HeaderPolicy{UserAgent: "AtlasCrawlTest/1.0"},
	}, logger)

	deps := scheduler.Deps{
		Frontier:       fr,
		Normalizer:     normalizer,
		URLFilter:      filt,
		RateGovernor:   governor,
		Robots:         robotsEval,
		Fetcher:        fetcher,
		BlobStore:      blobs,
		SchemaRegistry: registry,
		Datasets:       datasets,
		Logger:         logger,
	}

	return &fixture{
		deps:      deps,
		frontier:  fr,
		datasets:  datasets,
		normalize: normalizer,
		teardown:  func() { rdb.Close(); mr.Close() },
	}
}

func crawlConfig(maxDepth, maxPages, maxErrors int) *config.CrawlConfig {
	return &config.CrawlConfig{
		RenderMode: types.RenderModeRaw,
		Limits: config.LimitsConfig{
			Concurrency: 1,
			MaxDepth:    maxDepth,
			MaxPages:    maxPages,
		},
		MaxErrors: maxErrors,
	}
}

var _ = Describe("S1: raw mode, single seed, one page", func() {
	It("produces exactly one page record and no errors", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><body><h1>Hello</h1></body></html>"))
		}))
		defer srv.Close()

		fx := newFixture(GinkgoT().TempDir(), frontier.Config{MaxDepth: -1, MaxPages: 1})
		defer fx.teardown()

		s := scheduler.New(crawlConfig(-1, 1, -1), fx.deps)
		s.Seed([]string{srv.URL + "/"})

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(fx.datasets.RecordCount("pages")).To(Equal(1))
		Expect(fx.datasets.RecordCount("errors")).To(Equal(0))
		Expect(s.CompletionReason()).To(Equal(types.CompletionFinished))
	})
})

var _ = Describe("S4: error budget triggers early stop", func() {
	It("absorbs maxErrors+1 error records before canceling", func() {
		const maxErrors = 5
		mux := http.NewServeMux()
		var homeURL string
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			var links string
			for i := 1; i <= 6; i++ {
				links += fmt.Sprintf(`<a href="%s/err%d">e</a>`, homeURL, i)
			}
			w.Write([]byte("<html><body>" + links + "</body></html>"))
		})
		for i := 1; i <= 6; i++ {
			mux.HandleFunc(fmt.Sprintf("/err%d", i), func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			})
		}
		srv := httptest.NewServer(mux)
		defer srv.Close()
		homeURL = srv.URL

		fx := newFixture(GinkgoT().TempDir(), frontier.Config{MaxDepth: -1, MaxPages: 1000})
		defer fx.teardown()

		s := scheduler.New(crawlConfig(-1, 1000, maxErrors), fx.deps)
		s.Seed([]string{srv.URL + "/"})

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(fx.datasets.RecordCount("errors")).To(Equal(maxErrors + 1))
		Expect(s.CompletionReason()).To(Equal(types.CompletionErrorBudget))
	})
})

var _ = Describe("S5: maxDepth boundary", func() {
	It("admits pages up to maxDepth and leaves the edge past it target-less", func() {
		mux := http.NewServeMux()
		var base string
		page := func(next string) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				body := "<html><body><h1>p</h1>"
				if next != "" {
					body += fmt.Sprintf(`<a href="%s%s">next</a>`, base, next)
				}
				body += "</body></html>"
				w.Write([]byte(body))
			}
		}
		mux.HandleFunc("/", page("/p1"))
		mux.HandleFunc("/p1", page("/p2"))
		mux.HandleFunc("/p2", page("/p3"))
		mux.HandleFunc("/p3", page(""))
		srv := httptest.NewServer(mux)
		defer srv.Close()
		base = srv.URL

		fx := newFixture(GinkgoT().TempDir(), frontier.Config{MaxDepth: 2, MaxPages: 0})
		defer fx.teardown()

		s := scheduler.New(crawlConfig(2, 0, -1), fx.deps)
		s.Seed([]string{srv.URL + "/"})

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(fx.datasets.RecordCount("pages")).To(Equal(3), "seed, p1, p2 — not p3")

		p3, err := fx.normalize.Normalize(base + "/p3")
		Expect(err).NotTo(HaveOccurred())
		_, found := fx.frontier.PageID(p3.URLKey)
		Expect(found).To(BeFalse(), "p3 is past maxDepth and must never be admitted")
	})
})

var _ = Describe("S6: resume determinism", func() {
	It("produces the same total page count whether interrupted-and-resumed or run straight through", func() {
		buildFixtureServer := func() (*httptest.Server, *string) {
			mux := http.NewServeMux()
			base := new(string)
			page := func(path, next string) {
				mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
					body := "<html><body><h1>p</h1>"
					if next != "" {
						body += fmt.Sprintf(`<a href="%s%s">next</a>`, *base, next)
					}
					body += "</body></html>"
					w.Write([]byte(body))
				})
			}
			page("/", "/p1")
			page("/p1", "/p2")
			page("/p2", "/p3")
			page("/p3", "/p4")
			page("/p4", "/p5")
			page("/p5", "")
			srv := httptest.NewServer(mux)
			*base = srv.URL
			return srv, base
		}

		// Run A: kill (simulated via context cancellation from inside the
		// fixture's 4th response) after exactly 4 pages are flushed, with
		// checkpointInterval=2 so a checkpoint covers that point.
		srvA, _ := buildFixtureServer()
		defer srvA.Close()

		stagingA := GinkgoT().TempDir()
		fxA := newFixture(stagingA, frontier.Config{MaxDepth: -1, MaxPages: 0})
		defer fxA.teardown()

		ctxA, cancelA := context.WithCancel(context.Background())
		var served atomic.Int32
		origURL := srvA.URL
		srvA.Config.Handler = wrapWithKillSwitch(srvA.Config.Handler, &served, 4, cancelA)

		cfgA := crawlConfig(-1, 0, -1)
		cfgA.Resume.CheckpointInterval = 2
		checkpointer := checkpoint.New(stagingA, 2, zaptest.NewLogger(GinkgoT()))
		fxA.deps.Checkpointer = checkpointer

		sA := scheduler.New(cfgA, fxA.deps)
		sA.Seed([]string{origURL + "/"})
		_ = sA.Run(ctxA)

		pagesAfterKill := fxA.datasets.RecordCount("pages")
		Expect(pagesAfterKill).To(BeNumerically(">=", 1))

		state, found, err := checkpointer.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())

		// Run B: resume onto the same dataset manager (as a real second
		// process would, re-opening the staging directory) and finish.
		fxB := &fixture{deps: fxA.deps, frontier: frontier.New(fxA.normalize, frontier.Config{MaxDepth: -1, MaxPages: 0}), datasets: fxA.datasets, normalize: fxA.normalize}
		fxB.deps.Frontier = fxB.frontier
		fxB.deps.Checkpointer = checkpointer

		sB := scheduler.New(crawlConfig(-1, 0, -1), fxB.deps)
		sB.Resume(state)
		Expect(sB.Run(context.Background())).To(Succeed())

		totalResumed := fxA.datasets.RecordCount("pages")

		// Run C: fresh copy of the fixture, uninterrupted, separate dataset
		// manager entirely.
		srvC, _ := buildFixtureServer()
		defer srvC.Close()
		fxC := newFixture(GinkgoT().TempDir(), frontier.Config{MaxDepth: -1, MaxPages: 0})
		defer fxC.teardown()

		sC := scheduler.New(crawlConfig(-1, 0, -1), fxC.deps)
		sC.Seed([]string{srvC.URL + "/"})
		Expect(sC.Run(context.Background())).To(Succeed())

		Expect(totalResumed).To(Equal(fxC.datasets.RecordCount("pages")), "interrupted+resumed run must match an uninterrupted run's page count")
	})
})

func wrapWithKillSwitch(next http.Handler, served *atomic.Int32, killAfter int32, cancel context.CancelFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		if served.Add(1) == killAfter {
			cancel()
		}
	})
}
