package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/pipeline"
	"github.com/soulprintco/imprint/pkg/store"
	"github.com/soulprintco/imprint/pkg/store/inmemory"
	"github.com/soulprintco/imprint/pkg/synthesizer"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Suite")
}

// stubQueue scripts Enqueue and Retry outcomes per test.
type stubQueue struct {
	enqueue func(userID, storagePath string) (*pipeline.Handle, error)
	retry   func(jobID string) (*pipeline.Handle, error)
}

func (q *stubQueue) Enqueue(_ context.Context, userID, storagePath string) (*pipeline.Handle, error) {
	return q.enqueue(userID, storagePath)
}

func (q *stubQueue) Retry(_ context.Context, jobID string) (*pipeline.Handle, error) {
	return q.retry(jobID)
}

var _ = Describe("Server", func() {
	var (
		server *Server
		storer store.Store
		queue  *stubQueue
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		storer = inmemory.New()
		queue = &stubQueue{
			enqueue: func(userID, storagePath string) (*pipeline.Handle, error) {
				return &pipeline.Handle{JobID: "queued-job"}, nil
			},
			retry: func(jobID string) (*pipeline.Handle, error) {
				return &pipeline.Handle{JobID: jobID}, nil
			},
		}
		server = NewServer(Config{ListenAddr: ":0"}, queue, storer, zap.NewNop())
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp, err := server.app.Test(httptest.NewRequest("GET", "/ping", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))
		})
	})

	Describe("POST /jobs", func() {
		It("queues a job and returns its id", func() {
			req := httptest.NewRequest("POST", "/jobs",
				strings.NewReader(`{"user_id": "user-a", "storage_path": "user-a/export.json"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(202))

			var out CreateJobResponse
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.JobID).To(Equal("queued-job"))
			Expect(out.Status).To(Equal(store.StatusPending))
		})

		It("rejects a missing user id", func() {
			req := httptest.NewRequest("POST", "/jobs",
				strings.NewReader(`{"storage_path": "user-a/export.json"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
		})

		It("rejects a missing storage path", func() {
			req := httptest.NewRequest("POST", "/jobs",
				strings.NewReader(`{"user_id": "user-a"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
		})

		It("returns 503 when the queue is full", func() {
			queue.enqueue = func(string, string) (*pipeline.Handle, error) {
				return nil, pipeline.ErrQueueFull
			}

			req := httptest.NewRequest("POST", "/jobs",
				strings.NewReader(`{"user_id": "user-a", "storage_path": "x.json"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(503))
		})
	})

	Describe("GET /jobs/:id", func() {
		It("returns the job", func() {
			job := &store.Job{
				ID:          "job-1",
				UserID:      "user-a",
				StoragePath: "user-a/export.json",
				Stage:       store.StageExtract,
				Status:      store.StatusProcessing,
				CreatedAt:   time.Now().UTC(),
			}
			Expect(storer.CreateJob(ctx, job)).To(Succeed())

			resp, err := server.app.Test(httptest.NewRequest("GET", "/jobs/job-1", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			var out store.Job
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.Stage).To(Equal(store.StageExtract))
			Expect(out.Status).To(Equal(store.StatusProcessing))
		})

		It("returns 404 for an unknown job", func() {
			resp, err := server.app.Test(httptest.NewRequest("GET", "/jobs/nope", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(404))
		})
	})

	Describe("GET /jobs", func() {
		It("lists a user's jobs", func() {
			for _, id := range []string{"j1", "j2"} {
				Expect(storer.CreateJob(ctx, &store.Job{
					ID:          id,
					UserID:      "user-a",
					StoragePath: "user-a/export.json",
					Stage:       store.StageIngest,
					Status:      store.StatusPending,
					CreatedAt:   time.Now().UTC(),
				})).To(Succeed())
			}

			resp, err := server.app.Test(httptest.NewRequest("GET", "/jobs?user_id=user-a", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			var out struct {
				Count int          `json:"count"`
				Jobs  []*store.Job `json:"jobs"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.Count).To(Equal(2))
		})

		It("requires a user_id query parameter", func() {
			resp, err := server.app.Test(httptest.NewRequest("GET", "/jobs", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
		})
	})

	Describe("POST /jobs/:id/retry", func() {
		It("re-queues a failed job", func() {
			resp, err := server.app.Test(httptest.NewRequest("POST", "/jobs/job-1/retry", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(202))

			var out CreateJobResponse
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.JobID).To(Equal("job-1"))
			Expect(out.Status).To(Equal(store.StatusPending))
		})

		It("returns 404 for an unknown job", func() {
			queue.retry = func(jobID string) (*pipeline.Handle, error) {
				return nil, &store.NotFoundError{Kind: "job", ID: jobID}
			}

			resp, err := server.app.Test(httptest.NewRequest("POST", "/jobs/nope/retry", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(404))
		})

		It("returns 409 when the job is not retryable", func() {
			queue.retry = func(jobID string) (*pipeline.Handle, error) {
				return nil, context.DeadlineExceeded
			}

			resp, err := server.app.Test(httptest.NewRequest("POST", "/jobs/job-1/retry", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(409))
		})
	})

	Describe("GET /memory/:user_id", func() {
		BeforeEach(func() {
			doc := &synthesizer.MemoryDocument{
				Sections: synthesizer.Sections{
					Preferences: "They favor dark roast coffee.",
					Projects:    "They build data pipelines.",
					KeyDates:    "Ships in September.",
					Beliefs:     "Tests are documentation.",
					Decisions:   "Chose Go.",
				},
				GeneratedAt: time.Now().UTC(),
				Valid:       true,
			}
			Expect(storer.PutMemory(ctx, "user-a", doc)).To(Succeed())
		})

		It("returns the latest memory as JSON", func() {
			resp, err := server.app.Test(httptest.NewRequest("GET", "/memory/user-a", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			var out synthesizer.MemoryDocument
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.Valid).To(BeTrue())
			Expect(out.Sections.Preferences).To(ContainSubstring("dark roast"))
		})

		It("renders markdown when requested", func() {
			resp, err := server.app.Test(httptest.NewRequest("GET", "/memory/user-a?format=markdown", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("text/markdown"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("## Preferences & Tastes"))
		})

		It("returns 404 when the user has no memory", func() {
			resp, err := server.app.Test(httptest.NewRequest("GET", "/memory/user-b", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(404))
		})
	})
})
