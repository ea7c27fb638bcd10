package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/kb/api/mcp"
	"github.com/papercomputeco/kb/pkg/embeddings"
	"github.com/papercomputeco/kb/pkg/eventstream"
	"github.com/papercomputeco/kb/pkg/ingest"
	"github.com/papercomputeco/kb/pkg/logger"
	"github.com/papercomputeco/kb/pkg/query"
	"github.com/papercomputeco/kb/pkg/store"
	"github.com/papercomputeco/kb/pkg/store/snapshot"
	testutils "github.com/papercomputeco/kb/pkg/utils/test"
)

type apiFixture struct {
	server    *Server
	store     *store.Store
	persister *snapshot.Memory
	embedder  *testutils.MockEmbedder
	events    *testutils.MockPublisher
}

func newAPIFixture() *apiFixture {
	ctx := context.Background()
	f := &apiFixture{
		persister: snapshot.NewMemory(),
		embedder:  testutils.NewMockEmbedder(),
		events:    testutils.NewMockPublisher(),
	}

	var err error
	f.store, err = store.Open(ctx, store.Config{Persister: f.persister}, logger.Nop())
	Expect(err).NotTo(HaveOccurred())

	gateway := embeddings.NewGateway(f.embedder, embeddings.GatewayConfig{Dimensions: 3}, logger.Nop())
	engine := query.NewEngine(f.store, gateway, logger.Nop())
	pool, err := ingest.NewPool(&ingest.PoolConfig{Publisher: f.events, NumWorkers: 1, Logger: logger.Nop()})
	Expect(err).NotTo(HaveOccurred())
	svc := ingest.NewService(ingest.Config{Store: f.store, Gateway: gateway, Events: pool}, logger.Nop())
	DeferCleanup(svc.Close)

	mcpServer, err := mcp.NewServer(mcp.Config{Engine: engine, Ingest: svc, Logger: logger.Nop()})
	Expect(err).NotTo(HaveOccurred())

	f.server, err = NewServer(Config{
		ListenAddr: ":0",
		Store:      f.store,
		Engine:     engine,
		Ingest:     svc,
		MCP:        mcpServer,
	}, logger.Nop())
	Expect(err).NotTo(HaveOccurred())

	return f
}

func (f *apiFixture) do(method, path, body string) (*http.Response, map[string]any) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.server.app.Test(req)
	Expect(err).NotTo(HaveOccurred())

	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())

	var decoded map[string]any
	if len(data) > 0 && data[0] == '{' {
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
	}
	return resp, decoded
}

var _ = Describe("NewServer", func() {
	It("requires its dependencies", func() {
		_, err := NewServer(Config{}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("store is required")))
	})
})

var _ = Describe("Server", func() {
	var f *apiFixture

	BeforeEach(func() {
		f = newAPIFixture()
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			resp, err := f.server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal(`"pong"`))
		})

		It("sets a request id", func() {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			resp, err := f.server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Header.Get(HeaderRequestID)).NotTo(BeEmpty())

			req = httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set(HeaderRequestID, "req-123")
			resp, err = f.server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Header.Get(HeaderRequestID)).To(Equal("req-123"))
		})
	})

	Describe("GET /health", func() {
		It("reports the document count", func() {
			_, body := f.do(http.MethodGet, "/health", "")
			Expect(body).To(Equal(map[string]any{"status": "ok", "count": float64(0)}))

			f.do(http.MethodPost, "/ingest", `{"id":"a","text":"alpha"}`)
			f.do(http.MethodPost, "/ingest", `{"id":"b","text":"beta"}`)
			f.do(http.MethodPost, "/ingest", `{"id":"a","text":"alpha again"}`)

			_, body = f.do(http.MethodGet, "/health", "")
			Expect(body).To(HaveKeyWithValue("count", float64(2)))
		})
	})

	Describe("POST /ingest", func() {
		It("stores the document", func() {
			resp, body := f.do(http.MethodPost, "/ingest", `{"id":"src/app.ts","text":"export {}","metadata":{"source":"src/app.ts","type":".ts"}}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body).To(Equal(map[string]any{"status": "success", "id": "src/app.ts"}))
			Expect(resp.Header.Get(HeaderEmbeddingDegraded)).To(BeEmpty())

			r, ok := f.store.Get("src/app.ts")
			Expect(ok).To(BeTrue())
			Expect(r.Metadata).To(HaveKeyWithValue("type", ".ts"))
			Expect(f.persister.Saves()).To(Equal(1))
		})

		It("accepts empty text", func() {
			resp, _ := f.do(http.MethodPost, "/ingest", `{"id":"empty","text":""}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(f.store.Count()).To(Equal(1))
		})

		DescribeTable("rejects invalid bodies without touching the store",
			func(body, wantErr string) {
				resp, decoded := f.do(http.MethodPost, "/ingest", body)
				Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
				Expect(decoded["error"]).To(ContainSubstring(wantErr))
				Expect(f.store.Count()).To(Equal(0))
				Expect(f.embedder.CallCount()).To(Equal(0))
			},
			Entry("missing id", `{"text":"hello"}`, "id is required"),
			Entry("empty id", `{"id":"","text":"hello"}`, "id is required"),
			Entry("missing text", `{"id":"a"}`, "text is required"),
			Entry("malformed json", `{"id":`, "invalid request body"),
			Entry("non-object metadata", `{"id":"a","text":"t","metadata":[1]}`, "invalid request body"),
		)

		It("flags degraded embeddings but still succeeds", func() {
			f.embedder.FailOn = "boom"

			resp, body := f.do(http.MethodPost, "/ingest", `{"id":"a","text":"boom"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body).To(HaveKeyWithValue("status", "success"))
			Expect(resp.Header.Get(HeaderEmbeddingDegraded)).To(Equal("true"))
		})

		It("returns 500 when the snapshot can't be written but keeps the document", func() {
			f.persister.SaveErr = errors.New("disk full")

			resp, body := f.do(http.MethodPost, "/ingest", `{"id":"a","text":"alpha"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
			Expect(body["error"]).To(ContainSubstring("disk full"))

			_, health := f.do(http.MethodGet, "/health", "")
			Expect(health).To(HaveKeyWithValue("count", float64(1)))
		})
	})

	Describe("POST /query", func() {
		BeforeEach(func() {
			f.embedder.Embeddings["hello world"] = []float32{1, 2, 3}
			f.embedder.Embeddings["hello there"] = []float32{4, 5, 6}
			f.embedder.Embeddings["hello"] = []float32{1, 0, 0}
		})

		It("returns legacy nested lists for an empty store", func() {
			resp, body := f.do(http.MethodPost, "/query", `{"query":"hello"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body["results"]).To(Equal(map[string]any{
				"ids":       []any{[]any{}},
				"documents": []any{[]any{}},
				"metadatas": []any{[]any{}},
				"scores":    []any{[]any{}},
			}))
		})

		It("returns the best match", func() {
			f.do(http.MethodPost, "/ingest", `{"id":"a","text":"hello world","metadata":{"source":"a"}}`)
			f.do(http.MethodPost, "/ingest", `{"id":"b","text":"hello there"}`)

			resp, body := f.do(http.MethodPost, "/query", `{"query":"hello","n_results":1}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			results := body["results"].(map[string]any)
			Expect(results["ids"]).To(Equal([]any{[]any{"b"}}))
			Expect(results["documents"]).To(Equal([]any{[]any{"hello there"}}))
			Expect(results["metadatas"]).To(Equal([]any{[]any{map[string]any{}}}))
		})

		It("defaults n_results to 5", func() {
			for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
				f.do(http.MethodPost, "/ingest", `{"id":"`+id+`","text":"doc"}`)
			}

			_, body := f.do(http.MethodPost, "/query", `{"query":"hello"}`)
			results := body["results"].(map[string]any)
			Expect(results["ids"].([]any)[0]).To(HaveLen(5))
		})

		It("returns empty lists for a non-positive n_results", func() {
			f.do(http.MethodPost, "/ingest", `{"id":"a","text":"hello world"}`)
			calls := f.embedder.CallCount()

			_, body := f.do(http.MethodPost, "/query", `{"query":"hello","n_results":0}`)
			results := body["results"].(map[string]any)
			Expect(results["documents"]).To(Equal([]any{[]any{}}))
			Expect(f.embedder.CallCount()).To(Equal(calls))
		})

		It("rejects a missing query", func() {
			resp, body := f.do(http.MethodPost, "/query", `{"n_results":3}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(body["error"]).To(ContainSubstring("query is required"))
		})
	})

	Describe("/v1/documents", func() {
		BeforeEach(func() {
			f.embedder.Embeddings["print('hi')"] = []float32{1, 0, 0}
			f.do(http.MethodPost, "/ingest", `{"id":"src/keep.py","text":"print('hi')","metadata":{"type":".py"}}`)
		})

		It("gets a document by a slash-separated id", func() {
			resp, body := f.do(http.MethodGet, "/v1/documents/src/keep.py", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body).To(HaveKeyWithValue("id", "src/keep.py"))
			Expect(body).To(HaveKeyWithValue("text", "print('hi')"))
			Expect(body).To(HaveKeyWithValue("dimensions", float64(3)))
			Expect(body).To(HaveKeyWithValue("degraded", false))
			Expect(body).NotTo(HaveKey("embedding"))
		})

		It("returns 404 for a missing document", func() {
			resp, _ := f.do(http.MethodGet, "/v1/documents/missing.md", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("deletes a document", func() {
			resp, body := f.do(http.MethodDelete, "/v1/documents/src/keep.py", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body).To(Equal(map[string]any{"status": "deleted", "id": "src/keep.py"}))
			Expect(f.store.Count()).To(Equal(0))

			resp, _ = f.do(http.MethodDelete, "/v1/documents/src/keep.py", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("publishes a delete event that keeps its id after later requests", func() {
			f.do(http.MethodPost, "/ingest", `{"id":"aaaaaaaa","text":"short lived"}`)

			resp, _ := f.do(http.MethodDelete, "/v1/documents/aaaaaaaa", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			deleted := func() *eventstream.DocumentEvent {
				for _, e := range f.events.Events() {
					if e.EventType == eventstream.EventTypeDocumentDeleted {
						return e
					}
				}
				return nil
			}
			Eventually(deleted).ShouldNot(BeNil())

			for range 50 {
				f.do(http.MethodGet, "/v1/documents/zzzzzzzz", "")
			}

			event := deleted()
			Expect(event.Document.ID).To(Equal("aaaaaaaa"))
			Expect(event.Source.Transport).To(Equal("http"))
		})
	})

	Describe("/mcp", func() {
		It("is mounted", func() {
			req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json, text/event-stream")
			resp, err := f.server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).NotTo(Equal(fiber.StatusNotFound))
		})
	})
})
