package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/kb/api"
	"github.com/papercomputeco/kb/pkg/client"
)

type captured struct {
	method string
	path   string
	body   map[string]any
}

var _ = Describe("Client", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		last    captured
		handler http.HandlerFunc
		c       *client.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		last = captured{}
		handler = nil

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			last.method = r.Method
			last.path = r.URL.EscapedPath()
			last.body = nil
			if b, _ := io.ReadAll(r.Body); len(b) > 0 {
				_ = json.Unmarshal(b, &last.body)
			}
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		var err error
		c, err = client.New(server.URL + "/")
		Expect(err).NotTo(HaveOccurred())
	})

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	Describe("New", func() {
		It("rejects targets without a scheme or host", func() {
			_, err := client.New("localhost")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Ingest", func() {
		It("posts the document and reports degraded embeddings", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(api.HeaderEmbeddingDegraded, "true")
				writeJSON(w, http.StatusOK, api.IngestResponse{Status: "success", ID: "a.md"})
			}

			res, err := c.Ingest(ctx, "a.md", "hello", map[string]any{"type": ".md"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ID).To(Equal("a.md"))
			Expect(res.Degraded).To(BeTrue())

			Expect(last.method).To(Equal(http.MethodPost))
			Expect(last.path).To(Equal("/ingest"))
			Expect(last.body).To(HaveKeyWithValue("id", "a.md"))
			Expect(last.body).To(HaveKeyWithValue("text", "hello"))
			Expect(last.body).To(HaveKeyWithValue("metadata", map[string]any{"type": ".md"}))
		})

		It("sends an empty text field rather than omitting it", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, api.IngestResponse{Status: "success", ID: "e"})
			}

			_, err := c.Ingest(ctx, "e", "", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(last.body).To(HaveKeyWithValue("text", ""))
		})

		It("surfaces the server's error message", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "id is required"})
			}

			_, err := c.Ingest(ctx, "", "x", nil)
			var apiErr *client.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(apiErr.Message).To(Equal("id is required"))
		})
	})

	Describe("Query", func() {
		It("flattens the nested result lists", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, api.QueryResponse{Results: api.QueryResults{
					IDs:       [][]string{{"b", "a"}},
					Documents: [][]string{{"beta", "alpha"}},
					Metadatas: [][]map[string]any{{{"k": "v"}, {}}},
					Scores:    [][]float64{{0.9, 0.1}},
				}})
			}

			hits, err := c.Query(ctx, "greek", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(Equal([]client.Hit{
				{ID: "b", Document: "beta", Metadata: map[string]any{"k": "v"}, Score: 0.9},
				{ID: "a", Document: "alpha", Metadata: map[string]any{}, Score: 0.1},
			}))

			Expect(last.path).To(Equal("/query"))
			Expect(last.body).To(HaveKeyWithValue("query", "greek"))
			Expect(last.body).To(HaveKeyWithValue("n_results", BeNumerically("==", 2)))
		})

		It("returns an empty slice for empty results", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, api.QueryResponse{})
			}

			hits, err := c.Query(ctx, "anything", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})
	})

	Describe("Health", func() {
		It("decodes the count", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Count: 3})
			}

			h, err := c.Health(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.Count).To(Equal(3))
			Expect(last.method).To(Equal(http.MethodGet))
		})
	})

	Describe("documents", func() {
		It("escapes id segments but keeps slashes", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, api.DocumentResponse{ID: "src/my file.md", Text: "x"})
			}

			doc, err := c.Get(ctx, "src/my file.md")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.ID).To(Equal("src/my file.md"))
			Expect(last.path).To(Equal("/v1/documents/src/my%20file.md"))
		})

		It("maps 404 to ErrNotFound", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "record not found: x"})
			}

			_, err := c.Get(ctx, "x")
			Expect(err).To(MatchError(client.ErrNotFound))
			Expect(c.Delete(ctx, "x")).To(MatchError(client.ErrNotFound))
			Expect(last.method).To(Equal(http.MethodDelete))
		})

		It("deletes documents", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": "x"})
			}

			Expect(c.Delete(ctx, "x")).To(Succeed())
		})
	})

	It("reports connection failures", func() {
		dead, err := client.New("http://127.0.0.1:1")
		Expect(err).NotTo(HaveOccurred())

		_, err = dead.Health(ctx)
		Expect(err).To(MatchError(ContainSubstring("failed to connect to kb API")))
	})
})
