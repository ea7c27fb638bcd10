package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/kb/pkg/embeddings"
	"github.com/papercomputeco/kb/pkg/embeddings/gemini"
)

var _ = Describe("Embedder", func() {
	var (
		server   *httptest.Server
		path     string
		apiKey   string
		taskType string
		model    string
		text     string
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			apiKey = r.Header.Get("x-goog-api-key")

			var body struct {
				Model   string `json:"model"`
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
				TaskType string `json:"taskType"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			model = body.Model
			taskType = body.TaskType
			if len(body.Content.Parts) > 0 {
				text = body.Content.Parts[0].Text
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"embedding":{"values":[1,0,-1]}}`))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an API key", func() {
		_, err := gemini.NewEmbedder(gemini.EmbedderConfig{})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("API key is required"))
	})

	It("embeds documents with the RETRIEVAL_DOCUMENT task type", func() {
		e, err := gemini.NewEmbedder(gemini.EmbedderConfig{BaseURL: server.URL, APIKey: "secret"})
		Expect(err).NotTo(HaveOccurred())

		vec, err := e.Embed(context.Background(), "hello world", embeddings.IntentDocument)
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{1, 0, -1}))
		Expect(path).To(Equal("/v1beta/models/text-embedding-004:embedContent"))
		Expect(apiKey).To(Equal("secret"))
		Expect(model).To(Equal("models/text-embedding-004"))
		Expect(taskType).To(Equal("RETRIEVAL_DOCUMENT"))
		Expect(text).To(Equal("hello world"))
	})

	It("embeds queries with the RETRIEVAL_QUERY task type", func() {
		e, err := gemini.NewEmbedder(gemini.EmbedderConfig{
			BaseURL: server.URL,
			APIKey:  "secret",
			Model:   "models/gemini-embedding-001",
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "hello", embeddings.IntentQuery)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/v1beta/models/gemini-embedding-001:embedContent"))
		Expect(taskType).To(Equal("RETRIEVAL_QUERY"))
	})
})
