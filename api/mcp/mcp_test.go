package mcp_test

import (
	"context"
	"encoding/json"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/kb/api/mcp"
	"github.com/papercomputeco/kb/pkg/embeddings"
	"github.com/papercomputeco/kb/pkg/ingest"
	"github.com/papercomputeco/kb/pkg/logger"
	"github.com/papercomputeco/kb/pkg/query"
	"github.com/papercomputeco/kb/pkg/store"
	"github.com/papercomputeco/kb/pkg/store/snapshot"
	testutils "github.com/papercomputeco/kb/pkg/utils/test"
)

var _ = Describe("MCP Server", func() {
	var (
		ctx      context.Context
		server   *mcp.Server
		s        *store.Store
		engine   *query.Engine
		svc      *ingest.Service
		embedder *testutils.MockEmbedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder()

		var err error
		s, err = store.Open(ctx, store.Config{Persister: snapshot.NewMemory()}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		gateway := embeddings.NewGateway(embedder, embeddings.GatewayConfig{Dimensions: 3}, logger.Nop())
		engine = query.NewEngine(s, gateway, logger.Nop())
		svc = ingest.NewService(ingest.Config{Store: s, Gateway: gateway}, logger.Nop())

		server, err = mcp.NewServer(mcp.Config{
			Engine: engine,
			Ingest: svc,
			Logger: logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when the engine is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Ingest: svc, Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("query engine is required")))
		})

		It("returns an error when the ingest service is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Engine: engine, Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("ingest service is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Engine: engine, Ingest: svc})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("allows an empty noop server", func() {
			noop, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop.Handler()).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("tools over a client session", func() {
		var session *sdkmcp.ClientSession

		BeforeEach(func() {
			clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()

			_, err := server.MCP().Connect(ctx, serverTransport, nil)
			Expect(err).NotTo(HaveOccurred())

			client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
			session, err = client.Connect(ctx, clientTransport, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(session.Close()).To(Succeed())
		})

		It("lists the query and ingest tools", func() {
			res, err := session.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			names := []string{}
			for _, t := range res.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf("query", "ingest"))
		})

		It("ingests then queries", func() {
			embedder.Embeddings["alpha doc"] = []float32{1, 0, 0}
			embedder.Embeddings["beta doc"] = []float32{0, 1, 0}
			embedder.Embeddings["alpha"] = []float32{1, 0.1, 0}

			for id, text := range map[string]string{"a": "alpha doc", "b": "beta doc"} {
				res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
					Name:      "ingest",
					Arguments: map[string]any{"id": id, "text": text},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeFalse())
			}
			Expect(s.Count()).To(Equal(2))

			res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
				Name:      "query",
				Arguments: map[string]any{"query": "alpha", "n_results": 1},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(res.Content).To(HaveLen(1))

			text, ok := res.Content[0].(*sdkmcp.TextContent)
			Expect(ok).To(BeTrue())

			var out mcp.QueryOutput
			Expect(json.Unmarshal([]byte(text.Text), &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].ID).To(Equal("a"))
		})

		DescribeTable("honors n_results like the HTTP endpoint",
			func(args map[string]any, want int) {
				for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
					_, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
						Name:      "ingest",
						Arguments: map[string]any{"id": id, "text": "doc " + id},
					})
					Expect(err).NotTo(HaveOccurred())
				}
				calls := embedder.CallCount()

				res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "query", Arguments: args})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.IsError).To(BeFalse())

				text, ok := res.Content[0].(*sdkmcp.TextContent)
				Expect(ok).To(BeTrue())
				var out mcp.QueryOutput
				Expect(json.Unmarshal([]byte(text.Text), &out)).To(Succeed())
				Expect(out.Count).To(Equal(want))
				if want == 0 {
					Expect(embedder.CallCount()).To(Equal(calls))
				}
			},
			Entry("missing defaults to 5", map[string]any{"query": "doc"}, 5),
			Entry("zero", map[string]any{"query": "doc", "n_results": 0}, 0),
			Entry("negative", map[string]any{"query": "doc", "n_results": -3}, 0),
		)

		It("reports a missing id as a tool error", func() {
			res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
				Name:      "ingest",
				Arguments: map[string]any{"id": "", "text": "x"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(s.Count()).To(Equal(0))
		})
	})
})
