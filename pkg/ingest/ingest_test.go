package ingest_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/kb/pkg/embeddings"
	"github.com/papercomputeco/kb/pkg/eventstream"
	"github.com/papercomputeco/kb/pkg/ingest"
	"github.com/papercomputeco/kb/pkg/logger"
	"github.com/papercomputeco/kb/pkg/store"
	"github.com/papercomputeco/kb/pkg/store/snapshot"
	testutils "github.com/papercomputeco/kb/pkg/utils/test"
	"github.com/papercomputeco/kb/pkg/vector"
)

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		embedder  *testutils.MockEmbedder
		persister *snapshot.Memory
		s         *store.Store
		publisher *testutils.MockPublisher
		svc       *ingest.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder()
		persister = snapshot.NewMemory()
		publisher = testutils.NewMockPublisher()

		var err error
		s, err = store.Open(ctx, store.Config{Persister: persister}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		pool, err := ingest.NewPool(&ingest.PoolConfig{Publisher: publisher, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		svc = ingest.NewService(ingest.Config{
			Store:   s,
			Gateway: embeddings.NewGateway(embedder, embeddings.GatewayConfig{Dimensions: 3}, logger.Nop()),
			Events:  pool,
			Host:    "test-host",
		}, logger.Nop())
	})

	It("embeds with document intent and stores the record", func() {
		embedder.Embeddings["hello world"] = []float32{1, 2, 3}

		out, err := svc.Ingest(ctx, ingest.Request{ID: "a", Text: "hello world", Metadata: map[string]any{"source": "a"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Degraded).To(BeFalse())
		Expect(out.Record.Embedding).To(Equal([]float32{1, 2, 3}))

		Expect(embedder.Calls).To(ConsistOf(testutils.EmbedCall{Text: "hello world", Intent: embeddings.IntentDocument}))

		r, ok := s.Get("a")
		Expect(ok).To(BeTrue())
		Expect(r.Metadata).To(HaveKeyWithValue("source", "a"))
		Expect(persister.Saves()).To(Equal(1))
	})

	It("rejects an empty id without calling the gateway", func() {
		_, err := svc.Ingest(ctx, ingest.Request{Text: "hello"})
		Expect(err).To(MatchError(store.ErrInvalidID))
		Expect(embedder.CallCount()).To(Equal(0))
		Expect(s.Count()).To(Equal(0))
	})

	It("stores a zero vector when the embedding fails", func() {
		embedder.FailOn = "broken"

		out, err := svc.Ingest(ctx, ingest.Request{ID: "a", Text: "broken"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Degraded).To(BeTrue())
		Expect(out.EmbedErr).To(HaveOccurred())

		r, ok := s.Get("a")
		Expect(ok).To(BeTrue())
		Expect(vector.IsZero(r.Embedding)).To(BeTrue())
		Expect(r.Embedding).To(HaveLen(3))
	})

	It("returns the committed record when the flush fails", func() {
		persister.SaveErr = errors.New("read-only file system")

		out, err := svc.Ingest(ctx, ingest.Request{ID: "a", Text: "hello"})
		Expect(err).To(MatchError(store.ErrFlush))
		Expect(out.Record.ID).To(Equal("a"))
		Expect(s.Count()).To(Equal(1))
	})

	It("publishes an event per ingest", func() {
		_, err := svc.Ingest(ctx, ingest.Request{ID: "a", Text: "one", Transport: "http"})
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.Ingest(ctx, ingest.Request{ID: "b", Text: "two", Transport: "walker"})
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.Close()).To(Succeed())

		events := publisher.Events()
		Expect(events).To(HaveLen(2))
		Expect(events).To(ContainElement(HaveField("Document.ID", "a")))
		Expect(events).To(ContainElement(HaveField("Source.Transport", "walker")))
		Expect(events[0].EventType).To(Equal(eventstream.EventTypeDocumentIngested))
		Expect(events[0].Source.Host).To(Equal("test-host"))
		Expect(events[0].Document.Persisted).To(BeTrue())
		Expect(publisher.Closed()).To(BeTrue())
	})

	It("keeps ingesting when publishing fails", func() {
		publisher.Err = errors.New("broker down")

		_, err := svc.Ingest(ctx, ingest.Request{ID: "a", Text: "one"})
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.Close()).To(Succeed())
		Expect(s.Count()).To(Equal(1))
	})

	It("deletes documents and publishes a delete event", func() {
		_, err := svc.Ingest(ctx, ingest.Request{ID: "a", Text: "one"})
		Expect(err).NotTo(HaveOccurred())

		deleted, err := svc.Delete(ctx, "a", "http")
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(BeTrue())

		deleted, err = svc.Delete(ctx, "a", "http")
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(BeFalse())

		Expect(svc.Close()).To(Succeed())
		Expect(publisher.Events()).To(ContainElement(HaveField("EventType", eventstream.EventTypeDocumentDeleted)))
		Expect(publisher.Events()).To(HaveLen(2))
	})

	It("works without an event pool", func() {
		plain := ingest.NewService(ingest.Config{
			Store:   s,
			Gateway: embeddings.NewGateway(nil, embeddings.GatewayConfig{Dimensions: 3}, logger.Nop()),
		}, logger.Nop())

		out, err := plain.Ingest(ctx, ingest.Request{ID: "a", Text: "one"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Degraded).To(BeTrue())
		Expect(plain.Close()).To(Succeed())
	})
})
