package servecmder

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/papercomputeco/kb/pkg/config"
	"github.com/papercomputeco/kb/pkg/ingest"
	"github.com/papercomputeco/kb/pkg/logger"
)

var _ = Describe("NewServeCmd", func() {
	It("registers the shared flags", func() {
		cmd := NewServeCmd()
		for _, name := range []string{"listen", "storage-path", "flush-mode", "embedding-provider", "events-brokers", "log-file"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8001"))
	})
})

var _ = Describe("newStack", func() {
	var (
		ctx    context.Context
		tmpDir string
		v      *viper.Viper
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		tmpDir, err = os.MkdirTemp("", "kb-serve-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		v, err = config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		v.Set("embedding.provider", "none")
		v.Set("embedding.dimensions", 4)
	})

	It("persists the snapshot under the kb dir by default", func() {
		s, err := newStack(ctx, v, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		_, err = s.ingest.Ingest(ctx, ingest.Request{ID: "a.md", Text: "alpha", Transport: "test"})
		Expect(err).NotTo(HaveOccurred())

		results, err := s.engine.Query(ctx, "alpha", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Score).To(BeZero())

		s.close(logger.Nop())
		Expect(filepath.Join(tmpDir, "knowledge_base.json")).To(BeAnExistingFile())
	})

	It("reloads documents from an existing snapshot", func() {
		path := filepath.Join(tmpDir, "kb.json.zst")
		v.Set("storage.path", path)

		s, err := newStack(ctx, v, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		_, err = s.ingest.Ingest(ctx, ingest.Request{ID: "a.md", Text: "alpha"})
		Expect(err).NotTo(HaveOccurred())
		s.close(logger.Nop())

		s, err = newStack(ctx, v, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer s.close(logger.Nop())

		Expect(s.store.Count()).To(Equal(1))
		r, ok := s.store.Get("a.md")
		Expect(ok).To(BeTrue())
		Expect(r.Embedding).To(HaveLen(4))
	})

	It("uses the memory provider without touching disk", func() {
		v.Set("storage.provider", "memory")

		s, err := newStack(ctx, v, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		s.close(logger.Nop())

		Expect(filepath.Join(tmpDir, "knowledge_base.json")).NotTo(BeAnExistingFile())
	})

	It("starts with gemini and no API key, degrading to zero vectors", func() {
		v.Set("embedding.provider", "gemini")
		v.Set("embedding.api_key", "")

		s, err := newStack(ctx, v, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer s.close(logger.Nop())

		Expect(s.gateway.Configured()).To(BeFalse())
		outcome, err := s.ingest.Ingest(ctx, ingest.Request{ID: "a.md", Text: "alpha"})
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Degraded).To(BeTrue())
	})

	It("keeps the sqlite database under the kb dir", func() {
		v.Set("storage.provider", "sqlite")

		s, err := newStack(ctx, v, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		_, err = s.ingest.Ingest(ctx, ingest.Request{ID: "a.md", Text: "alpha"})
		Expect(err).NotTo(HaveOccurred())
		s.close(logger.Nop())

		Expect(filepath.Join(tmpDir, "knowledge_base.db")).To(BeAnExistingFile())

		s, err = newStack(ctx, v, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer s.close(logger.Nop())
		Expect(s.store.Count()).To(Equal(1))
	})

	DescribeTable("rejects invalid settings",
		func(key string, value any) {
			v.Set(key, value)
			_, err := newStack(ctx, v, tmpDir, logger.Nop())
			Expect(err).To(HaveOccurred())
		},
		Entry("embedding provider", "embedding.provider", "openai"),
		Entry("embedding timeout", "embedding.timeout", "whenever"),
		Entry("storage provider", "storage.provider", "dynamodb"),
		Entry("postgres without a DSN", "storage.provider", "postgres"),
		Entry("flush mode", "storage.flush_mode", "sometimes"),
		Entry("events provider", "events.provider", "rabbitmq"),
		Entry("kafka without brokers", "events.provider", "kafka"),
	)
})
