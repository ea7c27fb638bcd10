package snapshot_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/kb/pkg/store/snapshot"
)

var _ = Describe("Memory", func() {
	It("loads nothing before the first save", func() {
		m := snapshot.NewMemory()
		records, err := m.Load(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeNil())
	})

	It("copies records on save", func() {
		m := snapshot.NewMemory()
		records := sampleRecords()
		Expect(m.Save(context.Background(), records)).To(Succeed())

		records[0].Embedding[0] = 42
		records[0].Metadata["source"] = "changed"

		Expect(m.Records()[0].Embedding[0]).To(Equal(float32(1)))
		Expect(m.Records()[0].Metadata).To(HaveKeyWithValue("source", "a.md"))
		Expect(m.Saves()).To(Equal(1))
	})

	It("keeps the previous snapshot on a failed save", func() {
		m := snapshot.NewMemory(sampleRecords()...)
		m.SaveErr = errors.New("disk full")

		Expect(m.Save(context.Background(), nil)).To(MatchError("disk full"))
		Expect(m.Records()).To(HaveLen(2))
		Expect(m.Saves()).To(Equal(0))
	})
})

var _ = Describe("New", func() {
	It("defaults to a file snapshot when a path is set", func() {
		p, err := snapshot.New(context.Background(), snapshot.Config{Path: GinkgoT().TempDir() + "/kb.json"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&snapshot.File{}))
	})

	It("defaults to memory without a path", func() {
		p, err := snapshot.New(context.Background(), snapshot.Config{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&snapshot.Memory{}))
	})

	It("builds a minio snapshot", func() {
		p, err := snapshot.New(context.Background(), snapshot.Config{Provider: "minio", Endpoint: "localhost:9000", Bucket: "kb"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&snapshot.Object{}))
	})

	It("builds a sqlite snapshot", func() {
		p, err := snapshot.New(context.Background(), snapshot.Config{Provider: "sqlite", Path: ":memory:"})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(p.Close)
		Expect(p).To(BeAssignableToTypeOf(&snapshot.SQL{}))
	})

	It("requires a DSN for postgres", func() {
		_, err := snapshot.New(context.Background(), snapshot.Config{Provider: "postgres"})
		Expect(err).To(MatchError(ContainSubstring("DSN is required")))
	})

	It("rejects unknown providers", func() {
		_, err := snapshot.New(context.Background(), snapshot.Config{Provider: "dynamodb"})
		Expect(err).To(MatchError(ContainSubstring("unsupported storage provider")))
	})
})
