package dispatch

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Engine configuration", func() {
	It("defaults to warnings and a bounded cache", func() {
		config := NewConfig()
		Expect(config.level.Level()).To(Equal(slog.LevelWarn))
		Expect(config.GetCacheSize()).To(Equal(DefaultCacheSize))
	})

	It("sends every record to the added handlers", func() {
		var logs bytes.Buffer
		config := NewConfig().AddLogHandler(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		g := newGeometry(config)
		Expect(g.engine.Logger()).ToNot(BeNil())

		Expect(logs.String()).To(ContainSubstring("registered class"))
		Expect(logs.String()).To(ContainSubstring("class=Point.Style"))
		Expect(logs.String()).To(ContainSubstring("component=dispatch"))
	})

	It("uses a logger that was set explicitly", func() {
		var logs bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		config := NewConfig().SetLogger(logger)
		Expect(config.GetLogger()).To(BeIdenticalTo(logger))

		newGeometry(config)
		Expect(logs.String()).To(ContainSubstring(`"msg":"registered class"`))
	})

	It("never logs dispatch errors", func() {
		var logs bytes.Buffer
		g := newGeometry(NewConfig().AddLogHandler(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
		logs.Reset()

		_, err := g.call(g.newPoint(0, 0), "teleport")
		Expect(err).To(MatchError(ErrUnknownMethod))
		Expect(logs.String()).To(BeEmpty())
	})

	When("the configuration is read from CUE", func() {
		It("applies every setting", func() {
			config, err := ParseConfig("engine.cue", []byte(`
cache: size: 256
log: {
	level:  "debug"
	format: "json"
}
`))
			Expect(err).To(BeNil())
			Expect(config.GetCacheSize()).To(Equal(256))
			Expect(config.level.Level()).To(Equal(slog.LevelDebug))
			Expect(config.json).To(BeTrue())
		})

		It("disables the cache", func() {
			config, err := ParseConfig("engine.cue", []byte(`cache: enabled: false`))
			Expect(err).To(BeNil())
			Expect(config.GetCacheSize()).To(Equal(0))
		})

		It("keeps the defaults for an empty file", func() {
			config, err := ParseConfig("engine.cue", nil)
			Expect(err).To(BeNil())
			Expect(config.GetCacheSize()).To(Equal(DefaultCacheSize))
			Expect(config.json).To(BeFalse())
		})

		It("rejects unknown levels", func() {
			_, err := ParseConfig("engine.cue", []byte(`log: level: "verbose"`))
			Expect(err).To(MatchError(ContainSubstring("invalid config")))
		})

		It("rejects negative cache sizes", func() {
			_, err := ParseConfig("engine.cue", []byte(`cache: size: -1`))
			Expect(err).To(MatchError(ContainSubstring("invalid config")))
		})

		It("rejects unknown fields", func() {
			_, err := ParseConfig("engine.cue", []byte(`tracing: true`))
			Expect(err).To(HaveOccurred())
		})

		It("rejects syntax errors", func() {
			_, err := ParseConfig("engine.cue", []byte(`cache: {`))
			Expect(err).To(MatchError(ContainSubstring("could not parse config")))
		})

		It("loads files", func() {
			path := filepath.Join(GinkgoT().TempDir(), "engine.cue")
			Expect(os.WriteFile(path, []byte(`cache: size: 8`), 0o644)).To(Succeed())

			config, err := LoadConfig(path)
			Expect(err).To(BeNil())
			Expect(config.GetCacheSize()).To(Equal(8))

			_, err = LoadConfig(filepath.Join(GinkgoT().TempDir(), "missing.cue"))
			Expect(err).To(MatchError(ContainSubstring("could not read config")))
		})
	})
})
