package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func boolPtr(b bool) *bool { return &b }

func testingConfig(dir string) *LoggingConfig {
	return &LoggingConfig{
		Colorize:      false,
		Path:          dir,
		ConsoleInline: false,
		LogTrace:      false,
		Loggers: map[string]LoggerConfig{
			RootLogger: {
				Level:    "info",
				Type:     TypeFile,
				Filename: "test.log",
				Age:      "weekly",
				Keep:     1,
				Pattern:  "console",
			},
			"app":       {Level: "debug"},
			"sql":       {Level: "warn"},
			"tire_rest": {Enabled: boolPtr(false)},
		},
	}
}

var _ = Describe("Manager", func() {
	var (
		dir    string
		cfg    *LoggingConfig
		stdout *bytes.Buffer
		m      *Manager
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		cfg = testingConfig(dir)
		stdout = &bytes.Buffer{}
	})

	JustBeforeEach(func() {
		var err error
		m, err = newManager(cfg, zapcore.AddSync(stdout))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(m.Close)
	})

	readLog := func() string {
		Expect(m.Close()).To(Succeed())
		data, err := os.ReadFile(filepath.Join(dir, "test.log"))
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	Describe("configuration", func() {
		It("lists the configured loggers", func() {
			Expect(m.Names()).To(Equal([]string{"app", RootLogger, "sql", "tire_rest"}))
		})
	})

	Describe("root output", func() {
		Context("without console inline", func() {
			It("writes only to the file", func() {
				Expect(m.Outputs()).To(Equal(1))
				m.Root().Info("hello file")
				Expect(readLog()).To(ContainSubstring("hello file"))
				Expect(stdout.String()).To(BeEmpty())
			})
		})

		Context("with console inline", func() {
			BeforeEach(func() { cfg.ConsoleInline = true })

			It("tees to stdout", func() {
				Expect(m.Outputs()).To(Equal(2))
				m.Root().Info("hello both")
				Expect(stdout.String()).To(ContainSubstring("hello both"))
				Expect(readLog()).To(ContainSubstring("hello both"))
			})
		})

		Context("with the stdout type", func() {
			BeforeEach(func() {
				root := cfg.Loggers[RootLogger]
				root.Type = TypeStdout
				cfg.Loggers[RootLogger] = root
			})

			It("writes to stdout", func() {
				Expect(m.Outputs()).To(Equal(1))
				m.Root().Info("hello stdout")
				Expect(stdout.String()).To(ContainSubstring("hello stdout"))
			})
		})

		Context("with json pattern", func() {
			BeforeEach(func() {
				root := cfg.Loggers[RootLogger]
				root.Type = TypeStdout
				root.Pattern = "json"
				cfg.Loggers[RootLogger] = root
			})

			It("encodes records as JSON", func() {
				m.Logger("app").Info("structured", "cv", 7)
				Expect(stdout.String()).To(ContainSubstring(`"msg":"structured"`))
				Expect(stdout.String()).To(ContainSubstring(`"cv":7`))
				Expect(stdout.String()).To(ContainSubstring(`"logger":"app"`))
			})
		})
	})

	Describe("unsupported root type", func() {
		It("is rejected", func() {
			cfg := testingConfig(dir)
			root := cfg.Loggers[RootLogger]
			root.Type = "nonsense"
			cfg.Loggers[RootLogger] = root
			_, err := newManager(cfg, zapcore.AddSync(stdout))
			Expect(err).To(MatchError(ContainSubstring("nonsense")))
		})
	})

	Describe("invalid level", func() {
		It("is rejected", func() {
			cfg := testingConfig(dir)
			cfg.Loggers["app"] = LoggerConfig{Level: "loud"}
			_, err := newManager(cfg, zapcore.AddSync(stdout))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("child loggers", func() {
		It("have their own levels", func() {
			Expect(m.Level("app")).To(Equal(zapcore.DebugLevel))
			Expect(m.Level("sql")).To(Equal(zapcore.WarnLevel))
			Expect(m.Level("tire_rest")).To(Equal(zapcore.InfoLevel))
			Expect(m.Level("unknown")).To(Equal(zapcore.InfoLevel))
		})

		It("are disabled only when configured so", func() {
			Expect(m.Enabled("app")).To(BeTrue())
			Expect(m.Enabled("sql")).To(BeTrue())
			Expect(m.Enabled("tire_rest")).To(BeFalse())
		})

		It("filter by level and carry their name", func() {
			m.Logger("app").Debug("app debug")
			m.Logger("sql").Info("sql info")
			m.Logger("sql").Warn("sql warn")
			m.Logger("tire_rest").Error("tire error")

			out := readLog()
			Expect(out).To(ContainSubstring("app debug"))
			Expect(out).To(ContainSubstring("app"))
			Expect(out).NotTo(ContainSubstring("sql info"))
			Expect(out).To(ContainSubstring("sql warn"))
			Expect(out).NotTo(ContainSubstring("tire error"))
		})

		It("are cached by name", func() {
			Expect(m.Logger("app")).To(BeIdenticalTo(m.Logger("app")))
		})
	})

	Describe("log trace", func() {
		It("is off by default", func() {
			Expect(m.Trace()).To(BeFalse())
		})

		Context("when enabled", func() {
			BeforeEach(func() { cfg.LogTrace = true })

			It("records the caller", func() {
				Expect(m.Trace()).To(BeTrue())
				m.Logger("app").Info("traced")
				Expect(readLog()).To(ContainSubstring("logging_test.go"))
			})
		})
	})

	Describe("colorize", func() {
		BeforeEach(func() {
			cfg.Colorize = true
			root := cfg.Loggers[RootLogger]
			root.Type = TypeStdout
			cfg.Loggers[RootLogger] = root
		})

		It("colors levels on stdout", func() {
			m.Root().Info("colored")
			Expect(stdout.String()).To(ContainSubstring("\x1b["))
		})
	})

	Describe("GormLogger", func() {
		It("writes warnings to the sql logger and drops info", func() {
			gl := m.GormLogger()
			gl.Info(context.Background(), "gorm info %d", 1)
			gl.Warn(context.Background(), "gorm warn %d", 2)

			out := readLog()
			Expect(out).NotTo(ContainSubstring("gorm info 1"))
			Expect(out).To(ContainSubstring("gorm warn 2"))
		})

		Context("when the sql logger is disabled", func() {
			BeforeEach(func() {
				cfg.Loggers[SQLLogger] = LoggerConfig{Enabled: boolPtr(false)}
			})

			It("is silent", func() {
				m.GormLogger().Error(context.Background(), "gorm error")
				m.Root().Info("root still writes")
				out := readLog()
				Expect(out).NotTo(ContainSubstring("gorm error"))
				Expect(out).To(ContainSubstring("root still writes"))
			})
		})
	})

	Describe("Logr", func() {
		It("bridges logr calls into the named logger", func() {
			m.Logr(AppLogger).Info("from client-go", "lease", "katello")
			out := readLog()
			Expect(out).To(ContainSubstring("from client-go"))
			Expect(out).To(ContainSubstring("katello"))
		})
	})
})

var _ = Describe("rotationInterval", func() {
	DescribeTable("maps rotation ages",
		func(age string, every time.Duration) {
			Expect(rotationInterval(age)).To(Equal(every))
		},
		Entry("daily", "daily", 24*time.Hour),
		Entry("weekly", "weekly", 7*24*time.Hour),
		Entry("monthly", "monthly", 30*24*time.Hour),
		Entry("unset", "", time.Duration(0)),
	)

	It("rejects unknown ages", func() {
		_, err := rotationInterval("hourly")
		Expect(err).To(MatchError(ContainSubstring("hourly")))
	})
})

var _ = Describe("startRotation", func() {
	It("rolls the file over on each tick", func() {
		dir := GinkgoT().TempDir()
		lj := &lumberjack.Logger{Filename: filepath.Join(dir, "katello.log"), MaxBackups: 2}
		DeferCleanup(lj.Close)
		_, err := lj.Write([]byte("before rotation\n"))
		Expect(err).NotTo(HaveOccurred())

		r := startRotation(lj, 10*time.Millisecond)
		Eventually(func() []string {
			backups, _ := filepath.Glob(filepath.Join(dir, "katello-*.log"))
			return backups
		}, time.Second, 10*time.Millisecond).ShouldNot(BeEmpty())
		Expect(r.Close()).To(Succeed())
		Expect(r.Close()).To(Succeed())
	})
})

var _ = Describe("DefaultLoggingConfig", func() {
	It("logs to stdout at info", func() {
		cfg := DefaultLoggingConfig()
		root := cfg.root()
		Expect(root.Type).To(Equal(TypeStdout))
		Expect(root.Level).To(Equal("info"))
		Expect(cfg.Loggers["sql"].Level).To(Equal("warn"))
	})
})
