package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

var serverEnvVars = []string{
	"GRADELENS_CONFIG",
	"GRADELENS_ADDR",
	"GRADELENS_JWT_SECRET",
	"GRADELENS_MAX_UPLOAD_MB",
	"GRADELENS_LOG_LEVEL",
	"GRADELENS_INSIGHT_API_KEY",
	"GRADELENS_INSIGHT_TIMEOUT",
	"GRADELENS_CORS_ORIGINS",
	"GROQ_API_KEY",
}

func clearServerEnv() {
	for _, name := range serverEnvVars {
		_ = os.Unsetenv(name)
	}
}

func TestLoadServer(t *testing.T) {
	Convey("Given the server config loader", t, func() {
		clearServerEnv()
		Reset(clearServerEnv)
		t.Setenv("XDG_DATA_HOME", "/data")

		Convey("Defaults load and validate", func() {
			cfg, err := LoadServer()
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":5000")
			So(cfg.MaxUploadBytes(), ShouldEqual, int64(20<<20))
			So(cfg.DBPath, ShouldEqual, filepath.Join("/data", "gradelens", "gradelens.db"))
			So(cfg.InsightModel, ShouldEqual, DefaultInsightModel)
			So(cfg.AllowedOrigins(), ShouldResemble, []string{"*"})
			So(cfg.JWTSecret, ShouldBeEmpty)
		})

		Convey("Environment variables override defaults", func() {
			_ = os.Setenv("GRADELENS_ADDR", ":9090")
			_ = os.Setenv("GRADELENS_JWT_SECRET", "s3cret")
			_ = os.Setenv("GRADELENS_MAX_UPLOAD_MB", "5")
			_ = os.Setenv("GRADELENS_INSIGHT_TIMEOUT", "2s")
			_ = os.Setenv("GRADELENS_CORS_ORIGINS", "https://a.example, https://b.example")

			cfg, err := LoadServer()
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":9090")
			So(cfg.JWTSecret, ShouldEqual, "s3cret")
			So(cfg.MaxUploadMB, ShouldEqual, 5)
			So(cfg.InsightTimeout, ShouldEqual, 2*time.Second)
			So(cfg.AllowedOrigins(), ShouldResemble, []string{"https://a.example", "https://b.example"})
		})

		Convey("GROQ_API_KEY fills an unset insight key", func() {
			_ = os.Setenv("GROQ_API_KEY", "gsk_test")
			cfg, err := LoadServer()
			So(err, ShouldBeNil)
			So(cfg.InsightAPIKey, ShouldEqual, "gsk_test")

			_ = os.Setenv("GRADELENS_INSIGHT_API_KEY", "explicit")
			cfg, err = LoadServer()
			So(err, ShouldBeNil)
			So(cfg.InsightAPIKey, ShouldEqual, "explicit")
		})

		Convey("A YAML file sits between defaults and env", func() {
			path := filepath.Join(t.TempDir(), "server.yaml")
			So(os.WriteFile(path, []byte("addr: \":7000\"\nlog_level: debug\nmax_upload_mb: 8\n"), 0o600), ShouldBeNil)
			_ = os.Setenv("GRADELENS_CONFIG", path)
			_ = os.Setenv("GRADELENS_MAX_UPLOAD_MB", "9")

			cfg, err := LoadServer()
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":7000")
			So(cfg.LogLevel, ShouldEqual, "debug")
			So(cfg.MaxUploadMB, ShouldEqual, 9)
		})

		Convey("Invalid values are rejected", func() {
			_ = os.Setenv("GRADELENS_MAX_UPLOAD_MB", "0")
			_, err := LoadServer()
			So(err, ShouldNotBeNil)

			_ = os.Setenv("GRADELENS_MAX_UPLOAD_MB", "10")
			_ = os.Setenv("GRADELENS_LOG_LEVEL", "loud")
			_, err = LoadServer()
			So(err, ShouldNotBeNil)
		})

		Convey("A missing config file is an error", func() {
			_ = os.Setenv("GRADELENS_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
			_, err := LoadServer()
			So(err, ShouldNotBeNil)
		})
	})
}
