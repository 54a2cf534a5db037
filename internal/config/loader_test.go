package config_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/pitwall/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.OutputDir, convey.ShouldEqual, "f1data")
				convey.So(cfg.MaxAttempts, convey.ShouldEqual, 5)
				convey.So(cfg.BackoffStep, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.Resume, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			clearConfigEnvVars()
			_ = os.Setenv("PITWALL_SEASON", "2024")
			_ = os.Setenv("PITWALL_OUTPUT_DIR", "/data/f1")
			_ = os.Setenv("PITWALL_FORCE", "true")
			_ = os.Setenv("PITWALL_CALL_DELAY", "2s")
			_ = os.Setenv("PITWALL_MAX_ATTEMPTS", "3")
			_ = os.Setenv("PITWALL_OPENF1_BASE_URL", "http://localhost:9000/v1")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Season, convey.ShouldEqual, 2024)
				convey.So(cfg.OutputDir, convey.ShouldEqual, "/data/f1")
				convey.So(cfg.Force, convey.ShouldBeTrue)
				convey.So(cfg.CallDelay, convey.ShouldEqual, 2*time.Second)
				convey.So(cfg.MaxAttempts, convey.ShouldEqual, 3)
				convey.So(cfg.OpenF1BaseURL, convey.ShouldEqual, "http://localhost:9000/v1")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			clearConfigEnvVars()
			yamlContent := `
season: 2025
output_dir: f1data/outputs_2025
cutoff: "2025-11-04"
resume: false
backoff_step: 45s
ledger_path: /var/lib/pitwall/ledger.db
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("PITWALL_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Season, convey.ShouldEqual, 2025)
				convey.So(cfg.OutputDir, convey.ShouldEqual, "f1data/outputs_2025")
				convey.So(cfg.Cutoff, convey.ShouldEqual, "2025-11-04")
				convey.So(cfg.Resume, convey.ShouldBeFalse)
				convey.So(cfg.BackoffStep, convey.ShouldEqual, 45*time.Second)
				convey.So(cfg.LedgerPath, convey.ShouldEqual, "/var/lib/pitwall/ledger.db")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			clearConfigEnvVars()
			tmpFile := createTempConfigFile("season: 2023\nmax_attempts: 2\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("PITWALL_CONFIG", tmpFile)
			_ = os.Setenv("PITWALL_MAX_ATTEMPTS", "7")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Season, convey.ShouldEqual, 2023)
				convey.So(cfg.MaxAttempts, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			clearConfigEnvVars()
			tmpFile := createTempConfigFile("season: [2025\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("PITWALL_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrLoadConfig)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			clearConfigEnvVars()
			_ = os.Setenv("PITWALL_CONFIG", "/nonexistent/pitwall.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrLoadConfig)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			clearConfigEnvVars()
			_ = os.Setenv("PITWALL_MAX_ATTEMPTS", "many")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the loaded values fail validation", func() {
			clearConfigEnvVars()
			_ = os.Setenv("PITWALL_MAX_ATTEMPTS", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "pitwall-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
