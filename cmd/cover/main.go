package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-cover/internal/project"
	"github.com/joeblew999/plat-cover/internal/server"
)

// Options defines all CLI flags and env vars for the cover server.
// Flags: --host, --port, --data-dir, --web-dir, --backend-url, --planet-api-key, --raster-timeout, --log-json
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_BACKEND_URL, ...
type Options struct {
	Host          string `doc:"Host to bind to" default:"0.0.0.0"`
	Port          int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir       string `doc:"Directory for sessions, drafts and the token" default:".data"`
	WebDir        string `doc:"Optional web/ directory with static files and fragment overrides" default:""`
	BackendURL    string `doc:"Root of the land-cover backend API" default:"http://localhost:8000/api"`
	PlanetAPIKey  string `doc:"Planet basemap API key"`
	RasterTimeout int    `doc:"Seconds allowed for fetching one raster" default:"60"`
	LogJSON       bool   `doc:"Log as JSON instead of text"`
}

func newLogger(opts *Options) *slog.Logger {
	var h slog.Handler
	if opts.LogJSON {
		h = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		h = slog.NewTextHandler(os.Stderr, nil)
	}
	return slog.New(h)
}

func newServer(opts *Options, logger *slog.Logger) *server.Server {
	return server.New(server.Config{
		Host:          opts.Host,
		Port:          fmt.Sprintf("%d", opts.Port),
		DataDir:       opts.DataDir,
		WebDir:        opts.WebDir,
		BackendURL:    opts.BackendURL,
		PlanetAPIKey:  opts.PlanetAPIKey,
		RasterTimeout: time.Duration(opts.RasterTimeout) * time.Second,
		Logger:        logger,
	})
}

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		logger := newLogger(opts)
		slog.SetDefault(logger)
		srv := newServer(opts, logger)
		httpServer := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			Handler: srv,
		}

		hooks.OnStart(func() {
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			logger.Info("plat-cover API server starting",
				slog.String("server", baseURL),
				slog.String("data", opts.DataDir),
				slog.String("backend", opts.BackendURL),
				slog.String("docs", baseURL+"/docs"),
				slog.String("openapi", baseURL+"/openapi.json"))
			if opts.PlanetAPIKey == "" {
				logger.Warn("no Planet API key, basemaps are disabled")
			}

			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("server error", slog.Any("error", err))
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			httpServer.Close()
			if err := srv.Close(); err != nil {
				logger.Warn("closing server resources failed", slog.Any("error", err))
			}
		})
	})

	cli.Root().Use = "cover"
	cli.Root().Short = "Land-cover map sessions for training-data digitizing"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts, newLogger(opts))
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// dates subcommand: list the offered basemap months
	datesCmd := &cobra.Command{
		Use:   "dates",
		Short: "List the basemap months offered for digitizing",
		Run: func(cmd *cobra.Command, args []string) {
			for _, d := range project.BasemapDateOptions() {
				fmt.Printf("%s\t%s\n", d.Value, d.Label)
			}
		},
	}
	cli.Root().AddCommand(datesCmd)

	cli.Run()
}
