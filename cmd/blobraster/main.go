// Command blobraster rasterizes a blob image tile by tile and writes the
// result as a PNG. Without --updates it renders a built-in sample scene;
// "blobraster scene" prints that scene as an update batch to edit and feed
// back in.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/imageapi"
	"github.com/gogpu/imageapi/resource"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "blobraster",
		Short:        "Rasterize a blob image to PNG",
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindConfig(v, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(v)
			if err != nil {
				return err
			}
			return render(cmd.Context(), cfg)
		},
	}

	f := cmd.PersistentFlags()
	f.SortFlags = false
	f.Uint32("width", 320, "image width in pixels")
	f.Uint32("height", 120, "image height in pixels")
	f.Uint16("tile", 64, "tile size, 0 for a single untiled request")
	f.String("format", "bgra8", "pixel format: bgra8 or r8")
	f.String("text", "Hello, blob", "text of the sample scene")
	f.Float32("font-size", 28, "font size of the sample scene")
	cmd.Flags().Int("workers", 0, "rasterization workers, 0 for GOMAXPROCS")
	cmd.Flags().String("updates", "", "JSON update batch to render instead of the sample scene")
	cmd.Flags().StringP("out", "o", "blob.png", "output PNG path")
	cmd.Flags().BoolP("verbose", "v", false, "debug logging")

	cmd.AddCommand(newSceneCmd(v))
	return cmd
}

func newSceneCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "scene",
		Short: "Print the sample scene as a JSON update batch",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindConfig(v, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(v)
			if err != nil {
				return err
			}
			return sampleScene(resource.NewNamespace(1), cfg).Encode(cmd.OutOrStdout())
		},
	}
}

// bindConfig binds every flag of cmd to v. Environment variables named
// BLOBRASTER_<FLAG> override defaults, and flags override both.
func bindConfig(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix("BLOBRASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if v.GetBool("verbose") {
		setupLogging(slog.LevelDebug)
	}
	return nil
}

func readConfig(v *viper.Viper) (config, error) {
	format, err := parseFormat(v.GetString("format"))
	if err != nil {
		return config{}, err
	}
	cfg := config{
		Width:    v.GetUint32("width"),
		Height:   v.GetUint32("height"),
		Tile:     imageapi.TileSize(v.GetUint16("tile")),
		Format:   format,
		Workers:  v.GetInt("workers"),
		Text:     v.GetString("text"),
		FontSize: float32(v.GetFloat64("font-size")),
		Updates:  v.GetString("updates"),
		Out:      v.GetString("out"),
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return config{}, fmt.Errorf("image size %dx%d is empty", cfg.Width, cfg.Height)
	}
	return cfg, nil
}

func setupLogging(level slog.Level) {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	}))
	slog.SetDefault(logger)
	imageapi.SetLogger(logger)
}

func main() {
	setupLogging(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
