// Command composeclient renders clips through the production pipeline. It
// reads the same environment and accounts file as the service.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ai-media-hub-service/internal/app"
	"ai-media-hub-service/internal/config"
	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/service/clip"
)

var (
	outFile string
	upload  string
	timeout time.Duration
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "composeclient",
	Short: "Render media hub clips to WAV files",
	Long: `Render media hub clips to WAV files.

A clip is named by a playback path:
  [{"t":"tts","x":"Hello"},{"b":"prompts","p":"menu.wav"}]   composite
  {type=tts,voice=anna,text=Hi}hi.wav              synthesis
  {bucket=prompts}menu.wav                                  recording`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Format = "console"
		cfg.Level = "warn"
		if verbose {
			cfg.Level = "debug"
		}
		logging.Init(cfg)
	},
}

var renderCmd = &cobra.Command{
	Use:   "render <path>",
	Short: "Render a clip into a WAV file",
	Long: `Render a clip into a WAV file, optionally uploading it to the object store.

Examples:
  composeclient render '[{"t":"tts","x":"Welcome"}]' -o welcome.wav
  composeclient render '{bucket=prompts}menu.wav' -o menu.wav --upload prompts/menu-16k.wav`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		factory, store, release, err := app.NewClipFactory(config.Load())
		if err != nil {
			return err
		}
		defer release()

		task, err := factory.FromPath(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var pcm bytes.Buffer
		if err := task.Run(ctx, func(chunk []byte) { pcm.Write(chunk) }); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		audio := pcm.Bytes()
		if task.Kind() == clip.KindComposite && len(audio) >= clip.HeaderSize {
			audio = audio[clip.HeaderSize:]
		}

		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := clip.WriteWAV(f, audio); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes of PCM (%s)\n", outFile, len(audio), pcmDuration(len(audio)))

		if upload == "" {
			return nil
		}
		bucket, key, ok := strings.Cut(upload, "/")
		if !ok || bucket == "" || key == "" {
			return fmt.Errorf("--upload must be bucket/key, got %q", upload)
		}
		data, err := os.ReadFile(outFile)
		if err != nil {
			return err
		}
		if err := store.Put(ctx, bucket, key, data); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded to {bucket=%s}%s\n", bucket, key)
		return nil
	},
}

var keyCmd = &cobra.Command{
	Use:   "key <path>",
	Short: "Print the cache key of a synthesis clip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		factory, _, release, err := app.NewClipFactory(config.Load())
		if err != nil {
			return err
		}
		defer release()
		task, err := factory.FromPath(args[0])
		if err != nil {
			return err
		}
		key, ok := task.Key()
		if !ok {
			return fmt.Errorf("%s clips are not cached", task.Kind())
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var escapeCmd = &cobra.Command{
	Use:   "escape <text>",
	Short: "Escape text for the inline parameter syntax",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), clip.EscapeUnicode(args[0]))
	},
}

func pcmDuration(n int) time.Duration {
	// 16 kHz, 2 bytes per sample
	return time.Duration(n) * time.Second / 32000
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	renderCmd.Flags().StringVarP(&outFile, "output", "o", "clip.wav", "Output WAV file")
	renderCmd.Flags().StringVar(&upload, "upload", "", "Upload the WAV file to bucket/key")
	renderCmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Render timeout")
	rootCmd.AddCommand(renderCmd, keyCmd, escapeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
