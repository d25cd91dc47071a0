package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-interview/backend/internal/config"
	"github.com/zhouzirui/z-interview/backend/internal/service/speech"
)

var (
	ttsText    string
	ttsVoice   string
	ttsOut     string
	asrAudio   string
	asrMime    string
	ctlTimeout time.Duration
)

var ttsCmd = &cobra.Command{
	Use:   "tts",
	Short: "Synthesize text with the configured voice and write an mp3",
	RunE:  runTTS,
}

var asrCmd = &cobra.Command{
	Use:   "asr",
	Short: "Transcribe an audio file",
	RunE:  runASR,
}

func init() {
	ttsCmd.Flags().StringVar(&ttsText, "text", "", "text to synthesize")
	ttsCmd.Flags().StringVar(&ttsVoice, "voice", "", "voice id, defaults to SPEECH_TTS_VOICE")
	ttsCmd.Flags().StringVar(&ttsOut, "out", "", "output file (default tts-<unix>.mp3)")
	ttsCmd.Flags().DurationVar(&ctlTimeout, "timeout", 45*time.Second, "request timeout")

	asrCmd.Flags().StringVar(&asrAudio, "audio", "", "audio file to transcribe")
	asrCmd.Flags().StringVar(&asrMime, "mime", "", "audio mime type, inferred from the extension when empty")
	asrCmd.Flags().DurationVar(&ctlTimeout, "timeout", 45*time.Second, "request timeout")
}

func speechService() (*speech.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("配置加载失败: %w", err)
	}
	if !cfg.Speech.Enabled {
		return nil, errors.New("语音服务未启用，请先配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}
	return speech.NewService(cfg.Speech.ServiceConfig()), nil
}

func runTTS(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(ttsText) == "" {
		return errors.New("--text is required")
	}
	svc, err := speechService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
	defer cancel()

	start := time.Now()
	audio, err := svc.SynthesizeVoice(ctx, ttsText, ttsVoice)
	if err != nil {
		return fmt.Errorf("TTS 调用失败: %w", err)
	}

	out := ttsOut
	if out == "" {
		out = fmt.Sprintf("tts-%d.mp3", time.Now().Unix())
	}
	if err := os.WriteFile(out, audio, 0o644); err != nil {
		return fmt.Errorf("写入音频文件失败: %w", err)
	}
	log.Printf("TTS 合成成功: %s (%d bytes, %s)", out, len(audio), time.Since(start).Round(time.Millisecond))
	return nil
}

func runASR(cmd *cobra.Command, args []string) error {
	if asrAudio == "" {
		return errors.New("--audio is required")
	}
	data, err := os.ReadFile(asrAudio)
	if err != nil {
		return fmt.Errorf("读取音频文件失败: %w", err)
	}

	mimeType := asrMime
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(asrAudio)))
	}

	svc, err := speechService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
	defer cancel()

	start := time.Now()
	text, err := svc.Transcribe(ctx, data, mimeType)
	if err != nil {
		return fmt.Errorf("ASR 调用失败: %w", err)
	}
	log.Printf("ASR 识别成功 (%s, %s)", mimeType, time.Since(start).Round(time.Millisecond))
	fmt.Println(text)
	return nil
}
