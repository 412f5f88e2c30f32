// Command mediaclient plays the telephony side of a media stream against a
// running server: it bootstraps a call, streams caller audio in real time and
// records the agent's audio.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	chunkSize     = 160 // 20 ms of 8 kHz μ-law
	chunkInterval = 20 * time.Millisecond
	ulawSilence   = 0xff
)

var (
	serverAddr     string
	agentID        string
	conversationID string
	inputPath      string
	outputPath     string
	trailing       time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "mediaclient",
	Short:        "Simulate a telephony media stream",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&serverAddr, "addr", "localhost:8080", "Server host:port")
	rootCmd.Flags().StringVar(&agentID, "agent", "demo-agent", "Agent id sent in the start message")
	rootCmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id (random when empty)")
	rootCmd.Flags().StringVar(&inputPath, "in", "", "Raw 8 kHz μ-law file to play as the caller")
	rootCmd.Flags().StringVar(&outputPath, "out", "agent.ulaw", "Where to write the agent's audio")
	rootCmd.Flags().DurationVar(&trailing, "silence", 3*time.Second, "Silence to send after the caller audio")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type event struct {
	Event string `json:"event"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var caller []byte
	if inputPath != "" {
		if caller, err = os.ReadFile(inputPath); err != nil {
			return fmt.Errorf("read caller audio: %w", err)
		}
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	streamSid := "MZ" + uuid.NewString()

	wsURL := url.URL{Scheme: "ws", Host: serverAddr, Path: "/media-stream"}
	logger.Info("Connecting", zap.String("url", wsURL.String()))
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connection failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connection failed: %w", err)
	}
	defer conn.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	received := make(chan error, 1)
	go func() {
		received <- receive(conn, out, logger)
	}()

	start := map[string]any{
		"event":     "start",
		"streamSid": streamSid,
		"start": map[string]any{
			"streamSid": streamSid,
			"customParameters": map[string]string{
				"agentId":        agentID,
				"conversationId": conversationID,
			},
		},
	}
	if err := conn.WriteJSON(map[string]string{"event": "connected"}); err != nil {
		return err
	}
	if err := conn.WriteJSON(start); err != nil {
		return err
	}
	logger.Info("Call started",
		zap.String("agentID", agentID),
		zap.String("conversationID", conversationID))

	silence := make([]byte, int(trailing/chunkInterval)*chunkSize)
	for i := range silence {
		silence[i] = ulawSilence
	}
	if err := play(ctx, conn, streamSid, append(caller, silence...)); err != nil {
		return err
	}

	if err := conn.WriteJSON(map[string]any{"event": "stop", "streamSid": streamSid}); err != nil {
		return err
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	select {
	case err := <-received:
		return err
	case <-time.After(2 * time.Second):
		return nil
	}
}

func play(ctx context.Context, conn *websocket.Conn, streamSid string, audio []byte) error {
	ticker := time.NewTicker(chunkInterval)
	defer ticker.Stop()

	for off := 0; off < len(audio); off += chunkSize {
		end := min(off+chunkSize, len(audio))
		msg := map[string]any{
			"event":     "media",
			"streamSid": streamSid,
			"media":     map[string]string{"track": "inbound", "payload": base64.StdEncoding.EncodeToString(audio[off:end])},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func receive(conn *websocket.Conn, out *os.File, logger *zap.Logger) error {
	var frames, bytesOut int
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Info("Stream closed",
				zap.Int("frames", frames),
				zap.Int("bytes", bytesOut),
				zap.Error(err))
			return nil
		}

		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Warn("Unexpected message", zap.ByteString("data", data))
			continue
		}
		switch ev.Event {
		case "media":
			if ev.Media == nil {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil {
				return err
			}
			frames++
			bytesOut += len(audio)
			if _, err := out.Write(audio); err != nil {
				return err
			}
		case "mark":
			if ev.Mark != nil {
				logger.Info("Mark", zap.String("name", ev.Mark.Name), zap.Int("frames", frames))
			}
		case "clear":
			logger.Info("Agent audio cleared")
		default:
			logger.Debug("Message", zap.String("event", ev.Event))
		}
	}
}
