package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sFinOe/Video-Conference-App/internal/config"
	"github.com/sFinOe/Video-Conference-App/internal/media"
	"github.com/sFinOe/Video-Conference-App/internal/session"
	"github.com/sFinOe/Video-Conference-App/internal/sigclient"
	"github.com/sFinOe/Video-Conference-App/internal/transport"
	"github.com/sFinOe/Video-Conference-App/internal/ui"
)

var joinOpts config.Options

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and start the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(joinOpts)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runJoin(args[0], cfg)
	},
}

func init() {
	joinCmd.Flags().StringVarP(&joinOpts.Name, "name", "n", "", "display name announced to the room")
	joinCmd.Flags().StringVarP(&joinOpts.ServerURL, "server", "s", "", "signaling server websocket URL")
	joinCmd.Flags().StringVar(&joinOpts.STUNServer, "stun", "", "STUN server URL")
	joinCmd.Flags().StringVar(&joinOpts.TURNServer, "turn", "", "TURN server URL")
	joinCmd.Flags().StringVar(&joinOpts.TURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&joinOpts.TURNPass, "turn-pass", "", "TURN password")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(roomID string, cfg *config.Config) error {
	// The TUI owns stdout; logs go to stderr at an env-selected level.
	level := zerolog.ErrorLevel
	if l, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && os.Getenv("LOG_LEVEL") != "" {
		level = l
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)

	client := sigclient.NewClient(cfg.ServerURL)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect to signaling server: %w", err)
	}
	defer client.Close()

	handler := sigclient.NewHandler(client, log)
	go handler.Start()

	ctrl := session.NewController(session.Options{
		RoomID:      roomID,
		DisplayName: cfg.Name,
		Publisher:   client,
		Transport:   transport.NewPion(log),
		TransportConfig: transport.Config{
			RoomID:      roomID,
			DeviceName:  cfg.Name,
			STUNServers: cfg.GetSTUNServers(),
			TURNServers: cfg.GetTURNServers(),
			TURNUser:    cfg.TURNUser,
			TURNPass:    cfg.TURNPass,
		},
		Relay:   handler,
		Camera:  media.NewCameraMic(),
		Display: media.NewDisplay(),
		Events: session.Events{
			RoomDetails: handler.RoomDetails,
			PeerJoined:  handler.PeerJoined,
			PeerLeft:    handler.PeerLeft,
			MediaState:  handler.MediaState,
			ScreenShare: handler.ScreenShare,
			Chat:        handler.Chat,
			Errors:      handler.Errors,
		},
		Logger: log,
	})

	if err := ctrl.Join(context.Background()); err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	defer ctrl.Leave()

	model := ui.NewRoomModel(roomID, cfg.Name, ctrl)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("room view: %w", err)
	}
	return nil
}
