package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/yamesh/internal/adapter/driven/media/pion"
	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/service"
	"github.com/Wyydra/yamesh/internal/ui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const stopTimeout = 5 * time.Second

var (
	flagJoinName     string
	flagJoinAudio    bool
	flagJoinVideo    bool
	flagJoinMuted    bool
	flagJoinNoCamera bool
	flagJoinDuration time.Duration
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and connect to every participant",
	Long: `Join a room and keep a direct WebRTC connection to every other participant
until interrupted. Local media is synthetic: a silent audio track and a
placeholder video track.

Send SIGHUP to re-acquire local media and renegotiate with every peer.

Examples:
  meshcall join standup
  meshcall join standup --name alice --relay redis
  meshcall join standup --video=false --duration 1m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(cmd.Context(), domain.RoomID(args[0]))
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagJoinName, "name", "n", "", "participant id (random when empty)")
	joinCmd.Flags().BoolVar(&flagJoinAudio, "audio", true, "send audio")
	joinCmd.Flags().BoolVar(&flagJoinVideo, "video", true, "send video")
	joinCmd.Flags().BoolVar(&flagJoinMuted, "muted", false, "join with audio disabled")
	joinCmd.Flags().BoolVar(&flagJoinNoCamera, "camera-off", false, "join with video disabled")
	joinCmd.Flags().DurationVar(&flagJoinDuration, "duration", 0, "leave after this long, 0 stays until interrupted")
}

func runJoin(ctx context.Context, roomID domain.RoomID) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	self := domain.ParticipantID(flagJoinName)
	if self == "" {
		self = domain.NewParticipantID()
	}

	relay, closeRelay, err := openRelay(ctx, cfg, roomID, self)
	if err != nil {
		return err
	}
	defer closeRelay()
	if cfg.Relay == "memory" {
		ui.PrintWarning("The memory relay only reaches participants in this process; try `meshcall demo`")
	}

	factory, err := newTransportFactory(cfg)
	if err != nil {
		return err
	}
	svc, err := newCallService(cfg, relay, factory)
	if err != nil {
		return err
	}

	src := pion.NewSource(domain.MediaConstraints{Audio: true, Video: true})
	defer src.Close()

	want := domain.MediaConstraints{Audio: flagJoinAudio, Video: flagJoinVideo}
	local, err := service.AcquireLocalMedia(ctx, src, want)
	if err != nil {
		ui.PrintWarning(err.Error())
	}

	if err := svc.Start(ctx, roomID, self, local); err != nil {
		return err
	}
	defer leave(svc, self)

	fmt.Println(ui.RoomBanner(roomID, self, cfg.Relay, local.Len()))
	applyToggles(ctx, svc)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var deadline <-chan time.Time
	if flagJoinDuration > 0 {
		timer := time.NewTimer(flagJoinDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	lost := relayDone(relay)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			return nil
		case <-lost:
			return domain.WrapError("relay", domain.ErrRelay, "connection to the hub was lost")
		case ev := <-svc.Events():
			fmt.Println(ui.EventLine(ev))
		case <-hup:
			stream, err := service.AcquireLocalMedia(ctx, src, want)
			if err != nil {
				ui.PrintWarning(err.Error())
			}
			if err := svc.ReplaceLocalMedia(ctx, stream); err != nil {
				ui.PrintWarning(err.Error())
				stopTracks(stream)
				continue
			}
			stopTracks(local)
			local = stream
			if stream.Len() == 0 {
				ui.PrintInfo("Local media released, receiving only")
			} else {
				ui.PrintInfof("Local media replaced with %s", stream.ID)
			}
			applyToggles(ctx, svc)
		}
	}
}

// stopTracks ends the capture pumps of a stream that is no longer sent.
func stopTracks(stream *domain.LocalStream) {
	if stream == nil {
		return
	}
	for _, t := range stream.Tracks {
		if s, ok := t.(interface{ Stop() }); ok {
			s.Stop()
		}
	}
}

func applyToggles(ctx context.Context, svc *service.CallService) {
	if flagJoinMuted {
		if err := svc.SetTrackEnabled(ctx, domain.TrackKindAudio, false); err != nil {
			log.Warn().Err(err).Msg("Cannot mute audio")
		}
	}
	if flagJoinNoCamera {
		if err := svc.SetTrackEnabled(ctx, domain.TrackKindVideo, false); err != nil {
			log.Warn().Err(err).Msg("Cannot disable video")
		}
	}
}

// leave prints the final mesh and leaves the room. It runs after the
// command context is cancelled, so it uses its own deadline.
func leave(svc *service.CallService, self domain.ParticipantID) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if sessions, err := svc.Sessions(ctx); err == nil {
		fmt.Println()
		fmt.Println(ui.MeshTableView(self, sessions))
	}
	fmt.Println(ui.StatsView(svc.Stats()))

	if err := svc.Stop(ctx); err != nil {
		ui.PrintWarning(err.Error())
		return
	}
	ui.PrintSuccessf("%s left the room", self)
}
