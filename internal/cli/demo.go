package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/Wyydra/yamesh/internal/adapter/driven/media/pion"
	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/service"
	"github.com/Wyydra/yamesh/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	flagDemoPeers    int
	flagDemoDuration time.Duration
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run several participants in one process over an in-process relay",
	Long: `Start several participants in this process, all joined to the same room over
the in-process relay, and print the mesh each of them built.

Examples:
  meshcall demo
  meshcall demo --peers 4 --duration 10s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.Context())
	},
}

func init() {
	demoCmd.Flags().IntVarP(&flagDemoPeers, "peers", "p", 3, "number of participants")
	demoCmd.Flags().DurationVar(&flagDemoDuration, "duration", 5*time.Second, "how long the call lasts")
}

type demoPeer struct {
	id  domain.ParticipantID
	svc *service.CallService
	src *pion.Source
}

func runDemo(ctx context.Context) error {
	if flagDemoPeers < 2 {
		return fmt.Errorf("a demo needs at least 2 peers, got %d", flagDemoPeers)
	}
	flags.Relay = "memory"
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	room := domain.NewRoomID()
	relay, closeRelay, err := openRelay(ctx, cfg, room, "")
	if err != nil {
		return err
	}
	defer closeRelay()

	factory, err := newTransportFactory(cfg)
	if err != nil {
		return err
	}

	peers := make([]*demoPeer, flagDemoPeers)
	for i := range peers {
		svc, err := newCallService(cfg, relay, factory)
		if err != nil {
			return err
		}
		peers[i] = &demoPeer{
			id:  domain.ParticipantID(fmt.Sprintf("peer-%d", i+1)),
			svc: svc,
			src: pion.NewSource(domain.MediaConstraints{Audio: true, Video: true}),
		}
		defer peers[i].src.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range peers {
		p := p
		g.Go(func() error {
			local, err := service.AcquireLocalMedia(gctx, p.src, domain.MediaConstraints{Audio: true, Video: true})
			if err != nil {
				ui.PrintWarning(err.Error())
			}
			return p.svc.Start(gctx, room, p.id, local)
		})
	}
	err = g.Wait()
	defer stopDemo(peers)
	if err != nil {
		return err
	}
	ui.PrintInfof("%d peers joined %s", len(peers), room)

	timer := time.NewTimer(flagDemoDuration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	for _, p := range peers {
		sessions, err := p.svc.Sessions(context.Background())
		if err != nil {
			continue
		}
		fmt.Println(ui.MeshTableView(p.id, sessions))
	}
	return nil
}

func stopDemo(peers []*demoPeer) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	var g errgroup.Group
	for _, p := range peers {
		p := p
		g.Go(func() error { return p.svc.Stop(ctx) })
	}
	if err := g.Wait(); err != nil {
		ui.PrintWarning(err.Error())
	}
}
