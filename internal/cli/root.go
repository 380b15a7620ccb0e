package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/yamesh/internal/config"
	"github.com/Wyydra/yamesh/internal/logging"
	"github.com/Wyydra/yamesh/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flags      config.Options
	flagPretty bool
)

var rootCmd = &cobra.Command{
	Use:   "meshcall",
	Short: "Full-mesh WebRTC calls coordinated over a broadcast relay",
	Long: `meshcall joins a room and builds a direct WebRTC connection to every other
participant. Signaling travels over a shared broadcast relay: the yamesh hub
server, Redis Pub/Sub, or an in-process bus.`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.Relay, "relay", "", "relay backend: ws, redis or memory (env YAMESH_RELAY)")
	pf.StringVar(&flags.HubURL, "hub", "", "hub WebSocket URL (env YAMESH_HUB_URL)")
	pf.StringVar(&flags.Token, "token", "", "hub bearer token (env YAMESH_TOKEN)")
	pf.StringVar(&flags.RedisAddr, "redis", "", "Redis address (env YAMESH_REDIS_ADDR)")
	pf.StringVar(&flags.Codec, "codec", "", "signal encoding: json or msgpack (env YAMESH_CODEC)")
	pf.StringVar(&flags.STUNURLs, "stun", "", "comma separated STUN URLs (env YAMESH_STUN_URLS)")
	pf.StringVar(&flags.TURNURLs, "turn", "", "comma separated TURN URLs (env YAMESH_TURN_URLS)")
	pf.StringVar(&flags.TURNUser, "turn-user", "", "TURN username (env YAMESH_TURN_USERNAME)")
	pf.StringVar(&flags.TURNPass, "turn-pass", "", "TURN credential (env YAMESH_TURN_CREDENTIAL)")
	pf.BoolVar(&flags.ForceRelay, "force-relay", false, "only use TURN relay candidates (env YAMESH_FORCE_RELAY)")
	pf.IntVar(&flags.MaxPeers, "max-peers", 0, "maximum concurrent peers, -1 for no limit (env YAMESH_MAX_PEERS)")
	pf.DurationVar(&flags.PublishTimeout, "publish-timeout", 0, "bound on each relay publish (env YAMESH_PUBLISH_TIMEOUT)")
	pf.DurationVar(&flags.DisconnectTimeout, "disconnect-timeout", 0, "drop peers disconnected this long, 0 keeps them (env YAMESH_DISCONNECT_TIMEOUT)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "trace, debug, info, warn or error (env LOG_LEVEL)")
	pf.StringVar(&flags.JWTSecret, "jwt-secret", "", "hub signing secret, used to mint tokens (env YAMESH_JWT_SECRET)")
	pf.BoolVar(&flagPretty, "pretty", true, "human readable logs on stderr")

	rootCmd.AddCommand(joinCmd, demoCmd, tokenCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.LogLevel, flagPretty)
	return cfg, nil
}

// Execute runs the root command. Interrupts cancel the command context so
// that a running call can leave its room cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
