package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	logging "github.com/ipfs/go-log/v2"

	"github.com/Laegel/votingdapp/config"
	"github.com/Laegel/votingdapp/identity"
	"github.com/Laegel/votingdapp/network"
	"github.com/Laegel/votingdapp/node"
	"github.com/Laegel/votingdapp/store"
)

var log = logging.Logger("votingdapp:main")

// stdoutEmitter is the default UI collaborator: one JSON object per line
// on stdout, ready for a front end to consume. The bridge loop and the
// command loop both emit, hence the mutex.
type stdoutEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newStdoutEmitter() *stdoutEmitter {
	return &stdoutEmitter{enc: json.NewEncoder(os.Stdout)}
}

type uiEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (e *stdoutEmitter) Emit(event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(uiEvent{Event: event, Payload: payload}); err != nil {
		log.Errorw("failed to emit UI event", "event", event, "err", err)
	}
}

func defaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve user config dir: %w", err)
	}
	return filepath.Join(base, "votingdapp"), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	dataDir := flag.String("data", cfg.DataDir, "data directory (default: OS user config dir)")
	listenAddr := flag.String("listen", cfg.Network.ListenAddr, "listen multiaddr")
	logLevel := flag.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	topic := flag.String("topic", cfg.Network.Topic, "gossip topic")
	enableDHT := flag.Bool("dht", cfg.Network.EnableDHT, "enable DHT rendezvous discovery")
	bootstrap := flag.String("bootstrap", "", "comma-separated bootstrap peer multiaddrs")
	flag.Parse()

	cfg.Network.ListenAddr = *listenAddr
	cfg.Network.Topic = *topic
	cfg.Network.EnableDHT = *enableDHT
	if *bootstrap != "" {
		cfg.Network.BootstrapPeers = strings.Split(*bootstrap, ",")
	}

	lvl, err := logging.Parse(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", *logLevel, err)
		os.Exit(1)
	}
	logging.SetAllLoggers(lvl)

	if *dataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		*dataDir = dir
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "cannot create data dir %s: %v\n", *dataDir, err)
		os.Exit(1)
	}

	id, err := identity.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate identity: %v\n", err)
		os.Exit(1)
	}
	log.Infow("peer identity", "peer", id.String(), "fingerprint", id.Fingerprint())

	net, err := network.New(id, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create network: %v\n", err)
		os.Exit(1)
	}
	if err := net.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start network: %v\n", err)
		os.Exit(1)
	}

	st := store.New(filepath.Join(*dataDir, cfg.Store.FileName))
	ui := newStdoutEmitter()
	n := node.New(id, net, st, ui, cfg.UI.EventBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go n.Run(ctx)

	// Hand the front end its bootstrap state, like the original UI did on
	// its first ping.
	n.EmitLanguages()
	if err := n.EmitVotes(); err != nil {
		log.Warnw("failed to emit initial votes", "err", err)
	}

	go commandLoop(n)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("shutting down", "signal", sig)

	cancel()
	if err := net.Close(); err != nil {
		log.Warnw("error closing network", "err", err)
	}
}

// commandLoop reads interactive commands from stdin:
//
//	ls p           list discovered peers
//	ls v           list local votes
//	ls v all       request all peers' public votes
//	ls v <peer>    request one peer's public votes
//	new <name>     add a private vote
//	publish <id>   make a vote public
func commandLoop(n *node.Node) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "ls p":
			for _, p := range n.Peers() {
				fmt.Println(p)
			}
		case line == "ls v":
			if err := n.EmitVotes(); err != nil {
				log.Errorw("error fetching local votes", "err", err)
			}
		case line == "ls v all":
			if err := n.RequestAll(); err != nil {
				log.Errorw("error broadcasting list request", "err", err)
			}
		case strings.HasPrefix(line, "ls v "):
			if err := n.RequestOne(strings.TrimPrefix(line, "ls v ")); err != nil {
				log.Errorw("error sending targeted list request", "err", err)
			}
		case strings.HasPrefix(line, "new "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "new "))
			if name == "" {
				fmt.Println("usage: new <name>")
				continue
			}
			vote, err := n.AddVote(name)
			if err != nil {
				log.Errorw("could not add vote", "err", err)
				continue
			}
			fmt.Printf("added vote %d: %s\n", vote.ID, vote.Name)
		case strings.HasPrefix(line, "publish "):
			id, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, "publish ")), 10, 64)
			if err != nil {
				fmt.Println("usage: publish <id>")
				continue
			}
			if err := n.MarkPublic(id); err != nil {
				log.Errorw("could not publish vote", "id", id, "err", err)
			}
		case line == "":
		default:
			fmt.Println("commands: ls p | ls v | ls v all | ls v <peer> | new <name> | publish <id>")
		}
	}
}
