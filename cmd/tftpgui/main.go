package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/silopolis/tftpgui/internal/minilog"
	"github.com/silopolis/tftpgui/internal/server"
	"github.com/silopolis/tftpgui/internal/subnet"
	"github.com/silopolis/tftpgui/internal/tftp"
)

// tftpLogRotateBytes is the rotation threshold spec section 6 names for
// the tftplog file. lumberjack.Logger only rotates at whole-megabyte
// granularity, so byteRotatingWriter below counts bytes itself and
// calls Rotate() once the threshold is reached instead of relying on
// lumberjack's own MaxSize.
const tftpLogRotateBytes = 20000

// byteRotatingWriter wraps a *lumberjack.Logger and forces a rotation
// right after the write that brings the current file to
// tftpLogRotateBytes or more (so a file may exceed the threshold by at
// most that one write), far closer to spec section 6's "rotated at
// 20 000 bytes" than lumberjack's megabyte-granularity MaxSize can get.
type byteRotatingWriter struct {
	mu      sync.Mutex
	w       *lumberjack.Logger
	limit   int
	written int
}

func (b *byteRotatingWriter) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err := b.w.Write(p)
	if err != nil {
		return n, err
	}

	b.written += n
	if b.written >= b.limit {
		if rerr := b.w.Rotate(); rerr != nil {
			minilog.Error("rotating tftplog: %v", rerr)
		}
		b.written = 0
	}
	return n, nil
}

var (
	f_nogui      = flag.Bool("nogui", false, "serve immediately without waiting on a control channel")
	f_root       = flag.String("root", "", "tftp root directory (required)")
	f_logdir     = flag.String("logdir", "", "directory for the rotating tftplog file (required)")
	f_anyclient  = flag.Bool("anyclient", false, "allow requests from any client, bypassing the subnet check")
	f_clientip   = flag.String("clientip", "", "allowed client subnet address, e.g. 192.168.0.0 (ignored if -anyclient)")
	f_clientmask = flag.String("clientmask", "255.255.255.0", "allowed client subnet mask (ignored if -anyclient)")
	f_listenip   = flag.String("listenip", "", "address to bind to, empty means all interfaces")
	f_listenport = flag.Int("listenport", 69, "UDP port to listen on")
	f_metrics    = flag.String("metrics", "", "address to serve Prometheus /metrics on, e.g. :9109 (empty disables it)")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] configfile\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
  configfile is accepted as a positional argument for compatibility but is
  not read by this binary; all configuration comes from flags. Reading and
  validating a configuration file is an external collaborator's job.
`)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	minilog.AddLogger("stderr", os.Stderr, minilog.INFO)

	if *f_root == "" || *f_logdir == "" {
		minilog.Fatalln("-root and -logdir are required")
	}

	logFile := &lumberjack.Logger{
		Filename:   *f_logdir + string(os.PathSeparator) + "tftplog",
		MaxBackups: 5,
	}
	minilog.AddLogger("tftplog", &byteRotatingWriter{w: logFile, limit: tftpLogRotateBytes}, minilog.INFO)

	cfg := tftp.Config{
		TFTPRoot:      *f_root,
		LogDir:        *f_logdir,
		AnyClient:     *f_anyclient,
		ListenAddress: *f_listenip,
		ListenPort:    *f_listenport,
	}

	if !*f_anyclient {
		if *f_clientip == "" {
			minilog.Fatalln("-clientip is required unless -anyclient is set")
		}
		allow, err := subnet.Predicate(*f_clientip, *f_clientmask)
		if err != nil {
			minilog.Fatalln(err)
		}
		cfg.Allow = allow
	}

	state := server.New()
	engine := server.NewEngine(cfg, state)

	if *f_metrics != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(server.NewCollector(state))
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*f_metrics, nil); err != nil {
				minilog.Errorln("metrics listener:", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		minilog.Infoln("received interrupt, shutting down")
		state.Shutdown()
	}()

	if !*f_nogui {
		// Without a control channel attached, -nogui is effectively the
		// only supported mode this binary implements; an embedding UI
		// driving State.SetServing/State.Shutdown over its own channel
		// is the external collaborator spec section 1 excludes.
		minilog.Infoln("no GUI control channel implemented; serving immediately")
	}

	if err := engine.Run(); err != nil {
		minilog.Errorln(err)
		os.Exit(1)
	}
	os.Exit(0)
}
