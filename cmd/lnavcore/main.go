// Command lnavcore is a standalone command-line front end for the line
// buffer, piper and grep worker core: it greps a local file, an SSH
// tail of a remote file, or stdin, and prints matches as they arrive
// instead of driving lnav's interactive text UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/mimecast/lnavcore/internal/archivelock"
	"github.com/mimecast/lnavcore/internal/config"
	"github.com/mimecast/lnavcore/internal/grepworker"
	"github.com/mimecast/lnavcore/internal/io/dlog"
	"github.com/mimecast/lnavcore/internal/io/signal"
	"github.com/mimecast/lnavcore/internal/linebuf"
	"github.com/mimecast/lnavcore/internal/lineindex"
	"github.com/mimecast/lnavcore/internal/metrics"
	"github.com/mimecast/lnavcore/internal/piper"
	"github.com/mimecast/lnavcore/internal/pollset"
	"github.com/mimecast/lnavcore/internal/profiling"
	"github.com/mimecast/lnavcore/internal/remotesource"
	"github.com/mimecast/lnavcore/internal/version"
)

func main() {
	var (
		displayVersion bool
		metricsAddr    string
		archivePath    string

		remoteHost    string
		remotePort    int
		remoteUser    string
		remoteKey     string
		knownHosts    string
		trustAllHosts bool
		remoteCommand string

		profFlags profiling.Flags
	)

	flag.BoolVar(&displayVersion, "version", false, "print version and exit")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.StringVar(&archivePath, "archive", "", "path to a staged archive; held under an advisory lock while open")

	flag.StringVar(&remoteHost, "remote-host", "", "if set, tail a file over SSH on this host instead of a local path")
	flag.IntVar(&remotePort, "remote-port", 22, "SSH port for -remote-host")
	flag.StringVar(&remoteUser, "remote-user", "", "SSH user for -remote-host")
	flag.StringVar(&remoteKey, "remote-key", "", "path to a private key for -remote-host")
	flag.StringVar(&knownHosts, "remote-known-hosts", "", "known_hosts file for -remote-host (defaults to ~/.ssh/known_hosts)")
	flag.BoolVar(&trustAllHosts, "remote-trust-all-hosts", false, "skip SSH host key verification")
	flag.StringVar(&remoteCommand, "remote-command", "", "remote command to run (defaults to tail -f <path>)")

	profiling.AddFlags(&profFlags)

	// config.ParseArgs registers the core's own flags (-e, -v, -cfg, ...)
	// and calls flag.Parse for the whole set, including everything above.
	args := config.ParseArgs()

	if displayVersion {
		version.PrintAndExit(args.NoColor)
	}

	cfg, err := config.Load(args.ConfigFile, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lnavcore:", err)
		os.Exit(1)
	}

	dlog.Common.SetLevel(dlog.ParseLevel(cfg.LogLevel))

	profiler := profiling.NewProfiler(profFlags.ToConfig("lnavcore"))
	defer profiler.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hintCh := signal.InterruptCh(ctx)
	go func() {
		for hint := range hintCh {
			fmt.Fprintln(os.Stderr, hint)
		}
	}()

	if metricsAddr != "" {
		srv := metrics.NewServer(metricsAddr)
		errCh := make(chan error, 1)
		srv.Start(errCh)
		go func() {
			if err := <-errCh; err != nil {
				dlog.Common.Error("lnavcore", "metrics server failed", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if args.PprofAddr != "" {
		go http.ListenAndServe(args.PprofAddr, nil)
		dlog.Common.Info("lnavcore", "started pprof", args.PprofAddr)
	}

	if archivePath != "" {
		guard, err := archivelock.Acquire(archivePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lnavcore:", err)
			os.Exit(1)
		}
		defer guard.Release()
	}

	input, directFile, err := openInput(args, remoteHost, remoteOptions(remoteHost, remotePort, remoteUser, remoteKey, knownHosts, trustAllHosts, remoteCommand))
	if err != nil {
		fmt.Fprintln(os.Stderr, "lnavcore:", err)
		os.Exit(1)
	}

	lb := linebuf.New(cfg.MaxBufferBytes)

	var job *piper.Job
	if directFile {
		if err := lb.Attach(input); err != nil {
			fmt.Fprintln(os.Stderr, "lnavcore:", err)
			os.Exit(1)
		}
	} else {
		mode := piper.TimestampOff
		if cfg.TimestampMode == config.TimestampPrefix {
			mode = piper.TimestampPrependISO8601MS
		}
		job, err = piper.Start(ctx, input, mode, cfg.ScratchDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lnavcore:", err)
			os.Exit(1)
		}
		if err := lb.Attach(job.ScratchFile()); err != nil {
			fmt.Fprintln(os.Stderr, "lnavcore:", err)
			os.Exit(1)
		}
	}

	idx := lineindex.New(lb)

	worker, err := grepworker.NewFromPattern(args.RegexStr, args.RegexInvert, idx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lnavcore:", err)
		os.Exit(1)
	}
	worker.SetSink(newCLISink(idx, args.NoColor, args.Quiet))
	worker.SetControl(cliControl{})

	pset := pollset.New(0, 0)
	pset.Add(worker)
	if job != nil {
		pset.Add(job)
	}

	worker.QueueRequest(0, grepworker.EndOfSource)
	if err := worker.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "lnavcore:", err)
		os.Exit(1)
	}

	driveToCompletion(ctx, cancel, pset, worker, job)
	worker.Terminate()
}

// driveToCompletion pumps pset until the input is fully drained and the
// worker has caught up with it: pset.RunOnce dispatches buffered
// matches every tick, and once the worker reports CaughtUp (its queue
// ran dry) we either stop, if the source is exhausted, or queue one
// more scan from the high-water mark, if a piper job is still feeding
// new bytes in (so a tail -f style remote or pipe source keeps
// yielding matches as they appear rather than only on the first pass).
// Re-queuing only on CaughtUp, instead of every tick, is what keeps a
// still-draining source from re-scanning (and re-emitting matches for)
// the same trailing line over and over.
func driveToCompletion(ctx context.Context, cancel context.CancelFunc, pset *pollset.Set, worker *grepworker.Worker, job *piper.Job) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pset.RunOnce()

			if !worker.CaughtUp() {
				continue
			}

			stillFeeding := job != nil && !job.IsFinished()
			if stillFeeding {
				worker.QueueRequest(grepworker.EndOfSource, grepworker.EndOfSource)
				continue
			}

			// Flush whatever the final request's high-water frame left
			// buffered before declaring the run over.
			for pset.RunOnce() > 0 {
			}
			cancel()
			return
		}
	}
}

// openInput resolves the -remote-host, positional path, or stdin input
// shapes into a descriptor and reports whether it can be attached to a
// LineBuffer directly (a seekable regular file) or needs piper to drain
// it into a scratch file first.
func openInput(args *config.Args, remoteHost string, remoteOpts remotesource.Options) (*os.File, bool, error) {
	if remoteHost != "" {
		remoteOpts.RemotePath = args.What
		sess, err := remotesource.Dial(remoteOpts)
		if err != nil {
			return nil, false, err
		}
		return sess.Stdout(), false, nil
	}

	if args.What == "" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, false, fmt.Errorf("no file, -remote-host or piped stdin given")
		}
		return os.Stdin, false, nil
	}

	f, err := os.Open(args.What)
	if err != nil {
		return nil, false, err
	}
	info, err := f.Stat()
	if err == nil && info.Mode().IsRegular() {
		return f, true, nil
	}
	return f, false, nil
}

func remoteOptions(host string, port int, user, key, knownHosts string, trustAll bool, command string) remotesource.Options {
	return remotesource.Options{
		Host:           host,
		Port:           port,
		User:           user,
		PrivateKeyPath: key,
		KnownHostsPath: knownHosts,
		TrustAllHosts:  trustAll,
		Command:        command,
	}
}
