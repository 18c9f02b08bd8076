// Package profilers sets up the optional profiling of the training programs.
//
// If linked, it installs the flags -prof (HTTP pprof server port) and -cpu_profile (file).
package profilers

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagProfiler   = flag.Int("prof", -1, "If set, runs the HTTP profiler at the given port.")
	flagCPUProfile = flag.String("cpu_profile", "", "write cpu profile to `file`")
	flagKeepAlive  = flag.Bool("prof_keep_alive", false,
		"If set with -prof, the program is kept alive at the end until interrupted, so the profile can be read.")
)

// Profilers holds the state of the profilers started by Setup.
type Profilers struct {
	ctx        context.Context
	cpuProfile *os.File
	server     *http.Server
	addr       string
}

// Setup starts the HTTP (flag -prof) and CPU profilers (flag -cpu_profile), if they were configured.
// You should follow with a deferred call to OnQuit.
//
// ctx is used by OnQuit to know when to stop waiting, if -prof_keep_alive is set.
func Setup(ctx context.Context) (*Profilers, error) {
	p := &Profilers{ctx: ctx}
	if *flagCPUProfile != "" {
		if err := p.startCPUProfile(*flagCPUProfile); err != nil {
			return nil, err
		}
	}
	if *flagProfiler >= 0 {
		if err := p.startHTTPProfiler(*flagProfiler); err != nil {
			p.OnQuit()
			return nil, err
		}
	}
	return p, nil
}

func (p *Profilers) startCPUProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create CPU profile %q", path)
	}
	if err = pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "could not start CPU profile in %q", path)
	}
	p.cpuProfile = f
	klog.V(1).Infof("CPU profile being written to %q", path)
	return nil
}

// startHTTPProfiler listens on localhost at the given port, and serves the pprof handlers.
func (p *Profilers) startHTTPProfiler(port int) error {
	p.addr = fmt.Sprintf("localhost:%d", port)
	listener, err := net.Listen("tcp", p.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen for the HTTP profiler on %s", p.addr)
	}
	p.server = &http.Server{Handler: http.DefaultServeMux}
	fmt.Printf("Starting profiler on %s/debug/pprof\n", p.addr)
	fmt.Printf("- You can access it with: $ go tool pprof %s/debug/pprof/heap\n", p.addr)
	go func() {
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Errorf("HTTP profiler on %s failed: %+v", p.addr, err)
		}
	}()
	return nil
}

// OnQuit stops the profilers. It should be called before the exit of the main() function, typically
// as a deferred call just after Setup.
//
// If -prof_keep_alive is set, it keeps the program alive (with the HTTP profiler serving) until the
// context given to Setup is cancelled.
func (p *Profilers) OnQuit() {
	if p == nil {
		return
	}
	if p.cpuProfile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuProfile.Close(); err != nil {
			klog.Errorf("Failed to close CPU profile: %+v", err)
		}
		p.cpuProfile = nil
	}
	if p.server == nil {
		return
	}
	if *flagKeepAlive && p.ctx.Err() == nil {
		// Garbage collect, to see if there is anything leaking.
		for range 10 {
			runtime.GC()
		}
		fmt.Printf("- Program finished: kept alive with profiler opened at %s/debug/pprof\n", p.addr)
		fmt.Printf("- Interrupt (Ctrl+C) to exit\n")
		<-p.ctx.Done()
	}
	_ = p.server.Close()
	p.server = nil
}
