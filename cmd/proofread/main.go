// Command-line interface to the proofread server.  Loads a TOML config,
// resumes the most recent review session, and serves the HTTP API.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/janelia-flyem/proofread/proofread"
	"github.com/janelia-flyem/proofread/server"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to the TOML configuration file.
	configFile = flag.String("config", "", "")

	// Address for http communication, overriding the config file.
	httpAddress = flag.String("http", "", "")

	// Profile CPU usage using standard gotest system.
	cpuprofile = flag.String("cpuprofile", "", "")

	// Profile memory usage using standard gotest system.
	memprofile = flag.String("memprofile", "", "")

	// Number of logical CPUs to use.
	useCPU = flag.Int("numcpu", 0, "")
)

const helpMessage = `
proofread is a server for reviewing automated agglomerations of segmented EM volumes

Usage: proofread [options] serve

      -config     =string   Path to TOML configuration file.
      -http       =string   Address for HTTP communication, overriding config.
      -cpuprofile =string   Write CPU profile to this file.
      -memprofile =string   Write memory profile to this file on ctrl-C.
      -numcpu     =number   Number of logical CPUs to use.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

  For profiling, please refer to this excellent article:
  http://blog.golang.org/2011/06/profiling-go-programs.html
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Printf(helpMessage)
	}
	flag.Parse()

	if *runVerbose {
		proofread.Verbose = true
		proofread.SetLogMode(proofread.DebugMode)
	}
	if *showHelp || flag.NArg() == 0 || flag.Args()[0] != "serve" {
		flag.Usage()
		os.Exit(0)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if *useCPU != 0 {
		runtime.GOMAXPROCS(*useCPU)
	}

	if err := server.LoadConfig(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	// Capture ctrl+c and other interrupts.  Then handle graceful shutdown.
	stopSig := make(chan os.Signal, 1)
	go func() {
		for sig := range stopSig {
			log.Printf("Stop signal captured: %q.  Shutting down...\n", sig)
			if *memprofile != "" {
				log.Printf("Storing memory profiling to %s...\n", *memprofile)
				f, err := os.Create(*memprofile)
				if err != nil {
					log.Fatal(err)
				}
				pprof.WriteHeapProfile(f)
				f.Close()
			}
			if *cpuprofile != "" {
				log.Printf("Stopping CPU profiling to %s...\n", *cpuprofile)
				pprof.StopCPUProfile()
			}
			server.Shutdown()
			time.Sleep(1 * time.Second)
			os.Exit(0)
		}
	}()
	signal.Notify(stopSig, os.Interrupt, syscall.SIGTERM)

	if err := serve(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func serve() error {
	logConfig := server.LogConfig()
	logConfig.SetLogger()
	if *httpAddress != "" {
		server.SetHTTPAddress(*httpAddress)
	}

	proofread.Infof("proofread version %s\n", server.Version)
	if note := server.Note(); note != "" {
		proofread.Infof("Server note: %s\n", note)
	}
	return server.Serve()
}
