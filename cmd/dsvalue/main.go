// Command-line interface for the dataset value server.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/server"
	"github.com/janelia-flyem/dsvalue/storage"

	_ "github.com/janelia-flyem/dsvalue/storage/badger"
	_ "github.com/janelia-flyem/dsvalue/storage/memstore"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Address for http communication; overrides the config file.
	httpAddress = flag.String("http", "", "")

	// Profile CPU usage using standard gotest system.
	cpuprofile = flag.String("cpuprofile", "", "")
)

const helpMessage = `
dsvalue serves element values of typed, shaped datasets over HTTP

Usage: dsvalue [options] <command>

      -http       =string   Address for HTTP communication.
      -cpuprofile =string   Write CPU profile to this file.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help
	serve  <config.toml>
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *runVerbose {
		dsv.SetLogMode(dsv.DebugMode)
	}
	if *showHelp || flag.NArg() == 0 {
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

	if err := DoCommand(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// DoCommand runs a command that doesn't need a running server.
func DoCommand(args []string) error {
	switch args[0] {
	case "about":
		fmt.Printf("dsvalue %s\n", server.Version)
		fmt.Printf("Storage engines: %s\n", storage.EnginesAvailable())
		return nil
	case "serve":
		if len(args) != 2 {
			return fmt.Errorf("serve command requires a configuration file")
		}
		return DoServe(args[1])
	default:
		return fmt.Errorf("unknown command %q; see 'dsvalue help'", args[0])
	}
}

// DoServe loads the configuration, opens the store and serves until interrupted.
func DoServe(filename string) error {
	config, err := server.LoadConfig(filename)
	if err != nil {
		return err
	}
	if *httpAddress != "" {
		config.Server.HTTPAddress = *httpAddress
	}
	config.Logging.SetLogger()

	s, err := server.New(config)
	if err != nil {
		return err
	}

	// Capture ctrl+c and other interrupts.  Then handle graceful shutdown.
	stopSig := make(chan os.Signal, 1)
	go func() {
		sig := <-stopSig
		dsv.Infof("Stop signal captured: %q.  Shutting down...\n", sig)
		s.Close()
		dsv.CloseLog()
		pprof.StopCPUProfile()
		os.Exit(0)
	}()
	signal.Notify(stopSig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	err = s.Serve()
	s.Close()
	dsv.CloseLog()
	return err
}
