package main

import (
	"log"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"cdemu/device"
	_ "cdemu/image/nrg"
	_ "cdemu/image/toc"
	"cdemu/transport"
)

var (
	imagePath        string
	socketPath       string
	daemonDebugMask  uint32
	libraryDebugMask uint32
)

var rootCmd = &cobra.Command{
	Use:                   "cdemud",
	Short:                 "Run the virtual CD/DVD-ROM command engine daemon",
	Long:                  `cdemud listens on a unix socket and answers CDB requests framed by cdemu/transport against one emulated optical drive.`,
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&imagePath, "image", "i", "", "disc image to load at startup (.toc, .cue, or .nrg)")
	rootCmd.Flags().StringVarP(&socketPath, "socket", "s", "/tmp/cdemu.sock", "unix socket the transport bridge listens on")
	rootCmd.Flags().Uint32Var(&daemonDebugMask, "daemon-debug-mask", 0, "daemon-side debug flags")
	rootCmd.Flags().Uint32Var(&libraryDebugMask, "library-debug-mask", 0, "command-engine debug flags")
}

func runDaemon() {
	dev := device.NewDevice()
	if err := dev.SetOption("daemon-debug-mask", strconv.FormatUint(uint64(daemonDebugMask), 10)); err != nil {
		log.Fatalf("cdemud: %v", err)
	}
	if err := dev.SetOption("library-debug-mask", strconv.FormatUint(uint64(libraryDebugMask), 10)); err != nil {
		log.Fatalf("cdemud: %v", err)
	}
	if imagePath != "" {
		if err := dev.Load([]string{imagePath}); err != nil {
			log.Fatalf("cdemud: load %s: %v", imagePath, err)
		}
		log.Printf("cdemud: loaded %s", imagePath)
	}

	os.Remove(socketPath)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		log.Fatalf("cdemud: listen: %v", err)
	}
	defer l.Close()
	log.Printf("cdemud: listening on %s (debug mask daemon=%#x library=%#x)", socketPath, daemonDebugMask, libraryDebugMask)

	for {
		conn, err := l.Accept()
		if err != nil {
			log.Printf("cdemud: accept: %v", err)
			continue
		}
		go serveConn(dev, conn)
	}
}

func serveConn(dev *device.Device, conn net.Conn) {
	defer conn.Close()
	bridge := transport.NewBridge(conn)
	if err := dev.Serve(bridge); err != nil {
		log.Printf("cdemud: connection closed: %v", err)
	}
}
