package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/guiperry/adbhostusb/internal/adberr"
	"github.com/guiperry/adbhostusb/internal/config"
	"github.com/guiperry/adbhostusb/internal/rsakey"
	"github.com/guiperry/adbhostusb/internal/session"
	"github.com/guiperry/adbhostusb/internal/usbtransport"
)

func main() {
	vendorFlag := flag.Uint("vendor", 0, "USB vendor ID in hex, e.g. 0x18d1 (0 autodetects)")
	productFlag := flag.Uint("product", 0, "USB product ID in hex, e.g. 0x4ee2 (0 autodetects)")
	keyPathFlag := flag.String("key", "", "path to a PKCS#8 PEM private key (required, or set ADB_KEY_PATH)")
	timeoutFlag := flag.Duration("timeout", 0, "per-operation I/O timeout (defaults to config)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	vendorID := uint16(*vendorFlag)
	productID := uint16(*productFlag)
	if vendorID == 0 && productID == 0 {
		vendorID, productID = cfg.VendorID, cfg.ProductUSBID
	}

	fmt.Println("Phase 1: Locating device")
	if vendorID == 0 && productID == 0 {
		vendorID, productID, err = usbtransport.Search()
		if err != nil {
			fmt.Fprintf(os.Stderr, "search: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  autodetected vendor=%#04x product=%#04x\n", vendorID, productID)
	} else {
		fmt.Printf("  using configured vendor=%#04x product=%#04x\n", vendorID, productID)
	}

	keyPath := *keyPathFlag
	if keyPath == "" {
		keyPath = cfg.KeyPath
	}
	if keyPath == "" {
		fmt.Fprintln(os.Stderr, "key: no path given; pass --key or set ADB_KEY_PATH")
		os.Exit(1)
	}

	fmt.Println("Phase 2: Loading signing key")
	key, err := rsakey.LoadOrGenerate(keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "key: %v\n", err)
		os.Exit(1)
	}

	timeout := *timeoutFlag
	if timeout == 0 {
		timeout = cfg.ConnectTimeout
	}

	fmt.Println("Phase 3: Running CNXN/AUTH handshake")
	transport := usbtransport.New(vendorID, productID)
	sess := session.New(transport, key, cfg.ProductID, timeout)

	start := time.Now()
	if err := sess.Connect(); err != nil {
		if adberr.Is(err, adberr.KindAuthTimeout) {
			fmt.Fprintln(os.Stderr, "handshake: device did not confirm the RSA key prompt in time")
		}
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer sess.Disconnect()

	fmt.Printf("connected in %v: max_data=%d authenticated=%v\n", time.Since(start), sess.MaxData, sess.Authenticated)
}
