// Command k8090d runs the K8090 relay-card driver as a local HTTP +
// WebSocket service.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/velleman/k8090/internal/server"
)

func main() {
	var (
		addr = flag.String("addr", "127.0.0.1:8090", "http listen address")
		open = flag.Bool("open", false, "open the driver API base URL in your default browser on startup")
	)
	flag.Parse()

	s := server.New()
	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", *addr, err)
	}

	url := makeUIURL(*addr)
	log.Printf("k8090d listening on %s", *addr)
	log.Printf("API: %s", url)

	if *open && os.Getenv("K8090D_NO_OPEN") == "" {
		if err := openBrowser(url); err != nil {
			log.Printf("WARN: failed to open browser: %v", err)
		}
	}

	if err := http.Serve(ln, s.Handler()); err != nil {
		fmt.Println(err)
	}
}

// makeUIURL turns a listen address (host:port) into a browser-friendly
// URL, substituting 127.0.0.1 for wildcard addresses.
func makeUIURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("http://%s/", strings.TrimSpace(addr))
	}
	if host == "" || host == "0.0.0.0" || host == "::" || host == "[::]" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%s/", host, port)
}

// openBrowser opens url in the OS default browser, non-blocking.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("cmd", "/c", "start", "", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
