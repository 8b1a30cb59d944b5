// Command mockhec runs a fake HTTP event collector for local runs.
//
// Usage:
//
//	mockhec [flags]
//
// Flags:
//
//	--port       Port to listen on (default: 8088)
//	--host       Host to bind to (default: localhost)
//	--token      Accepted token, empty accepts any
//	--fail-rate  Percentage of requests answered with 503
//	--delay      Delay added to every request
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"sortie/testserver"
)

func main() {
	port := flag.Int("port", 8088, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	token := flag.String("token", "", "accepted HEC token (empty accepts any)")
	failRate := flag.Int("fail-rate", 0, "percentage of requests answered with 503")
	delay := flag.Duration("delay", 0, "delay added to every request")
	flag.Parse()

	server := testserver.NewServer(testserver.Options{
		Token:    *token,
		FailRate: *failRate,
		Delay:    *delay,
	})
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("Sortie Mock Collector")
	fmt.Println("=====================")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  POST /services/collector/event  - JSON event ingestion")
	fmt.Println("  POST /services/collector/raw    - Raw line ingestion")
	fmt.Println("  GET  /services/collector/health - Health check")
	fmt.Println("  GET  /stats                     - Received counters")
	fmt.Println()

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		st := server.Stats()
		logrus.WithFields(logrus.Fields{
			"events":   st.Events,
			"raw":      st.Raw,
			"rejected": st.Rejected,
			"failed":   st.Failed,
		}).Info("shutting down")
		srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Fatal(err)
	}
}
