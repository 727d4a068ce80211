package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"github.com/brew-lab/thaumic-cast/internal/config"
)

// realCaptureSource reads newline-delimited CaptureBlock JSON records
// from an io.Reader. Production callers bind the host's tab-capture
// callback directly; this exists so the CLI entrypoint can be driven
// by a file or pipe for manual testing, matching the teacher's own
// habit of keeping the process entrypoint thin and swappable.
type realCaptureSource struct {
	dec *json.Decoder
}

func newRealCaptureSource(r io.Reader) *realCaptureSource {
	return &realCaptureSource{dec: json.NewDecoder(r)}
}

func (c *realCaptureSource) NextBlock() (CaptureBlock, bool) {
	var block CaptureBlock
	if err := c.dec.Decode(&block); err != nil {
		return CaptureBlock{}, false
	}
	return block, true
}

func main() {
	initPath := flag.String("init", "", "path to an INIT payload JSON file (defaults to reading from stdin)")
	capturePath := flag.String("capture", "", "path to a newline-delimited CaptureBlock JSON file (defaults to stdin, after the init payload)")
	flag.Parse()

	var initReader io.Reader = os.Stdin
	if *initPath != "" {
		f, err := os.Open(*initPath)
		if err != nil {
			log.Fatalf("main: open init payload: %v", err)
		}
		defer f.Close()
		initReader = f
	}

	var cfg config.SessionConfig
	initDec := json.NewDecoder(initReader)
	if err := initDec.Decode(&cfg); err != nil {
		log.Fatalf("main: decode init payload: %v", err)
	}

	// The init decoder may have read past the payload; when both come
	// from stdin, its buffered remainder starts the capture stream.
	var captureReader io.Reader = os.Stdin
	if *initPath == "" {
		captureReader = io.MultiReader(initDec.Buffered(), os.Stdin)
	}
	if *capturePath != "" {
		f, err := os.Open(*capturePath)
		if err != nil {
			log.Fatalf("main: open capture file: %v", err)
		}
		defer f.Close()
		captureReader = f
	}
	capture := newRealCaptureSource(captureReader)

	sess := NewSession()
	go logEvents(sess)

	if err := sess.Start(cfg, capture); err != nil {
		log.Fatalf("main: session ended with error: %v", err)
	}
}

// logEvents logs every supervisor envelope to stderr via the standard
// log package, mirroring the teacher's own ambient choice of stdlib
// logging over a structured logging library.
func logEvents(sess *Session) {
	for ev := range sess.Events() {
		log.Printf("session: %s %+v", ev.Type, ev.Payload)
	}
}
