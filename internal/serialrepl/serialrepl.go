// Package serialrepl implements the provisioning REPL (spec.md §4.4): a
// line-oriented command grammar run once, on cold boot, over whatever serial
// port a platform adapter supplies. It is invoked exactly once per power
// cycle and never used again once the node reaches AwaitingInstructions or
// Operational.
package serialrepl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/henryshunt/psn-node-go/internal/constants"
	"github.com/henryshunt/psn-node-go/internal/corestate"
	"github.com/henryshunt/psn-node-go/internal/logging"
)

// AwaitEntry waits up to timeout for the first byte on r. If none arrives it
// reports entered=false and the caller should close the port and proceed
// with the rest of cold boot. If a byte arrives, entered=true and the
// returned reader yields that byte followed by the rest of r, ready to hand
// to Serve.
func AwaitEntry(ctx context.Context, r io.Reader, timeout time.Duration) (entered bool, rest io.Reader, err error) {
	type readResult struct {
		b   [1]byte
		n   int
		err error
	}
	done := make(chan readResult, 1)
	go func() {
		var res readResult
		res.n, res.err = r.Read(res.b[:])
		done <- res
	}()

	select {
	case <-ctx.Done():
		return false, r, ctx.Err()
	case <-time.After(timeout):
		return false, r, nil
	case res := <-done:
		if res.n == 0 {
			if res.err != nil && res.err != io.EOF {
				return false, r, res.err
			}
			return false, r, nil
		}
		return true, io.MultiReader(bytes.NewReader(res.b[:res.n]), r), nil
	}
}

// Serve runs the REPL to completion: it processes commands from r, writing
// responses to w, until r returns EOF/an error or ctx is cancelled. Per
// spec.md §4.4 this is entered permanently for the power cycle — a real
// platform adapter never expects Serve to return.
func Serve(ctx context.Context, w io.Writer, r io.Reader, mac string, store corestate.ConfigStore, clock corestate.Clock) error {
	log := logging.Default().With("component", "serialrepl")
	log.Info("provisioning REPL entered", "mac", mac)

	buf := make([]byte, 0, constants.SerialCommandMaxLen+1)
	overflowed := false
	one := make([]byte, 1)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := r.Read(one)
		if n == 0 {
			if err == io.EOF {
				if len(buf) > 0 || overflowed {
					// A command cut off without its terminator is an error.
					writeLine(w, "ERROR")
				}
				return nil
			}
			if err != nil {
				return err
			}
			continue
		}

		b := one[0]
		if b == '\n' {
			if overflowed {
				writeLine(w, "ERROR")
			} else {
				handleCommand(ctx, w, string(buf), mac, store, clock, log)
			}
			buf = buf[:0]
			overflowed = false
			continue
		}

		if len(buf) >= constants.SerialCommandMaxLen {
			overflowed = true
			continue // keep draining until the terminator, per spec.md §4.4
		}
		buf = append(buf, b)
	}
}

func handleCommand(ctx context.Context, w io.Writer, line, mac string, store corestate.ConfigStore, clock corestate.Clock, log *logging.Logger) {
	switch {
	case line == "PING":
		writeLine(w, "PSN_NODE")

	case line == "READ_CONFIG":
		cfg, err := store.Load(ctx)
		if err != nil {
			log.Warn("READ_CONFIG failed", "error", err)
			writeLine(w, "ERROR")
			return
		}
		body, err := json.Marshal(configDoc{
			MAC:               mac,
			NetworkSSID:       cfg.NetworkSSID,
			NetworkEnterprise: cfg.NetworkEnterprise,
			NetworkUsername:   cfg.NetworkUsername,
			NetworkPassword:   cfg.NetworkPassword,
			ServerAddress:     cfg.ServerAddress,
			ServerPort:        cfg.ServerPort,
			NetworkTimeout:    cfg.NetworkTimeoutSecs,
			LoggerTimeout:     cfg.LoggerTimeoutSecs,
		})
		if err != nil {
			writeLine(w, "ERROR")
			return
		}
		fmt.Fprintf(w, "%s\n", body)

	case hasPrefix(line, "WRITE_CONFIG "):
		var d configDoc
		if err := json.Unmarshal([]byte(line[len("WRITE_CONFIG "):]), &d); err != nil {
			writeLine(w, "ERROR")
			return
		}
		cfg := corestate.Configuration{
			NetworkSSID:        d.NetworkSSID,
			NetworkEnterprise:  d.NetworkEnterprise,
			NetworkUsername:    d.NetworkUsername,
			NetworkPassword:    d.NetworkPassword,
			ServerAddress:      d.ServerAddress,
			ServerPort:         d.ServerPort,
			NetworkTimeoutSecs: d.NetworkTimeout,
			LoggerTimeoutSecs:  d.LoggerTimeout,
		}
		if err := cfg.Validate(); err != nil {
			writeLine(w, "ERROR")
			return
		}
		if err := store.Save(ctx, cfg); err != nil {
			log.Warn("WRITE_CONFIG save failed", "error", err)
			writeLine(w, "ERROR")
			return
		}
		writeLine(w, "OK")

	case line == "READ_TIME":
		now, valid, err := clock.Now(ctx)
		if err != nil {
			writeLine(w, "ERROR")
			return
		}
		body, _ := json.Marshal(timeDoc{
			Time: now.UTC().Format("2006-01-02T15:04:05Z"),
			Valid: valid,
		})
		fmt.Fprintf(w, "%s\n", body)

	case hasPrefix(line, "WRITE_TIME "):
		var d writeTimeDoc
		if err := json.Unmarshal([]byte(line[len("WRITE_TIME "):]), &d); err != nil {
			writeLine(w, "ERROR")
			return
		}
		unix := int64(d.Time) + constants.Epoch2000Offset
		if err := clock.SetTime(ctx, time.Unix(unix, 0).UTC()); err != nil {
			writeLine(w, "ERROR")
			return
		}
		writeLine(w, "OK")

	default:
		writeLine(w, "ERROR")
	}
}

// configDoc mirrors the exact key order/names of spec.md §4.4's READ_CONFIG
// response and WRITE_CONFIG request bodies.
type configDoc struct {
	MAC               string `json:"madr"`
	NetworkSSID       string `json:"nnam"`
	NetworkEnterprise bool   `json:"nent"`
	NetworkUsername   string `json:"nunm"`
	NetworkPassword   string `json:"npwd"`
	ServerAddress     string `json:"ladr"`
	ServerPort        uint16 `json:"lprt"`
	NetworkTimeout    uint8  `json:"tnet"`
	LoggerTimeout     uint8  `json:"tlog"`
}

type timeDoc struct {
	Time  string `json:"time"`
	Valid bool   `json:"tvld"`
}

// writeTimeDoc's Time field is u32 seconds since the original firmware's
// January 1st 2000 epoch (spec.md §4.4), not Unix seconds.
type writeTimeDoc struct {
	Time uint32 `json:"time"`
}

func writeLine(w io.Writer, s string) {
	fmt.Fprintf(w, "%s\n", s)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
