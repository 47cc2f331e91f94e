// memcorectl is a minimal ops CLI for talking to a running memcored's
// control surface: status, stats, and an on-demand maintenance trigger.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
)

func main() {
	addr := flag.String("addr", "http://localhost:8088", "memcored control surface base address")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var err error
	switch args[0] {
	case "stats":
		err = showStats(client, *addr)
	case "trigger-maintenance":
		err = triggerMaintenance(client, *addr)
	case "ping":
		err = ping(client, *addr)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("memcorectl: %v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: memcorectl [-addr http://host:port] <stats|trigger-maintenance|ping>")
}

func showStats(client *http.Client, addr string) error {
	body, err := get(client, addr+"/v1/stats")
	if err != nil {
		return err
	}
	var stats map[string]interface{}
	if err := json.Unmarshal(body, &stats); err != nil {
		return fmt.Errorf("decoding stats response: %w", err)
	}

	color.Cyan("tier counts")
	fmt.Printf("  hot:  %v\n", stats["HotCount"])
	fmt.Printf("  warm: %v\n", stats["WarmCount"])
	fmt.Printf("  cold: %v\n", stats["ColdCount"])
	color.Cyan("overflow log depth")
	fmt.Printf("  %v\n", stats["OverflowDepth"])
	return nil
}

func triggerMaintenance(client *http.Client, addr string) error {
	resp, err := client.Post(addr+"/v1/maintenance/trigger", "application/json", nil)
	if err != nil {
		return fmt.Errorf("requesting maintenance trigger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("maintenance trigger returned %s", resp.Status)
	}
	color.Green("maintenance cycle triggered")
	return nil
}

func ping(client *http.Client, addr string) error {
	resp, err := client.Get(addr + "/ping")
	if err != nil {
		return fmt.Errorf("pinging %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping returned %s", resp.Status)
	}
	color.Green("ok")
	return nil
}

func get(client *http.Client, url string) ([]byte, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
