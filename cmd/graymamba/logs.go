package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/graymamba/pkg/config"
)

func runLogs() {
	logsFlags := flag.NewFlagSet("logs", flag.ExitOnError)
	configFile := logsFlags.String("config", "", "Path to config file")
	follow := logsFlags.Bool("f", false, "Follow log output")
	lines := logsFlags.Int("n", 100, "Number of lines to show")
	since := logsFlags.String("since", "", "Show logs since timestamp (RFC3339 format)")
	if err := logsFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := config.MustLoad(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logOutput := cfg.Logging.Output
	if logOutput == "stdout" || logOutput == "stderr" {
		log.Fatalf("server is configured to log to %s, not a file\nset 'logging.output' to a file path to use this command", logOutput)
	}
	if _, err := os.Stat(logOutput); os.IsNotExist(err) {
		log.Fatalf("log file not found: %s", logOutput)
	}

	var sinceTime time.Time
	if *since != "" {
		sinceTime, err = time.Parse(time.RFC3339, *since)
		if err != nil {
			log.Fatalf("invalid --since format (use RFC3339): %v", err)
		}
	}

	if *follow {
		if err := followLogs(logOutput, *lines, sinceTime); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := showLogs(logOutput, *lines, sinceTime); err != nil {
		log.Fatal(err)
	}
}

// showLogs prints the last n lines of logFile, skipping any line whose
// timestamp precedes since (when since is non-zero).
func showLogs(logFile string, n int, since time.Time) error {
	file, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var allLines []string
	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !since.IsZero() {
			if lineTime := extractTimestamp(line); !lineTime.IsZero() && lineTime.Before(since) {
				continue
			}
		}
		allLines = append(allLines, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	start := 0
	if len(allLines) > n {
		start = len(allLines) - n
	}
	for _, line := range allLines[start:] {
		fmt.Println(line)
	}
	return nil
}

// followLogs shows the last initialLines lines, then tails logFile for
// new writes until interrupted.
func followLogs(logFile string, initialLines int, since time.Time) error {
	if err := showLogs(logFile, initialLines, since); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(logFile); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	file, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of log file: %w", err)
	}
	reader := bufio.NewReader(file)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "Following %s (Ctrl+C to stop)...\n", logFile)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						break
					}
					fmt.Print(line)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// extractTimestamp pulls a timestamp off the start of a log line (the
// text handler's "[2006-01-02 15:04:05]" local time, or RFC3339) or out
// of a "time" field (JSON format), returning the zero time if none is
// present.
func extractTimestamp(line string) time.Time {
	if len(line) >= 21 && line[0] == '[' && line[20] == ']' {
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", line[1:20], time.Local); err == nil {
			return t
		}
	}
	if len(line) >= 20 {
		if t, err := time.Parse(time.RFC3339, line[:20]); err == nil {
			return t
		}
		if len(line) >= 25 {
			if t, err := time.Parse(time.RFC3339, line[:25]); err == nil {
				return t
			}
		}
	}

	const timeKey = `"time":"`
	if idx := strings.Index(line, timeKey); idx >= 0 {
		start := idx + len(timeKey)
		for i := start; i < len(line) && i < start+30; i++ {
			if line[i] == '"' {
				if t, err := time.Parse(time.RFC3339Nano, line[start:i]); err == nil {
					return t
				}
				break
			}
		}
	}
	return time.Time{}
}
