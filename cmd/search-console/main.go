package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"vecsearch/internal/client"
	"vecsearch/internal/tui"
)

func main() {
	_ = godotenv.Load()

	defaultAddr := os.Getenv("VECSEARCH_ADDR")
	if defaultAddr == "" {
		defaultAddr = "http://localhost:8000"
	}
	var (
		addr    string
		topK    int
		timeout time.Duration
	)
	flag.StringVar(&addr, "addr", defaultAddr, "Base URL of the searchd server")
	flag.IntVar(&topK, "top-k", 5, "Number of hits per query")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "HTTP timeout per request")
	flag.Parse()

	c := client.New(addr, timeout)
	m := tui.New(c, addr, topK)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
