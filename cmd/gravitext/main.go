package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"gravitext/internal/config"
	"gravitext/internal/server"
	"gravitext/internal/version"
)

func main() {
	_ = godotenv.Load()
	_ = config.LoadAndApply()
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		addr := fs.String("addr", ":8089", "listen address")
		_ = fs.Parse(os.Args[2:])
		if err := server.Run(*addr); err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version.String())
	case "create":
		createCmd(os.Args[2:])
	case "query":
		queryCmd(os.Args[2:])
	case "libraries":
		librariesCmd()
	case "delete":
		deleteCmd(os.Args[2:])
	case "verify":
		verifyCmd(os.Args[2:])
	case "files":
		filesCmd(os.Args[2:])
	case "metrics":
		metricsCmd()
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("gravitext - compressed knowledge libraries with ranked retrieval")
	fmt.Println("usage:")
	fmt.Println("  gravitext serve [--addr :8089]")
	fmt.Println("  gravitext version")
	fmt.Println("  gravitext create --name <n> [--nmax 15] [file|-]")
	fmt.Println("  gravitext query --name <n> [--k 8] \"<query>\"")
	fmt.Println("  gravitext libraries")
	fmt.Println("  gravitext delete --name <n>")
	fmt.Println("  gravitext verify --name <n>")
	fmt.Println("  gravitext files --query \"<q>\" [--k 8] <file> [file...]")
	fmt.Println("  gravitext metrics")
}

func serverURL() string {
	if v := os.Getenv("GRAVITEXT_SERVER_URL"); v != "" {
		return v
	}
	return "http://localhost:8089"
}

// doRequest issues one API call, attaching the configured token so commands
// work against a token-protected server.
func doRequest(method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := os.Getenv("GRAVITEXT_API_TOKEN"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return http.DefaultClient.Do(req)
}

func createCmd(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "library name")
	nmax := fs.Int("nmax", 0, "orbital bound (default 15)")
	_ = fs.Parse(args)
	if *name == "" {
		fmt.Println("--name required")
		os.Exit(1)
	}
	var text []byte
	var err error
	rest := fs.Args()
	if len(rest) == 0 || rest[0] == "-" {
		text, err = io.ReadAll(os.Stdin)
	} else {
		text, err = os.ReadFile(rest[0])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	body, _ := json.Marshal(map[string]any{"name": *name, "text": string(text), "nMax": *nmax})
	resp, err := doRequest(http.MethodPost, serverURL()+"/libraries", strings.NewReader(string(body)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	var res struct {
		Name             string  `json:"name"`
		ChunksCreated    int     `json:"chunksCreated"`
		TotalWords       int     `json:"totalWords"`
		CompressionRatio float64 `json:"compressionRatio"`
		OriginalSize     string  `json:"originalSize"`
		EncodedSize      string  `json:"encodedSize"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil || res.Name == "" {
		_, _ = io.Copy(os.Stdout, resp.Body)
		return
	}
	fmt.Printf("%s: %d chunks, %d words, %s -> %s (%.2fx)\n",
		res.Name, res.ChunksCreated, res.TotalWords, res.OriginalSize, res.EncodedSize, res.CompressionRatio)
}

func queryCmd(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	name := fs.String("name", "", "library name")
	k := fs.Int("k", 0, "retrieval top K (default 8)")
	_ = fs.Parse(args)
	rest := fs.Args()
	if *name == "" || len(rest) == 0 {
		fmt.Println("usage: gravitext query --name <n> [--k 8] \"<query>\"")
		os.Exit(1)
	}
	q := strings.Join(rest, " ")
	body, _ := json.Marshal(map[string]any{"query": q, "topK": *k})
	resp, err := doRequest(http.MethodPost, serverURL()+"/libraries/"+*name+"/query", strings.NewReader(string(body)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printQueryResult(resp.Body)
}

func printQueryResult(r io.Reader) {
	var res struct {
		ChunksRetrieved int    `json:"chunksRetrieved"`
		TotalWords      int    `json:"totalWords"`
		Context         string `json:"context"`
	}
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		_, _ = io.Copy(os.Stdout, r)
		return
	}
	fmt.Printf("retrieved %d chunks (%d words)\n\n", res.ChunksRetrieved, res.TotalWords)
	fmt.Println(res.Context)
}

func librariesCmd() {
	resp, err := doRequest(http.MethodGet, serverURL()+"/libraries", nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	var res struct {
		Libraries []struct {
			Name             string  `json:"name"`
			ChunksCreated    int     `json:"chunksCreated"`
			TotalWords       int     `json:"totalWords"`
			CompressionRatio float64 `json:"compressionRatio"`
		} `json:"libraries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		_, _ = io.Copy(os.Stdout, resp.Body)
		return
	}
	for _, l := range res.Libraries {
		fmt.Printf("%s  chunks=%d words=%s ratio=%.2fx\n",
			l.Name, l.ChunksCreated, humanize.Comma(int64(l.TotalWords)), l.CompressionRatio)
	}
}

func deleteCmd(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	name := fs.String("name", "", "library name")
	_ = fs.Parse(args)
	if *name == "" {
		fmt.Println("--name required")
		os.Exit(1)
	}
	resp, err := doRequest(http.MethodDelete, serverURL()+"/libraries/"+*name, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(os.Stdout, resp.Body)
	fmt.Println()
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	name := fs.String("name", "", "library name")
	_ = fs.Parse(args)
	if *name == "" {
		fmt.Println("--name required")
		os.Exit(1)
	}
	resp, err := doRequest(http.MethodPost, serverURL()+"/libraries/"+*name+"/verify", strings.NewReader("{}"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	var res struct {
		Verified    int     `json:"verifiedChunks"`
		Failed      int     `json:"failedChunks"`
		Percentage  float64 `json:"integrityPercentage"`
		AllVerified bool    `json:"allVerified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		_, _ = io.Copy(os.Stdout, resp.Body)
		return
	}
	fmt.Printf("verified=%d failed=%d integrity=%.1f%% allVerified=%v\n",
		res.Verified, res.Failed, res.Percentage, res.AllVerified)
}

func filesCmd(args []string) {
	fs := flag.NewFlagSet("files", flag.ExitOnError)
	query := fs.String("query", "", "retrieval query")
	k := fs.Int("k", 0, "retrieval top K (default 8)")
	nmax := fs.Int("nmax", 0, "orbital bound (default 15)")
	_ = fs.Parse(args)
	paths := fs.Args()
	if *query == "" || len(paths) == 0 {
		fmt.Println("usage: gravitext files --query \"<q>\" [--k 8] <file> [file...]")
		os.Exit(1)
	}
	body, _ := json.Marshal(map[string]any{"paths": paths, "query": *query, "topK": *k, "nMax": *nmax})
	resp, err := doRequest(http.MethodPost, serverURL()+"/files/query", strings.NewReader(string(body)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printQueryResult(resp.Body)
}

func metricsCmd() {
	resp, err := doRequest(http.MethodGet, serverURL()+"/metrics", nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(os.Stdout, resp.Body)
	fmt.Println()
}
