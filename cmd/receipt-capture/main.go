package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/credential"
	"github.com/zombor/receipt-capture/internal/form"
	"github.com/zombor/receipt-capture/internal/scanning"
	"github.com/zombor/receipt-capture/internal/ui"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	flags := ff.NewFlagSet("receipt-capture")
	var (
		addr           = flags.StringLong("addr", "localhost:8080", "Address for the local UI")
		dbPath         = flags.StringLong("db", "receipt-capture.db", "Settings database file path")
		provider       = flags.StringLong("provider", "openai", "Vision provider: 'openai', 'gemini' or 'ollama'")
		openAIURL      = flags.StringLong("openai-url", "https://api.openai.com/v1/chat/completions", "OpenAI chat completions endpoint")
		openAIModel    = flags.StringLong("openai-model", "gpt-4o-mini", "OpenAI model name")
		maxTokens      = flags.IntLong("max-tokens", 500, "Maximum tokens in the extraction response")
		geminiModel    = flags.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = flags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = flags.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		formConfigPath = flags.StringLong("form-config", "", "YAML file with the form URL, field ids, categories and payment methods")
		formURL        = flags.StringLong("form-url", "", "Form submission URL (overrides the form config)")
		cameraCommand  = flags.StringLong("camera-command", "", "Command that writes one camera frame to stdout (e.g. 'fswebcam -q -')")
		returnDelay    = flags.DurationLong("return-delay", capture.DefaultReturnDelay, "How long the success screen is shown")
		extractTimeout = flags.DurationLong("extract-timeout", scanning.DefaultTimeout, "Timeout for the extraction request")
		submitTimeout  = flags.DurationLong("submit-timeout", form.DefaultTimeout, "Timeout for the form submission")
		authUser       = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = flags.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		_              = flags.StringLong("config", "", "Config file path (optional)")
		showVersion    = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_CAPTURE"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Load form configuration
	formConfig, err := form.LoadConfig(*formConfigPath)
	if err != nil {
		slog.Error("Failed to load form config", "error", err)
		os.Exit(1)
	}
	if *formURL != "" {
		formConfig.URL = *formURL
	}
	if err := formConfig.Validate(); err != nil {
		slog.Error("Invalid form config", "error", err)
		os.Exit(1)
	}
	vocab := scanning.Vocabulary{
		Categories: formConfig.Categories,
		Methods:    formConfig.PaymentMethods,
	}

	// Initialize credential store
	slog.Info("Initializing settings database...", "path", *dbPath)
	store, err := credential.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize settings database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize extractor based on provider
	var extractor scanning.Extractor
	switch *provider {
	case "openai":
		slog.Info("Initializing OpenAI extractor...", "url", *openAIURL, "model", *openAIModel)
		extractor = scanning.NewOpenAI(scanning.OpenAIConfig{
			URL:        *openAIURL,
			Model:      *openAIModel,
			MaxTokens:  *maxTokens,
			Timeout:    *extractTimeout,
			Vocabulary: vocab,
		})
	case "gemini":
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor = scanning.NewGemini(*geminiModel, vocab)
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor = scanning.NewOllama(*ollamaURL, *ollamaModel, vocab)
	default:
		slog.Error("Invalid provider", "provider", *provider, "valid", "openai, gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	submitter := form.NewClient(formConfig, *submitTimeout)
	camera := capture.NewCommandCamera(*cameraCommand)
	if *cameraCommand == "" {
		slog.Info("No camera command configured, only uploads are available")
	}

	newFlow := func(onExit func()) *capture.Flow {
		return capture.NewFlow(extractor, store, submitter, camera, capture.Config{
			Vocabulary:  vocab,
			ReturnDelay: *returnDelay,
			OnExit:      onExit,
		})
	}

	// Initialize server
	basicAuth := ui.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := ui.NewServer(newFlow, store, ui.Settings{Form: formConfig, Version: version}, basicAuth)

	// Start server in goroutine
	go func() {
		if err := server.Start(*addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", "http://"+*addr)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	server.Close()
}
