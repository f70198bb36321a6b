// packlate — structure-preserving JSON document translator.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/packlate/packlate/config"
	"github.com/packlate/packlate/credential"
	"github.com/packlate/packlate/dispatch"
	"github.com/packlate/packlate/document"
	"github.com/packlate/packlate/glossary"
	"github.com/packlate/packlate/i18n"
	"github.com/packlate/packlate/langmeta"
	"github.com/packlate/packlate/memory"
	"github.com/packlate/packlate/pipeline"
	"github.com/packlate/packlate/placeholder"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "packlate",
		Short: "Structure-preserving JSON translator with AI backends",
		Long: `packlate — structure-preserving JSON document translator.

Extracts translatable string leaves from nested JSON documents, protects
format codes and template placeholders, translates through an AI backend
with bounded retries, and rebuilds the document with its exact shape.

Commands:
  translate   Translate a JSON document
  glossary    Inspect or build the terminology glossary
  keys        Manage stored API credentials
  version     Show version information

AI Providers:
  google   Google AI (Gemini) — API key
  groq     Groq — API key
  openai   OpenAI — API key
  ollama   Ollama local server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag — inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newTranslateCmd(),
		newGlossaryCmd(),
		newKeysCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("packlate version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// translate (the main pipeline)
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	var (
		// Target selection
		lang   string
		output string

		// Provider selection
		provider string
		apiKey   string
		model    string
		baseURL  string

		// Translation behavior
		cachePath    string
		useGlossary  bool
		glossaryPath string
		review       bool
		maxRetries   int
		dryRun       bool
		verbose      bool

		// Parallelization
		maxConcurrent int
		requestDelay  time.Duration
		chunkTokens   int
	)

	cmd := &cobra.Command{
		Use:   "translate <file.json>",
		Short: "Translate a JSON document",
		Long: `Translate every string leaf of a JSON document, preserving structure.

Format codes, printf arguments, template variables and similar fragments
are protected before translation and restored afterwards. Items that
repeatedly fail keep their source text rather than blocking the run.

Credentials come from the key store (see 'packlate keys'); --api-key adds
a one-off credential for this run only.

Examples:
  # Translate to the configured target language (default Korean)
  packlate translate en_us.json

  # Translate to Japanese with a glossary and quality review
  packlate translate en_us.json --lang Japanese --glossary --review

  # One-off credential
  packlate translate en_us.json --provider groq --model llama-3.3-70b --api-key $KEY

  # Show what would be translated without calling any backend
  packlate translate en_us.json --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(translateArgs{
				input: args[0], lang: lang, output: output,
				provider: provider, apiKey: apiKey, model: model, baseURL: baseURL,
				cachePath: cachePath, useGlossary: useGlossary, glossaryPath: glossaryPath,
				review: review, maxRetries: maxRetries, dryRun: dryRun, verbose: verbose,
				maxConcurrent: maxConcurrent, requestDelay: requestDelay, chunkTokens: chunkTokens,
			})
		},
	}

	// Target selection
	cmd.Flags().StringVar(&lang, "lang", "", "Target language (default from .packlate.yaml, else Korean)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: <input>.translated.json)")

	// Provider selection
	cmd.Flags().StringVar(&provider, "provider", "", "AI provider for a one-off credential: google, groq, openai, ollama")
	cmd.Flags().StringVar(&model, "model", "", "Model name for a one-off credential")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for a one-off credential (or PACKLATE_API_KEY env var)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Custom API base URL")

	// Translation behavior
	cmd.Flags().StringVar(&cachePath, "cache", "", "JSON file with known-good translations {\"source\": \"translation\"}")
	cmd.Flags().BoolVar(&useGlossary, "glossary", false, "Build and use a terminology glossary")
	cmd.Flags().StringVar(&glossaryPath, "glossary-path", "", "Glossary store file (default from .packlate.yaml)")
	cmd.Flags().BoolVar(&review, "review", false, "Run a quality review pass over accepted translations")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Bulk retry rounds (default from .packlate.yaml)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be translated without calling AI")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable detailed logging")

	// Parallelization
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Maximum concurrent backend calls")
	cmd.Flags().DurationVar(&requestDelay, "request-delay", 0, "Minimum interval between backend calls")
	cmd.Flags().IntVar(&chunkTokens, "chunk-tokens", 0, "Estimated-token budget per batch")

	// Provider completion
	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"google\tGoogle AI (Gemini) — API key required",
			"groq\tGroq — API key required",
			"openai\tOpenAI — API key required",
			"ollama\tOllama local server",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	// Model completion (provider-aware)
	_ = cmd.RegisterFlagCompletionFunc("model", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		p, _ := cmd.Flags().GetString("provider")
		switch p {
		case "google", "gemini":
			return []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-pro"}, cobra.ShellCompDirectiveNoFileComp
		case "groq":
			return []string{"llama-3.3-70b-versatile", "mixtral-8x7b-32768"}, cobra.ShellCompDirectiveNoFileComp
		case "openai":
			return []string{"gpt-4o", "gpt-4o-mini"}, cobra.ShellCompDirectiveNoFileComp
		case "ollama":
			return []string{"llama3.2", "qwen2.5", "mistral"}, cobra.ShellCompDirectiveNoFileComp
		default:
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
	})

	return cmd
}

type translateArgs struct {
	input  string
	lang   string
	output string

	provider string
	apiKey   string
	model    string
	baseURL  string

	cachePath    string
	useGlossary  bool
	glossaryPath string
	review       bool
	maxRetries   int
	dryRun       bool
	verbose      bool

	maxConcurrent int
	requestDelay  time.Duration
	chunkTokens   int
}

func runTranslate(a translateArgs) error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}

	// Flags override file settings.
	if a.lang == "" {
		a.lang = cfg.TargetLanguage
	}
	if a.cachePath == "" {
		a.cachePath = cfg.CachePath
	}
	if a.maxRetries == 0 {
		a.maxRetries = cfg.MaxRetries
	}
	if a.maxConcurrent == 0 {
		a.maxConcurrent = cfg.MaxConcurrent
	}
	if a.requestDelay == 0 {
		a.requestDelay = cfg.RequestDelay()
	}
	if a.chunkTokens == 0 {
		a.chunkTokens = cfg.MaxTokensPerChunk
	}
	if !a.useGlossary {
		a.useGlossary = cfg.Glossary.Enabled
	}
	if a.glossaryPath == "" {
		a.glossaryPath = cfg.GlossaryPath(rootDir)
	}
	if !a.review {
		a.review = cfg.Review.Enabled
	}
	if a.provider == "" {
		a.provider = cfg.Backend.Provider
	}
	if a.model == "" {
		a.model = cfg.Backend.Model
	}
	if a.baseURL == "" {
		a.baseURL = cfg.Backend.BaseURL
	}

	// "--lang ko" and "--lang Korean" both work; prompts always get
	// the English name.
	meta := langmeta.Resolve(a.lang)
	a.lang = meta.Name

	doc, err := readJSONDocument(a.input)
	if err != nil {
		return err
	}

	// Translation memory first, explicit cache file on top.
	mem, err := memory.Load(rootDir)
	if err != nil {
		return err
	}
	cache := mem.CacheFor(a.lang)
	fileCache, err := readCache(a.cachePath)
	if err != nil {
		return err
	}
	if len(fileCache) > 0 {
		if cache == nil {
			cache = make(map[string]string, len(fileCache))
		}
		for src, tr := range fileCache {
			cache[src] = tr
		}
	}

	if a.dryRun {
		return runDryRun(doc, cache)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if a.verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	engine, err := buildEngine(a, log)
	if err != nil {
		return err
	}

	tr := pipeline.New(engine, pipeline.Options{
		TargetLanguage:    a.lang,
		MaxRetries:        a.maxRetries,
		FallbackRetries:   cfg.FallbackRetries,
		MaxTokensPerChunk: a.chunkTokens,
		Cache:             cache,
		UseGlossary:       a.useGlossary,
		GlossaryPath:      a.glossaryPath,
		EnableReview:      a.review,
		MaxQualityRetries: cfg.Review.MaxRetries,
		Logger:            log,
		OnProgress: func(stage pipeline.Stage, current, total int, message string) {
			if a.verbose {
				logInfo("[%s] %d/%d %s", stage, current, total, message)
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if meta.Flag != "" {
		logInfo("%s %s %s (%s)", i18n.T("Translating..."), meta.Flag, a.lang, meta.Native)
	} else {
		logInfo("%s %s", i18n.T("Translating..."), a.lang)
	}
	out, sum, err := tr.Translate(ctx, doc)
	if err != nil && out == nil {
		if errors.Is(err, credential.ErrNoCredentials) {
			return errors.New(i18n.T("No credentials configured. Add one with: packlate keys add"))
		}
		return err
	}
	if err != nil {
		// Partial result after cancellation; still written out.
		logWarning("translation interrupted: %v", err)
	} else if pairs := collectLeafPairs(doc, out); len(pairs) > 0 {
		mem.SetBatch(a.lang, pairs)
		if serr := mem.Save(); serr != nil {
			logWarning("saving translation memory: %v", serr)
		}
	}

	outPath := a.output
	if outPath == "" {
		outPath = defaultOutputPath(a.input)
	}
	if err := writeJSONDocument(outPath, out); err != nil {
		return err
	}

	logSuccess("%s: %s", i18n.T("Translation complete"), outPath)
	logInfo(i18n.N("Translated %d item", "Translated %d items", sum.Translated), sum.Translated)
	if sum.FromCache > 0 {
		logInfo("%d from cache", sum.FromCache)
	}
	if sum.Fallbacks > 0 {
		logWarning(i18n.N("%d item kept its source text", "%d items kept their source text", sum.Fallbacks), sum.Fallbacks)
	}
	if sum.QualityIssues > 0 {
		logInfo("quality review: %d issues, %d retranslated", sum.QualityIssues, sum.QualityRetranslated)
	}
	logInfo("job %s finished in %s", sum.JobID, sum.Elapsed.Round(time.Millisecond))
	return nil
}

// runDryRun reports what the extraction stage would dispatch, without
// touching any backend.
func runDryRun(doc any, cache map[string]string) error {
	protector := placeholder.NewProtector()
	_, items, stats := document.Extract(doc, document.ExtractOptions{
		Cache:   cache,
		Protect: protector.Protect,
	})

	logInfo("leaves: %d", stats.Leaves)
	logInfo("protected fragments: %d", protector.Count())
	logInfo("from cache: %d, already translated: %d, placeholder-only: %d",
		stats.Cached, stats.AlreadyTranslated, stats.TokenOnly)
	logInfo("would dispatch %d unique items:", stats.WorkItems)
	for _, it := range items {
		preview := it.Original
		if len(preview) > 60 {
			preview = preview[:57] + "..."
		}
		fmt.Fprintf(os.Stderr, "  %s  %s\n", it.ID, preview)
	}
	return nil
}

// buildEngine assembles the credential pool and dispatch engine from
// the store plus any one-off credential given on the command line.
func buildEngine(a translateArgs, log *logrus.Logger) (*dispatch.Engine, error) {
	creds := credential.LoadStore()

	if a.apiKey == "" {
		a.apiKey = os.Getenv("PACKLATE_API_KEY")
	}
	if a.apiKey != "" || a.provider == "ollama" {
		if a.provider == "" || a.model == "" {
			return nil, errors.New("--provider and --model are required with --api-key")
		}
		creds = append(creds, &credential.Credential{
			ID:       "cli",
			Provider: a.provider,
			Model:    a.model,
			Key:      a.apiKey,
			BaseURL:  a.baseURL,
			Active:   true,
		})
	}

	pool := credential.NewPool(creds, credential.PoolOptions{})
	return dispatch.NewEngine(dispatch.NewHTTPBackend(), pool, dispatch.Options{
		MaxConcurrent: a.maxConcurrent,
		RequestDelay:  a.requestDelay,
		Logger:        log,
	}), nil
}

// ---------------------------------------------------------------------------
// glossary (inspect and build the terminology store)
// ---------------------------------------------------------------------------

func newGlossaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Inspect or build the terminology glossary",
	}
	cmd.AddCommand(newGlossaryShowCmd())
	cmd.AddCommand(newGlossaryBuildCmd())
	return cmd
}

func newGlossaryShowCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List stored glossary terms",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := config.Load(rootDir)
				if err != nil {
					return err
				}
				path = cfg.GlossaryPath(rootDir)
			}

			terms, err := glossary.Load(path)
			if err != nil {
				return err
			}
			if len(terms) == 0 {
				logInfo("no glossary at %s", path)
				return nil
			}

			sort.Slice(terms, func(i, j int) bool {
				return strings.ToLower(terms[i].Original) < strings.ToLower(terms[j].Original)
			})
			fmt.Fprintf(os.Stderr, "\n%sGlossary%s (%d terms, %s)\n", colorBlue, colorReset, len(terms), path)
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
			for _, term := range terms {
				fmt.Fprintf(os.Stderr, "  %-24s", term.Original)
				for i, m := range term.Meanings {
					if i > 0 {
						fmt.Fprintf(os.Stderr, "%26s", "")
					}
					fmt.Fprintf(os.Stderr, " %s", m.Translation)
					if m.Context != "" && m.Context != glossary.MinedContext {
						fmt.Fprintf(os.Stderr, " (%s)", m.Context)
					}
					fmt.Fprintln(os.Stderr)
				}
				if len(term.Meanings) == 0 {
					fmt.Fprintln(os.Stderr)
				}
			}
			fmt.Fprintln(os.Stderr)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Glossary store file (default from .packlate.yaml)")
	return cmd
}

func newGlossaryBuildCmd() *cobra.Command {
	var (
		path string
		lang string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Mine glossary terms from the translation memory",
		Long: `Mine short source phrases and their known translations out of
packlate.lock and merge them into the glossary store. Existing terms
keep their meanings; mining only adds new ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.GlossaryPath(rootDir)
			}
			if lang == "" {
				lang = cfg.TargetLanguage
			}
			lang = langmeta.Resolve(lang).Name

			mem, err := memory.Load(rootDir)
			if err != nil {
				return err
			}
			pairs := mem.CacheFor(lang)
			if len(pairs) == 0 {
				logInfo("no %s entries in %s", lang, mem.Path())
				return nil
			}

			isTarget := func(string) bool { return true }
			if lang == "Korean" {
				isTarget = document.IsKoreanText
			}

			g := glossary.New()
			existing, err := glossary.Load(path)
			if err != nil {
				return err
			}
			g.Merge(existing)
			before := g.Len()
			g.Merge(glossary.MineFromPairs(pairs, isTarget))

			if err := glossary.Save(path, g.Terms()); err != nil {
				return err
			}
			logSuccess("glossary: %d terms (%d mined from %d pairs): %s",
				g.Len(), g.Len()-before, len(pairs), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Glossary store file (default from .packlate.yaml)")
	cmd.Flags().StringVar(&lang, "lang", "", "Language to mine (default from .packlate.yaml)")
	return cmd
}

// ---------------------------------------------------------------------------
// keys (credential store management)
// ---------------------------------------------------------------------------

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored API credentials",
		Long: `Manage the persisted credential store.

Credentials are stored in ` + credential.FilePath() + ` with owner-only
permissions. Multiple keys rotate automatically during translation; a key
that keeps failing is deactivated for the rest of the run but never
deleted.`,
	}
	cmd.AddCommand(
		newKeysAddCmd(),
		newKeysListCmd(),
		newKeysRemoveCmd(),
	)
	return cmd
}

func newKeysAddCmd() *cobra.Command {
	var (
		provider string
		model    string
		key      string
		baseURL  string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a new API credential",
		Long: `Store a new API credential in the key store.

Examples:
  packlate keys add --provider google --model gemini-2.5-flash --key $GEMINI_KEY
  packlate keys add --provider groq --model llama-3.3-70b-versatile --key $GROQ_KEY
  packlate keys add --provider ollama --model llama3.2 --base-url http://localhost:11434/v1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" || model == "" {
				return errors.New("--provider and --model are required")
			}
			if key == "" && provider != "ollama" {
				return errors.New("--key is required for " + provider)
			}

			cred, err := credential.AddToStore(provider, model, key, baseURL)
			if err != nil {
				return err
			}
			logSuccess("stored %s/%s credential %s (key: %s)",
				cred.Provider, cred.Model, shortID(cred.ID), credential.MaskKey(cred.Key))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider: google, groq, openai, ollama")
	cmd.Flags().StringVar(&model, "model", "", "Model name")
	cmd.Flags().StringVar(&key, "key", "", "API key")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Custom API base URL")
	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			creds := credential.LoadStore()
			if len(creds) == 0 {
				logInfo("no stored credentials (add one with 'packlate keys add')")
				return
			}

			fmt.Fprintf(os.Stderr, "\n%sStored Credentials%s (%s)\n", colorBlue, colorReset, credential.FilePath())
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 72))
			fmt.Fprintf(os.Stderr, "  %-10s %-8s %-24s %-14s %s\n", "ID", "PROVIDER", "MODEL", "KEY", "USED")
			for _, c := range creds {
				state := ""
				if !c.Active {
					state = fmt.Sprintf(" %sinactive%s", colorRed, colorReset)
				}
				fmt.Fprintf(os.Stderr, "  %-10s %-8s %-24s %-14s %d%s\n",
					shortID(c.ID), c.Provider, c.Model, credential.MaskKey(c.Key), c.UsageCount, state)
				if c.BaseURL != "" {
					fmt.Fprintf(os.Stderr, "  %10s endpoint: %s\n", "", c.BaseURL)
				}
			}
			fmt.Fprintln(os.Stderr)
		},
	}
}

func newKeysRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored credential",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := credential.RemoveFromStore(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no credential matches %q (run 'packlate keys list')", args[0])
			}
			logSuccess("credential %s removed", args[0])
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

func readJSONDocument(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

func writeJSONDocument(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// readCache loads a {"source": "translation"} JSON object. A missing
// path is fine; a named but unreadable file is an error.
func readCache(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache %s: %w", path, err)
	}
	var cache map[string]string
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parsing cache %s: %w", path, err)
	}
	return cache, nil
}

// collectLeafPairs walks the source and translated documents in
// parallel and returns the leaves that actually changed, as a
// source -> translation map for the translation memory. The two trees
// always have identical shape.
func collectLeafPairs(src, dst any) map[string]string {
	pairs := make(map[string]string)
	var walk func(a, b any)
	walk = func(a, b any) {
		switch av := a.(type) {
		case map[string]any:
			bv, ok := b.(map[string]any)
			if !ok {
				return
			}
			for k, child := range av {
				walk(child, bv[k])
			}
		case []any:
			bv, ok := b.([]any)
			if !ok || len(bv) != len(av) {
				return
			}
			for i, child := range av {
				walk(child, bv[i])
			}
		case string:
			bs, ok := b.(string)
			if !ok {
				return
			}
			if strings.TrimSpace(av) != "" && av != bs {
				pairs[av] = bs
			}
		}
	}
	walk(src, dst)
	return pairs
}

func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".translated" + ext
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
