package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"unicode"

	"github.com/spf13/cobra"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/photo-sentry/internal/discovery"
	"github.com/kozaktomas/photo-sentry/internal/scanner"
	"github.com/kozaktomas/photo-sentry/internal/tineye"
)

var scanCmd = &cobra.Command{
	Use:   "scan <asset-id>",
	Short: "Scan the web for reuse of one protected asset",
	Long: `Scan the web for reuse of a protected asset.

The scan discovers candidate pages through person search and visual web
detection, expands visual candidates through exact-match search, verifies
them against the protected photo and persists the findings as match
records. Qualifying matches alert the owner.

Examples:
  photo-sentry scan asset-1
  photo-sentry scan asset-1 --max-candidates 20 --skip-cache
  photo-sentry scan asset-1 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Int("max-candidates", 0, "Cap candidates per discovery engine (0 = config default)")
	scanCmd.Flags().Int("max-expansions", 0, "Cap exact-match expansions per run (0 = config default)")
	scanCmd.Flags().Bool("skip-cache", false, "Bypass the discovery cache")
	scanCmd.Flags().Bool("json", false, "Output as JSON")
}

// ScanCandidateOutput is one discovery candidate in the scan output.
type ScanCandidateOutput struct {
	Engine             string  `json:"engine"`
	Kind               string  `json:"kind"`
	SourceURL          string  `json:"source_url"`
	ImageURL           string  `json:"image_url,omitempty"`
	Title              string  `json:"title,omitempty"`
	Score              float64 `json:"score,omitempty"`
	Similarity         float64 `json:"similarity,omitempty"`
	MatchKind          string  `json:"match_kind,omitempty"`
	IdentitySimilarity float64 `json:"identity_similarity,omitempty"`
	VerificationEngine string  `json:"verification_engine,omitempty"`
	AutoAlert          bool    `json:"auto_alert"`
	ExactMatches       int     `json:"exact_matches"`
}

// ScanMatchOutput is one exact match in the scan output.
type ScanMatchOutput struct {
	SourceURL  string  `json:"source_url"`
	Domain     string  `json:"domain,omitempty"`
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence,omitempty"`
}

// ScanDurationsOutput breaks down where scan time went.
type ScanDurationsOutput struct {
	DiscoveryMs    int64 `json:"discovery_ms"`
	ExpansionMs    int64 `json:"expansion_ms"`
	DirectSearchMs int64 `json:"direct_search_ms"`
	VerificationMs int64 `json:"verification_ms"`
	PersistenceMs  int64 `json:"persistence_ms"`
}

// ScanOutput is the JSON output structure for a scan run.
type ScanOutput struct {
	AssetID               string                `json:"asset_id"`
	CandidateGroupID      string                `json:"candidate_group_id"`
	PersonDiscoveryUsed   bool                  `json:"person_discovery_used"`
	ProvidersUsed         []string              `json:"providers_used,omitempty"`
	TotalFound            int                   `json:"total_found"`
	SkippedBelowThreshold int                   `json:"skipped_below_threshold"`
	Candidates            []ScanCandidateOutput `json:"candidates"`
	DirectMatches         []ScanMatchOutput     `json:"direct_matches"`
	RecordsCreated        int                   `json:"records_created"`
	RecordsUpdated        int                   `json:"records_updated"`
	RecordsFailed         int                   `json:"records_failed"`
	AlertsSent            int                   `json:"alerts_sent"`
	AlertsFailed          int                   `json:"alerts_failed"`
	Durations             ScanDurationsOutput   `json:"durations"`
	Warnings              []string              `json:"warnings,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	assetID := args[0]

	maxCandidates := mustGetInt(cmd, "max-candidates")
	maxExpansions := mustGetInt(cmd, "max-expansions")
	skipCache := mustGetBool(cmd, "skip-cache")
	jsonOutput := mustGetBool(cmd, "json")

	rt, err := initRuntime(jsonOutput)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Set up context with signal handling for graceful cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal...")
		cancel()
	}()

	scan, err := rt.buildScanner(ctx)
	if err != nil {
		return err
	}

	asset, err := rt.assets.GetAsset(ctx, assetID)
	if err != nil {
		return fmt.Errorf("failed to load asset: %w", err)
	}
	if asset == nil {
		return fmt.Errorf("asset %s not found", assetID)
	}

	if !jsonOutput {
		fmt.Printf("\nScanning asset: %s (%s)\n", asset.Name, asset.ID)
		fmt.Printf("Owner: %s\n", asset.OwnerID)
	}

	result, err := scan.Scan(ctx, asset, scanner.ScanOptions{
		MaxCandidates: maxCandidates,
		MaxExpansions: maxExpansions,
		SkipCache:     skipCache,
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if jsonOutput {
		if err := json.NewEncoder(os.Stdout).Encode(newScanOutput(result)); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}
		return nil
	}

	printScanResult(result)
	return nil
}

func newScanOutput(result *scanner.ScanResult) ScanOutput {
	out := ScanOutput{
		AssetID:               result.AssetID,
		CandidateGroupID:      result.CandidateGroupID,
		PersonDiscoveryUsed:   result.PersonDiscoveryUsed,
		ProvidersUsed:         result.ProvidersUsed,
		TotalFound:            result.TotalFound,
		SkippedBelowThreshold: result.SkippedBelowThreshold,
		Candidates:            make([]ScanCandidateOutput, 0, len(result.Candidates)),
		DirectMatches:         make([]ScanMatchOutput, 0, len(result.DirectMatches)),
		RecordsCreated:        result.RecordsCreated,
		RecordsUpdated:        result.RecordsUpdated,
		RecordsFailed:         result.RecordsFailed,
		AlertsSent:            result.AlertsSent,
		AlertsFailed:          result.AlertsFailed,
		Durations: ScanDurationsOutput{
			DiscoveryMs:    result.Durations.DiscoveryMs,
			ExpansionMs:    result.Durations.ExpansionMs,
			DirectSearchMs: result.Durations.DirectSearchMs,
			VerificationMs: result.Durations.VerificationMs,
			PersistenceMs:  result.Durations.PersistenceMs,
		},
		Warnings: result.Warnings,
	}

	for _, c := range result.Candidates {
		out.Candidates = append(out.Candidates, ScanCandidateOutput{
			Engine:             c.Candidate.Engine,
			Kind:               string(c.Candidate.Kind),
			SourceURL:          c.Candidate.SourceURL,
			ImageURL:           c.Candidate.ImageURL,
			Title:              c.Candidate.Title,
			Score:              c.Candidate.Score,
			Similarity:         c.Candidate.Similarity,
			MatchKind:          string(c.Candidate.MatchKind),
			IdentitySimilarity: c.IdentitySimilarity,
			VerificationEngine: c.VerificationEngine,
			AutoAlert:          c.AutoAlert,
			ExactMatches:       len(c.Matches),
		})
	}
	for _, m := range result.DirectMatches {
		out.DirectMatches = append(out.DirectMatches, ScanMatchOutput{
			SourceURL:  m.SourceURL,
			Domain:     m.Domain,
			Score:      m.Score,
			Confidence: m.Confidence,
		})
	}
	return out
}

func printScanResult(result *scanner.ScanResult) {
	fmt.Println()
	fmt.Printf("Discovery: %d candidates", result.TotalFound)
	if len(result.ProvidersUsed) > 0 {
		fmt.Printf(" (%s)", strings.Join(result.ProvidersUsed, ", "))
	}
	fmt.Println()
	if result.SkippedBelowThreshold > 0 {
		fmt.Printf("Skipped below tier floor: %d\n", result.SkippedBelowThreshold)
	}
	if result.PersonDiscoveryUsed {
		fmt.Println("Person discovery: used")
	}

	if len(result.Candidates) > 0 {
		fmt.Printf("\nCandidates:\n")
		printCandidateTable(result.Candidates)
		if names := distinctProfileNames(result.Candidates); names > 1 {
			fmt.Printf("Identity hits span %d distinct profile names\n", names)
		}
	}

	if len(result.DirectMatches) > 0 {
		fmt.Printf("\nDirect exact matches:\n")
		printDirectMatchTable(result.DirectMatches)
	}

	if rollup := rollupDomains(result); len(rollup) > 0 {
		fmt.Printf("\nDomains:\n")
		printDomainTable(rollup)
	}

	fmt.Printf("\nRecords: %d created, %d updated, %d failed\n",
		result.RecordsCreated, result.RecordsUpdated, result.RecordsFailed)
	fmt.Printf("Alerts: %d sent, %d failed\n", result.AlertsSent, result.AlertsFailed)
	d := result.Durations
	fmt.Printf("Durations: discovery %dms, expansion %dms, direct %dms, verification %dms, persistence %dms\n",
		d.DiscoveryMs, d.ExpansionMs, d.DirectSearchMs, d.VerificationMs, d.PersistenceMs)

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings: %d\n", len(result.Warnings))
		for _, warning := range result.Warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}
}

func printCandidateTable(candidates []scanner.ExpandedCandidate) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENGINE\tKIND\tSOURCE\tSIMILARITY\tVERIFIED\tALERT")
	fmt.Fprintln(w, "------\t----\t------\t----------\t--------\t-----")
	for _, c := range candidates {
		similarity := c.Candidate.Similarity
		if c.IdentitySimilarity > 0 {
			similarity = c.IdentitySimilarity
		} else if similarity == 0 && c.Candidate.Score > 0 {
			similarity = c.Candidate.Score / 100
		}
		verified := c.VerificationEngine
		if verified == "" {
			verified = "-"
		}
		policy := "review"
		if c.AutoAlert {
			policy = "auto"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			c.Candidate.Engine, c.Candidate.Kind, c.Candidate.SourceURL, similarity, verified, policy)
	}
	w.Flush()
}

func printDirectMatchTable(matches []tineye.Match) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tSOURCE\tSCORE\tCONFIDENCE")
	fmt.Fprintln(w, "------\t------\t-----\t----------")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\n", m.Domain, m.SourceURL, m.Score, m.Confidence)
	}
	w.Flush()
}

// domainHits counts scan findings per source domain.
type domainHits struct {
	Domain string
	Hits   int
}

func rollupDomains(result *scanner.ScanResult) []domainHits {
	counts := make(map[string]int)
	for _, c := range result.Candidates {
		if d := domainOf(c.Candidate.SourceURL); d != "" {
			counts[d]++
		}
		for _, m := range c.Matches {
			if d := matchDomain(m); d != "" {
				counts[d]++
			}
		}
	}
	for _, m := range result.DirectMatches {
		if d := matchDomain(m); d != "" {
			counts[d]++
		}
	}

	rollup := make([]domainHits, 0, len(counts))
	for domain, hits := range counts {
		rollup = append(rollup, domainHits{Domain: domain, Hits: hits})
	}
	sort.Slice(rollup, func(i, j int) bool {
		if rollup[i].Hits != rollup[j].Hits {
			return rollup[i].Hits > rollup[j].Hits
		}
		return rollup[i].Domain < rollup[j].Domain
	})
	return rollup
}

func printDomainTable(rollup []domainHits) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tHITS")
	fmt.Fprintln(w, "------\t----")
	for _, d := range rollup {
		fmt.Fprintf(w, "%s\t%d\n", d.Domain, d.Hits)
	}
	w.Flush()
}

func matchDomain(m tineye.Match) string {
	if m.Domain != "" {
		return strings.ToLower(m.Domain)
	}
	return domainOf(m.SourceURL)
}

func domainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))
}

// normalizeTitle folds a page title for comparison (e.g. "Jiří Novák" and
// "jiri novak" collide): diacritics stripped, lowercased, spaces collapsed.
func normalizeTitle(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, _ := transform.String(t, title)
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// distinctProfileNames counts how many different page titles the identity
// candidates carry.
func distinctProfileNames(candidates []scanner.ExpandedCandidate) int {
	names := make(map[string]bool)
	for _, c := range candidates {
		if c.Candidate.Kind != discovery.KindIdentity || c.Candidate.Title == "" {
			continue
		}
		if name := normalizeTitle(c.Candidate.Title); name != "" {
			names[name] = true
		}
	}
	return len(names)
}
