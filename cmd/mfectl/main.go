// Package main implements the mfectl CLI for operating a running mfeshell
// daemon over its HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/mfeshell/internal/manifest"
)

var (
	// serverURL is the base URL for the mfeshell HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mfectl",
	Short: "CLI for mfeshell daemon operations",
	Long: `mfectl is a command-line interface for a running mfeshell daemon.
It drives navigation, inspects module state and route tables, and
validates manifest files offline.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9280", "mfeshell server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(navigateCmd)
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(manifestCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check mfeshell daemon health",
	Long: `Check the health status of the mfeshell daemon.

Examples:
  # Check health
  mfectl health

  # Check health on a different server
  mfectl health --server http://localhost:9290`,
	RunE: runHealth,
}

var navigateCmd = &cobra.Command{
	Use:   "navigate <path>",
	Short: "Navigate the shell to a path",
	Long: `Drive the shell to a navigation path, swapping the active module.

Examples:
  # Activate whichever module owns /orders
  mfectl navigate /orders`,
	Args: cobra.ExactArgs(1),
	RunE: runNavigate,
}

var routesCmd = &cobra.Command{
	Use:   "routes <module>",
	Short: "Show a module's merged route table",
	Long: `Show the merged static and dynamic routes for a module, filtered
to what the daemon's current user may see.

Examples:
  mfectl routes orders`,
	Args: cobra.ExactArgs(1),
	RunE: runRoutes,
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Show per-module lifecycle state",
	RunE:  runModules,
}

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Manifest operations",
}

var manifestStrict bool

func init() {
	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a manifest file offline",
		Long: `Parse and validate a manifest file without a running daemon.

Examples:
  # Validate with default (first-match-wins) route semantics
  mfectl manifest validate mfe-manifest.json

  # Reject overlapping route prefixes
  mfectl manifest validate --strict-routes mfe-manifest.json`,
		Args: cobra.ExactArgs(1),
		RunE: runManifestValidate,
	}
	validateCmd.Flags().BoolVar(&manifestStrict, "strict-routes", false, "reject overlapping route prefixes")
	manifestCmd.AddCommand(validateCmd)
}

// HealthResponse matches pkg/server HealthResponse.
type HealthResponse struct {
	Status       string `json:"status"`
	Service      string `json:"service"`
	ActiveModule string `json:"active_module,omitempty"`
	CurrentPath  string `json:"current_path,omitempty"`
}

// NavigateResponse matches pkg/server NavigateResponse.
type NavigateResponse struct {
	Path         string `json:"path"`
	ActiveModule string `json:"active_module,omitempty"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	body, err := get("/health", 5*time.Second)
	if err != nil {
		return err
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Status:  %s\n", health.Status)
	fmt.Printf("Service: %s\n", health.Service)
	if health.ActiveModule != "" {
		fmt.Printf("Active:  %s (%s)\n", health.ActiveModule, health.CurrentPath)
	} else {
		fmt.Printf("Active:  none\n")
	}
	return nil
}

func runNavigate(cmd *cobra.Command, args []string) error {
	reqJSON, err := json.Marshal(map[string]string{"path": args[0]})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	target := fmt.Sprintf("%s/api/v1/navigate", serverURL)
	resp, err := (&http.Client{Timeout: 60 * time.Second}).Post(
		target, "application/json", bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var nav NavigateResponse
	if err := json.Unmarshal(body, &nav); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if nav.ActiveModule != "" {
		fmt.Printf("Navigated to %s (active module: %s)\n", nav.Path, nav.ActiveModule)
	} else {
		fmt.Printf("Navigated to %s (no module matched)\n", nav.Path)
	}
	return nil
}

func runRoutes(cmd *cobra.Command, args []string) error {
	body, err := get("/api/v1/routes?module="+url.QueryEscape(args[0]), 10*time.Second)
	if err != nil {
		return err
	}

	var entries []struct {
		Label string `json:"label"`
		Path  string `json:"path"`
		Order int    `json:"order"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(entries) == 0 {
		fmt.Printf("No routes for module %s\n", args[0])
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%3d  %-30s %s\n", e.Order, e.Label, e.Path)
	}
	return nil
}

func runModules(cmd *cobra.Command, args []string) error {
	body, err := get("/api/v1/modules", 10*time.Second)
	if err != nil {
		return err
	}

	var statuses []struct {
		ModuleID    string `json:"module_id"`
		State       string `json:"state"`
		Initialized bool   `json:"initialized"`
		MountID     string `json:"mount_id,omitempty"`
	}
	if err := json.Unmarshal(body, &statuses); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(statuses) == 0 {
		fmt.Println("No modules loaded")
		return nil
	}
	for _, s := range statuses {
		line := fmt.Sprintf("%-20s %s", s.ModuleID, s.State)
		if s.MountID != "" {
			line += fmt.Sprintf(" (mount %s)", s.MountID)
		}
		fmt.Println(line)
	}
	return nil
}

func runManifestValidate(cmd *cobra.Command, args []string) error {
	loader := manifest.NewLoader(10*time.Second, manifestStrict)
	m, err := loader.Load(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("manifest invalid: %w", err)
	}

	fmt.Printf("Manifest %s is valid: version %s, %d module(s)\n", args[0], m.Version, len(m.MFEs))
	for _, reg := range m.MFEs {
		fmt.Printf("  %-20s %-25s -> %s\n", reg.ID, reg.Route, reg.Entry)
	}
	return nil
}

// get performs a GET against the daemon and returns the body for 200s.
func get(path string, timeout time.Duration) ([]byte, error) {
	target := serverURL + path
	resp, err := (&http.Client{Timeout: timeout}).Get(target)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
