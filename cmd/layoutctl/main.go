// layoutctl renders and validates quote layouts offline, against local
// files, the way the settings preview pane does.
//
// Usage:
//
//	layoutctl render --layout FILE.jsonc --context FILE.(json|yaml) [--overrides FILE] [--format json|html]
//	layoutctl validate --layout FILE.jsonc
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"quotelayout/internal/branding"
	"quotelayout/internal/domain"
	"quotelayout/internal/render"
	"quotelayout/internal/services/quotes"
)

var errUsage = errors.New("usage: layoutctl <render|validate> [flags]")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "render":
		return runRender(args[1:], stdout, stderr)
	case "validate":
		return runValidate(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprintln(stderr, errUsage.Error())
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%w", args[0], errUsage)
	}
}

func runRender(args []string, stdout, stderr io.Writer) error {
	var layoutPath, contextPath, overridesPath, format string
	flagSet := pflag.NewFlagSet("layoutctl render", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&layoutPath, "layout", "", "layout config file (JSON or JSONC)")
	flagSet.StringVar(&contextPath, "context", "", "render context file (JSON or YAML)")
	flagSet.StringVar(&overridesPath, "overrides", "", "branding overrides file (JSON or JSONC)")
	flagSet.StringVar(&format, "format", "json", "output format: json or html")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if layoutPath == "" {
		return errors.New("--layout is required")
	}
	if format != "json" && format != "html" {
		return fmt.Errorf("--format must be json or html, got %q", format)
	}

	cfg, err := loadLayout(layoutPath)
	if err != nil {
		return err
	}
	data := domain.RenderContext{}
	if contextPath != "" {
		if data, err = loadContext(contextPath); err != nil {
			return err
		}
	}
	var overrides *domain.BrandingOverrides
	if overridesPath != "" {
		if overrides, err = loadOverrides(overridesPath); err != nil {
			return err
		}
	}

	merged := branding.Merge(cfg, overrides)
	out, err := render.New().RenderLayout(merged, quotes.WithBranding(data, merged.GlobalStyles))
	if err != nil {
		return err
	}

	if format == "html" {
		_, err = io.WriteString(stdout, toHTML(out))
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runValidate(args []string, stdout, stderr io.Writer) error {
	var layoutPath string
	flagSet := pflag.NewFlagSet("layoutctl validate", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&layoutPath, "layout", "", "layout config file (JSON or JSONC)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if layoutPath == "" {
		return errors.New("--layout is required")
	}

	cfg, err := loadLayout(layoutPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: ok (version %d, %d sections)\n", layoutPath, cfg.Version, len(cfg.Sections))
	return nil
}

func loadLayout(path string) (domain.LayoutConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.LayoutConfig{}, err
	}
	cfg, err := domain.ParseLayoutConfig(jsonc.ToJSON(raw))
	if err != nil {
		return domain.LayoutConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return domain.LayoutConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func loadContext(path string) (domain.RenderContext, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data domain.RenderContext
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &data)
	default:
		err = json.Unmarshal(jsonc.ToJSON(raw), &data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if data == nil {
		data = domain.RenderContext{}
	}
	return data, nil
}

func loadOverrides(path string) (*domain.BrandingOverrides, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overrides domain.BrandingOverrides
	if err := json.Unmarshal(jsonc.ToJSON(raw), &overrides); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &overrides, nil
}

// toHTML lays rendered sections out as a standalone page fragment. Built-in
// sections become placeholders naming their component.
func toHTML(out domain.RenderedLayout) string {
	var b strings.Builder
	for _, s := range out.Sections {
		switch s.Type {
		case domain.SectionCustomHTML:
			fmt.Fprintf(&b, "<section data-section=%q>%s</section>\n", html.EscapeString(s.ID), s.HTML)
		default:
			fmt.Fprintf(&b, "<section data-section=%q data-component=%q></section>\n",
				html.EscapeString(s.ID), html.EscapeString(s.Component))
		}
	}
	return b.String()
}
