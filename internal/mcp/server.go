package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/afero"

	"github.com/a3tai/mcp-bulletin/internal/bulletin"
	"github.com/a3tai/mcp-bulletin/internal/config"
	"github.com/a3tai/mcp-bulletin/internal/descriptions"
	"github.com/a3tai/mcp-bulletin/internal/generate"
	"github.com/a3tai/mcp-bulletin/internal/httpapi"
	"github.com/a3tai/mcp-bulletin/internal/layout"
	"github.com/a3tai/mcp-bulletin/internal/pdf/security"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	svc       *bulletin.Service
	paths     *security.PathValidator
	fs        afero.Fs
	mcpServer *server.MCPServer

	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, svc *bulletin.Service) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if svc == nil {
		return nil, fmt.Errorf("bulletin service cannot be nil")
	}

	paths, err := security.NewPathValidator(cfg.PDFDirectory)
	if err != nil {
		return nil, fmt.Errorf("invalid PDF directory: %w", err)
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // the tool set is fixed
		server.WithRecovery(),
	)

	s := &Server{
		config:    cfg,
		svc:       svc,
		paths:     paths,
		fs:        afero.NewOsFs(),
		mcpServer: mcpServer,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}

	s.registerTools()

	return s, nil
}

// MCPServer exposes the underlying mcp-go server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	pathArg := mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Path to the bulletin PDF, relative to the configured directory"),
	)
	fieldsArg := mcp.WithString("fields_json",
		mcp.Required(),
		mcp.Description(`JSON array of fields: [{"id":"speaker","x":90,"y":680,"width":120,"height":15,"page":1}]`),
	)

	s.mcpServer.AddTool(mcp.NewTool("bulletin_fingerprint",
		mcp.WithDescription(descriptions.GetToolDescription("bulletin_fingerprint")),
		pathArg,
	), s.handleFingerprint)

	s.mcpServer.AddTool(mcp.NewTool("bulletin_match",
		mcp.WithDescription(descriptions.GetToolDescription("bulletin_match")),
		pathArg,
		mcp.WithString("church_id",
			mcp.Required(),
			mcp.Description("Church whose templates are searched"),
		),
	), s.handleMatch)

	s.mcpServer.AddTool(mcp.NewTool("bulletin_extract_fields",
		mcp.WithDescription(descriptions.GetToolDescription("bulletin_extract_fields")),
		pathArg,
		fieldsArg,
	), s.handleExtractFields)

	s.mcpServer.AddTool(mcp.NewTool("bulletin_text_at",
		mcp.WithDescription(descriptions.GetToolDescription("bulletin_text_at")),
		pathArg,
		mcp.WithNumber("page", mcp.Required(), mcp.Description("1-based page number")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Horizontal position in PDF points")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Vertical position in PDF points, from the bottom")),
		mcp.WithNumber("tolerance", mcp.Description("Search distance on each axis (default 10)")),
	), s.handleTextAt)

	s.mcpServer.AddTool(mcp.NewTool("bulletin_generate",
		mcp.WithDescription(descriptions.GetToolDescription("bulletin_generate")),
		pathArg,
		fieldsArg,
		mcp.WithString("values_json",
			mcp.Required(),
			mcp.Description(`JSON object of field values: {"speaker":"Pastor Jane"}`),
		),
		mcp.WithString("output",
			mcp.Required(),
			mcp.Description("Path of the PDF to write, relative to the configured directory"),
		),
		mcp.WithNumber("font_size", mcp.Description("Largest font size used for values (default 12)")),
	), s.handleGenerate)

	s.mcpServer.AddTool(mcp.NewTool("template_list",
		mcp.WithDescription(descriptions.GetToolDescription("template_list")),
		mcp.WithString("church_id",
			mcp.Required(),
			mcp.Description("Church whose templates are listed"),
		),
	), s.handleTemplateList)
}

// readPDF resolves and reads a PDF inside the configured directory
func (s *Server) readPDF(path string) (string, []byte, error) {
	resolved, err := s.paths.ResolvePDF(path)
	if err != nil {
		return "", nil, err
	}

	info, err := s.fs.Stat(resolved)
	if err != nil {
		return "", nil, fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return "", nil, fmt.Errorf("%s is a directory", path)
	}
	if s.config.MaxFileSize > 0 && info.Size() > s.config.MaxFileSize {
		return "", nil, fmt.Errorf("file %s is %d bytes, larger than the %d byte limit", path, info.Size(), s.config.MaxFileSize)
	}

	data, err := afero.ReadFile(s.fs, resolved)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return resolved, data, nil
}

func (s *Server) analyze(ctx context.Context, request mcp.CallToolRequest) (string, *layout.Analysis, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return "", nil, err
	}
	resolved, data, err := s.readPDF(path)
	if err != nil {
		return "", nil, err
	}
	analysis, err := s.svc.Analyze(ctx, data)
	if err != nil {
		return "", nil, err
	}
	return resolved, analysis, nil
}

func parseFields(raw string) ([]bulletin.FieldDefinition, error) {
	var defs []bulletin.FieldDefinition
	if err := json.Unmarshal([]byte(raw), &defs); err != nil {
		return nil, fmt.Errorf("fields_json is not a JSON array of fields: %w", err)
	}
	if err := bulletin.ValidateFieldDefinitions(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// Handler functions
func (s *Server) handleFingerprint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, analysis, err := s.analyze(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Fingerprint: %s\n", analysis.Fingerprint)
	text += fmt.Sprintf("File: %s\n", path)
	text += fmt.Sprintf("Pages: %d\n", analysis.PageCount)
	text += fmt.Sprintf("Text runs: %d\n", len(analysis.Fragments))
	if len(analysis.Fragments) == 0 {
		text += "\nWARNING: No text was found. Scanned bulletins cannot be matched by layout.\n"
	}

	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	churchID, err := request.RequireString("church_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, analysis, err := s.analyze(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	match, err := s.svc.Match(ctx, churchID, analysis.Fingerprint)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatMatch(analysis.Fingerprint, match)), nil
}

func (s *Server) handleExtractFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("fields_json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defs, err := parseFields(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, data, err := s.readPDF(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	values, extractErr := s.svc.Extractor().ExtractFieldValues(ctx, data, bulletin.Geometries(defs))

	encoded, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := string(encoded)
	if extractErr != nil {
		text = fmt.Sprintf("No values extracted: %v\n%s", extractErr, text)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleTextAt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := request.RequireInt("page")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	x, err := request.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	y, err := request.RequireFloat("y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tolerance := request.GetFloat("tolerance", layout.DefaultLookupRadius)

	_, analysis, err := s.analyze(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if page < 1 || page > analysis.PageCount {
		return mcp.NewToolResultErrorf("page %d is out of range (document has %d pages)", page, analysis.PageCount), nil
	}

	frag, ok := layout.FindTextAtPosition(analysis.Fragments, page, x, y, tolerance)
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("No text within %g points of (%g, %g) on page %d", tolerance, x, y, page)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%q at (%.1f, %.1f), %.1f x %.1f points, page %d",
		frag.Text, frag.X, frag.Y, frag.Width, frag.Height, frag.Page)), nil
}

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawFields, err := request.RequireString("fields_json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defs, err := parseFields(rawFields)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rawValues, err := request.RequireString("values_json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(rawValues), &values); err != nil {
		return mcp.NewToolResultErrorf("values_json is not a JSON object of strings: %v", err), nil
	}

	output, err := request.RequireString("output")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outPath, err := s.paths.ResolvePDF(output)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, data, err := s.readPDF(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fontSize := request.GetFloat("font_size", s.config.FontSize)
	pdf, err := s.svc.Generator().Generate(ctx, generate.Request{
		Template: data,
		Fields:   bulletin.Geometries(defs),
		Values:   values,
		FontSize: fontSize,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.fs.MkdirAll(filepath.Dir(outPath), config.DefaultDirPerm); err != nil {
		return mcp.NewToolResultErrorf("failed to create output directory: %v", err), nil
	}
	if err := afero.WriteFile(s.fs, outPath, pdf, 0o644); err != nil {
		return mcp.NewToolResultErrorf("failed to write %s: %v", output, err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Wrote %s (%d bytes, %d fields)", outPath, len(pdf), len(defs))), nil
}

func (s *Server) handleTemplateList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	churchID, err := request.RequireString("church_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	templates, err := s.svc.ListTemplates(ctx, churchID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTemplates(churchID, templates)), nil
}

// Formatting methods
func formatMatch(fingerprint string, match bulletin.MatchResult) string {
	text := fmt.Sprintf("Fingerprint: %s\n", fingerprint)
	if !match.Matched() {
		text += fmt.Sprintf("No matching template (best confidence %.2f)\n", match.Confidence)
		return text
	}

	text += fmt.Sprintf("Matched template: %s (%s)\n", match.Template.Name, match.Template.ID)
	text += fmt.Sprintf("Confidence: %.2f\n", match.Confidence)
	text += fmt.Sprintf("Fields: %d\n", len(match.Template.FieldDefinitions))
	for _, def := range match.Template.FieldDefinitions {
		text += fmt.Sprintf("  - %s", def.ID)
		if def.Label != "" {
			text += fmt.Sprintf(" (%s)", def.Label)
		}
		text += "\n"
	}
	return text
}

func formatTemplates(churchID string, templates []bulletin.Template) string {
	if len(templates) == 0 {
		return fmt.Sprintf("No templates stored for church %s", churchID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d template(s) for church %s:\n", len(templates), churchID)
	for i, t := range templates {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, t.Name, t.ID)
		fmt.Fprintf(&b, "   Created: %s\n", t.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "   Fields: %d\n", len(t.FieldDefinitions))
	}
	return b.String()
}

// Handler returns the HTTP API with the MCP streamable transport at /mcp
func (s *Server) Handler() http.Handler {
	return httpapi.NewRouter(s.svc, server.NewStreamableHTTPServer(s.mcpServer), s.config.MaxFileSize)
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode serves MCP over stdin/stdout until the input closes or ctx ends
func (s *Server) runStdioMode(ctx context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting bulletin MCP server in stdio mode")
		log.Printf("PDF directory: %s", s.paths.Root())
	}

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.Default())

	err := stdio.Listen(ctx, s.stdin, s.stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves the HTTP API and the MCP transport until ctx ends
func (s *Server) runServerMode(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting bulletin server on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve HTTP: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Printf("Shutting down bulletin server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}
