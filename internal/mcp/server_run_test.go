package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/mcp-bulletin/internal/config"
	"github.com/a3tai/mcp-bulletin/internal/descriptions"
)

func TestServer_ToolsList(t *testing.T) {
	server, _, _ := newTestServer(t)

	response := server.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))

	rpc, ok := response.(mcp.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected JSONRPCResponse, got %T", response)
	}
	result, ok := rpc.Result.(mcp.ListToolsResult)
	if !ok {
		t.Fatalf("expected ListToolsResult, got %T", rpc.Result)
	}

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		if tool.Description == "" {
			t.Errorf("tool %s has no description", tool.Name)
		}
	}
	sort.Strings(names)

	want := descriptions.GetAllToolNames()
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("registered tools = %v, want %v", names, want)
	}
}

func TestServer_ToolsCall(t *testing.T) {
	server, _, _ := newTestServer(t)

	response := server.MCPServer().HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"bulletin_fingerprint","arguments":{"path":"bulletin.pdf"}}}`))

	rpc, ok := response.(mcp.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected JSONRPCResponse, got %T", response)
	}
	result, ok := rpc.Result.(mcp.CallToolResult)
	if !ok {
		t.Fatalf("expected CallToolResult, got %T", rpc.Result)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", extractTextFromResult(&result))
	}
	if !strings.Contains(extractTextFromResult(&result), "Fingerprint: ") {
		t.Errorf("unexpected result: %s", extractTextFromResult(&result))
	}
}

func TestServer_Handler(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("unexpected health body: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/templates", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("templates without church status = %d", w.Code)
	}
}

func TestServer_RunStdio(t *testing.T) {
	server, _, _ := newTestServer(t)
	server.stdin = strings.NewReader("")
	server.stdout = &bytes.Buffer{}

	if err := server.Run(context.Background()); err != nil {
		t.Errorf("expected nil error when input closes, got %v", err)
	}
}

func TestServer_RunStdioCancelled(t *testing.T) {
	server, _, _ := newTestServer(t)

	reader, writer := io.Pipe()
	defer writer.Close()
	server.stdin = reader
	server.stdout = &bytes.Buffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error on cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stdio server did not stop after cancellation")
	}
}

func TestServer_RunServerMode(t *testing.T) {
	server, _, _ := newTestServer(t)
	server.config.Mode = config.ModeServer
	server.config.Host = "127.0.0.1"
	server.config.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("HTTP server did not stop after cancellation")
	}
}

func TestServer_RunServerModeAddressInUse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	defer listener.Close()

	server, _, _ := newTestServer(t)
	server.config.Mode = config.ModeServer
	server.config.Host = "127.0.0.1"
	server.config.Port = listener.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Run(ctx); err == nil {
		t.Error("expected error when the port is already bound")
	}
}
