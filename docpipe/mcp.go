package docpipe

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docsum/kit"
)

// RegisterMCP registers the docpipe tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerExtractTool(srv)
	p.registerSniffTool(srv)
	p.registerFormatsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type extractReq struct {
	Path  string   `json:"path"`
	Paths []string `json:"paths"`
}

func (p *Pipeline) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docpipe_extract",
		Description: "Extract and combine the text of one or more local files, in order, truncated to the configured maximum.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to extract"},
			"paths": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "File paths to extract",
			},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractReq)
		paths := r.Paths
		if r.Path != "" {
			paths = append([]string{r.Path}, paths...)
		}
		if len(paths) == 0 {
			return nil, ErrNoSources
		}
		srcs := make([]Source, 0, len(paths))
		for _, path := range paths {
			fi, err := os.Stat(path)
			if err != nil {
				return nil, err
			}
			if fi.IsDir() {
				return nil, fmt.Errorf("%s: is a directory", path)
			}
			if fi.Size() > p.cfg.MaxFileSize {
				return nil, fmt.Errorf("%s: %w", path, ErrTooLarge)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			srcs = append(srcs, Source{Name: path, Data: data})
		}
		return p.ExtractAll(ctx, srcs)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[extractReq]())
}

type sniffReq struct {
	Name string `json:"name"`
}

func (p *Pipeline) registerSniffTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docpipe_sniff",
		Description: "Report the format token a file name, object key or URL maps to.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "File name, key or URL"},
		}, []string{"name"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*sniffReq)
		if r.Name == "" {
			return nil, errors.New("name is required")
		}
		return map[string]any{"format": Sniff(r.Name)}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[sniffReq]())
}

func (p *Pipeline) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docpipe_formats",
		Description: "List all supported document formats.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": SupportedFormats()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) { return nil, nil }

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
