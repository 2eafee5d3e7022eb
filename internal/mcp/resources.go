package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/pubrag/internal/store"
)

const (
	manifestURI          = "pubrag://index/manifest"
	publicationURIScheme = "pubrag://publication/"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "index_manifest",
		URI:         manifestURI,
		Description: "Model, dimensions and publication count of the current index",
		MIMEType:    "application/json",
	}, s.readManifest)

	if s.docs != nil {
		s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
			Name:        "publication",
			URITemplate: publicationURIScheme + "{id}",
			Description: "Indexed text of one publication",
			MIMEType:    "text/plain",
		}, s.readPublication)
	}
}

func (s *Server) readManifest(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	m, err := store.ReadManifest(s.layout)
	if err != nil {
		return nil, MapError(err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (s *Server) readPublication(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, publicationURIScheme)
	if id == "" || id == uri {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	docs, err := s.docs.Get(ctx, []string{id})
	if err != nil {
		return nil, MapError(err)
	}
	doc, ok := docs[id]
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     doc.Text,
		}},
	}, nil
}
