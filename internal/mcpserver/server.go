// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes song library tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/models"
	"github.com/starford/setlist/internal/remote"
	"github.com/starford/setlist/internal/transpose"
)

const contractURI = "setlist://song-format"

// Docs is the read side of the document store.
type Docs interface {
	List(ctx context.Context, q remote.Query) ([]models.Record, error)
	Get(ctx context.Context, collection, id string) (models.Record, error)
}

// Library stores song files and imports them into the songs collection.
type Library interface {
	Save(ctx context.Context, rel string, content []byte, overwrite bool) (string, error)
}

// Server wraps the MCP server with song tools.
type Server struct {
	mcp  *server.MCPServer
	docs Docs
	lib  Library
}

// New creates a new MCP server with all song tools registered.
func New(docs Docs, lib Library, version string) *Server {
	s := &Server{docs: docs, lib: lib}

	s.mcp = server.NewMCPServer(
		"Setlist",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("transpose_content",
		mcp.WithDescription("Transpose every bracketed chord in song content by a number of semitones. "+
			"Lyrics, spacing and labels like [Chorus] are left unchanged."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Song text with chords in square brackets")),
		mcp.WithNumber("semitones", mcp.Required(), mcp.Description("Semitone shift, negative to go down")),
	), s.transposeContent)

	s.mcp.AddTool(mcp.NewTool("extract_chords",
		mcp.WithDescription("List the distinct chords used in song content."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Song text with chords in square brackets")),
	), s.extractChords)

	s.mcp.AddTool(mcp.NewTool("list_songs",
		mcp.WithDescription("List songs in the library, optionally filtered by key or tag."),
		mcp.WithString("key", mcp.Description("Only songs in this key")),
		mcp.WithString("tag", mcp.Description("Only songs with this tag")),
	), s.listSongs)

	s.mcp.AddTool(mcp.NewTool("read_song",
		mcp.WithDescription("Read one song by id, optionally transposed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Song record id (from list_songs)")),
		mcp.WithNumber("semitones", mcp.Description("Optional semitone shift applied to chords and key")),
	), s.readSong)

	s.mcp.AddTool(mcp.NewTool("create_song",
		mcp.WithDescription("Create a new song file at the specified path and import it. "+
			"Content MUST follow the song format contract. Read it first via "+
			"the get_song_contract tool or the "+contractURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new song (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the song format contract")),
	), s.createSong)

	s.mcp.AddTool(mcp.NewTool("import_song_url",
		mcp.WithDescription("Download a Markdown song from an http(s) URL or a base64 data URI "+
			"and add it to the library."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:text/markdown;base64,... URI")),
		mcp.WithString("path", mcp.Description("Optional target path (defaults to the URL file name)")),
	), s.importSongURL)

	s.mcp.AddTool(mcp.NewTool("get_song_contract",
		mcp.WithDescription("Returns the song format contract. "+
			"Call this before creating songs to ensure correct structure."),
	), s.getSongContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Song Format Contract",
			mcp.WithResourceDescription("Markdown song format with bracketed chords."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSongFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) transposeContent(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	semitones, err := req.RequireInt("semitones")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(transpose.Content(content, semitones)), nil
}

func (s *Server) extractChords(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	chords := transpose.Extract(content).Sorted()
	if len(chords) == 0 {
		return mcp.NewToolResultText("no chords found"), nil
	}
	return mcp.NewToolResultText(strings.Join(chords, " ")), nil
}

type songItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
	Key    string `json:"key,omitempty"`
}

func (s *Server) listSongs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := remote.Query{Collection: models.CollectionSongs, OrderBy: "title"}
	if key := req.GetString("key", ""); key != "" {
		q.Where = append(q.Where, models.Where("key", models.OpEq, key))
	}
	if tag := req.GetString("tag", ""); tag != "" {
		q.Where = append(q.Where, models.Where("tags", models.OpArrayContains, strings.ToLower(tag)))
	}

	recs, err := s.docs.List(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items := make([]songItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, songItem{
			ID:     r.ID,
			Title:  r.String("title"),
			Artist: r.String("artist"),
			Key:    r.String("key"),
		})
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

type songDetail struct {
	songItem
	Transpose int      `json:"transpose,omitempty"`
	Chords    []string `json:"chords"`
	Content   string   `json:"content"`
}

func (s *Server) readSong(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	songID, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	semitones := req.GetInt("semitones", 0)

	rec, err := s.docs.Get(ctx, models.CollectionSongs, songID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", songID)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	content := transpose.Content(rec.String("content"), semitones)
	out, _ := json.MarshalIndent(songDetail{
		songItem: songItem{
			ID:     rec.ID,
			Title:  rec.String("title"),
			Artist: rec.String("artist"),
			Key:    transpose.KeyLabel(rec.String("key"), semitones),
		},
		Transpose: semitones,
		Chords:    transpose.Extract(content).Sorted(),
		Content:   content,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createSong(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	songID, err := s.lib.Save(ctx, path, []byte(content), false)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("song already exists: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%s)", path, songID)), nil
}

func (s *Server) getSongContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SongFormatContract), nil
}

func (s *Server) readSongFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     SongFormatContract,
		},
	}, nil
}
