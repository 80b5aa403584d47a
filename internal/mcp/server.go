// internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/colebrumley/radmon/internal/state"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultQueryLimit = 100

// Server wraps the MCP server with reading history tools
type Server struct {
	db     *state.DB
	server *mcp.Server
}

// QueryReadingsInput is the input schema for the query_readings tool
type QueryReadingsInput struct {
	Origin  string `json:"origin,omitempty" jsonschema:"Source name, e.g. geiger or battery"`
	Channel string `json:"channel,omitempty" jsonschema:"Channel name, e.g. Count Per Minute or Battery Voltage"`
	Since   string `json:"since,omitempty" jsonschema:"RFC3339 timestamp or a duration ago such as 24h"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum readings to return (default 100)"`
}

// QueryReadingsOutput is the output schema for the query_readings tool
type QueryReadingsOutput struct {
	Readings []state.Reading `json:"readings"`
	Count    int             `json:"count"`
}

// LatestReadingInput is the input schema for the latest_reading tool
type LatestReadingInput struct {
	Origin  string `json:"origin,omitempty" jsonschema:"Optional source name"`
	Channel string `json:"channel" jsonschema:"Channel name"`
}

// LatestReadingOutput is the output schema for the latest_reading tool
type LatestReadingOutput struct {
	Reading state.Reading `json:"reading"`
}

// ListChannelsInput is the input schema for the list_channels tool
type ListChannelsInput struct{}

// ListChannelsOutput is the output schema for the list_channels tool
type ListChannelsOutput struct {
	Channels []state.ChannelInfo `json:"channels"`
}

// NewServer creates a new MCP server over the history database at dbPath
func NewServer(dbPath string) (*Server, error) {
	db, err := state.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	s := &Server{db: db}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "radmon-history",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_readings",
		Description: "Search recorded sensor readings, newest first. Filter by source, channel and start time.",
	}, s.handleQueryReadings)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "latest_reading",
		Description: "Return the most recent reading of one channel.",
	}, s.handleLatestReading)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_channels",
		Description: "List every source and channel with recorded readings, with counts and the time of the last reading.",
	}, s.handleListChannels)

	s.server = server
	return s, nil
}

func (s *Server) handleQueryReadings(ctx context.Context, req *mcp.CallToolRequest, input QueryReadingsInput) (*mcp.CallToolResult, QueryReadingsOutput, error) {
	since, err := parseSince(input.Since, time.Now())
	if err != nil {
		return nil, QueryReadingsOutput{}, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	readings, err := s.db.GetReadings(state.Query{
		Origin:  input.Origin,
		Channel: input.Channel,
		Since:   since,
		Limit:   limit,
	})
	if err != nil {
		return nil, QueryReadingsOutput{}, fmt.Errorf("failed to query readings: %w", err)
	}
	if readings == nil {
		readings = []state.Reading{}
	}
	return nil, QueryReadingsOutput{Readings: readings, Count: len(readings)}, nil
}

func (s *Server) handleLatestReading(ctx context.Context, req *mcp.CallToolRequest, input LatestReadingInput) (*mcp.CallToolResult, LatestReadingOutput, error) {
	if input.Channel == "" {
		return nil, LatestReadingOutput{}, errors.New("channel is required")
	}
	r, err := s.db.Latest(input.Origin, input.Channel)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, LatestReadingOutput{}, fmt.Errorf("no readings for channel %q", input.Channel)
		}
		return nil, LatestReadingOutput{}, fmt.Errorf("failed to load reading: %w", err)
	}
	return nil, LatestReadingOutput{Reading: r}, nil
}

func (s *Server) handleListChannels(ctx context.Context, req *mcp.CallToolRequest, input ListChannelsInput) (*mcp.CallToolResult, ListChannelsOutput, error) {
	channels, err := s.db.Channels()
	if err != nil {
		return nil, ListChannelsOutput{}, fmt.Errorf("failed to list channels: %w", err)
	}
	if channels == nil {
		channels = []state.ChannelInfo{}
	}
	return nil, ListChannelsOutput{Channels: channels}, nil
}

// parseSince accepts an RFC3339 time or a duration before now
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q: expected RFC3339 time or duration", s)
	}
	return now.Add(-d), nil
}

// Run starts the MCP server on stdio
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close closes the database connection
func (s *Server) Close() error {
	return s.db.Close()
}
