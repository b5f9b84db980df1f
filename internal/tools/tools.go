// Copyright 2025 Renegade Studio
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tools implements the unified tool manager (spec.md §4.5):
// a merged view over internal, in-process tools and remote tools
// discovered from MCP servers.
package tools

import (
	"context"
	"time"
)

// Parameter describes one argument a tool accepts.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     any
	Enum        []string
}

// Info is the provider-facing shape of a tool: what an LLM sees when
// deciding whether and how to call it.
type Info struct {
	Name        string
	Description string
	Parameters  []Parameter
	Source      string // "internal" or the MCP server name
}

// Result is what executing a tool produces.
type Result struct {
	Success       bool
	Content       string
	Output        any
	Error         string
	ToolName      string
	ExecutionTime time.Duration
	Metadata      map[string]any
}

// Tool is anything the unified manager can execute, whether it runs
// in-process or is proxied to a remote MCP server.
type Tool interface {
	Info() Info
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// Source discovers a set of tools sharing one provenance (the
// in-process registry, or one MCP server connection).
type Source interface {
	Name() string
	Type() string
	DiscoverTools(ctx context.Context) error
	ListTools() []Info
	GetTool(name string) (Tool, bool)
}

// CollisionPolicy decides what happens when two sources register a
// tool under the same name (spec.md §4.5).
type CollisionPolicy string

const (
	CollisionPrefixInternal CollisionPolicy = "prefix-internal"
	CollisionPreferMCP      CollisionPolicy = "prefer-mcp"
	CollisionFirstWins      CollisionPolicy = "first-wins"
	CollisionError          CollisionPolicy = "error"
)

const DefaultExecuteTimeout = 60 * time.Second
