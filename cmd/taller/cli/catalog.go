package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/taller-erp/taller/internal/rbac"
	"github.com/taller-erp/taller/internal/shared"
)

// CatalogPort is the part of rbac.Catalog the sync command needs.
type CatalogPort interface {
	ListCatalog(ctx context.Context, includeInactive bool) ([]rbac.Permission, error)
	EnsurePermission(ctx context.Context, in rbac.PermissionInput) (rbac.Permission, error)
}

// CatalogSyncMode enumerates supported execution strategies.
type CatalogSyncMode string

const (
	// CatalogSyncModeDry previews missing and drifted entries.
	CatalogSyncModeDry CatalogSyncMode = "dry"
	// CatalogSyncModeApply upserts every shipped definition.
	CatalogSyncModeApply CatalogSyncMode = "apply"
)

// CatalogSyncOptions configures the sync command execution.
type CatalogSyncOptions struct {
	Mode        CatalogSyncMode
	JSONOutput  bool
	Definitions []shared.PermissionDef
	Stdout      io.Writer
	Stderr      io.Writer
}

// CatalogSyncSummary captures the structured reporting outcome.
type CatalogSyncSummary struct {
	Mode     CatalogSyncMode `json:"mode"`
	Missing  []string        `json:"missing"`
	Drifted  []string        `json:"drifted"`
	Inactive []string        `json:"inactive"`
	Unknown  []string        `json:"unknown"`
	Applied  int             `json:"applied"`
}

// CatalogCLI offers operational helpers for the permission catalog.
type CatalogCLI struct {
	catalog CatalogPort
}

// NewCatalogCLI constructs a new helper instance.
func NewCatalogCLI(catalog CatalogPort) *CatalogCLI {
	return &CatalogCLI{catalog: catalog}
}

// SyncCommand compares the shipped definitions with the stored catalog and,
// in apply mode, upserts them. Entries deactivated by administrators stay
// inactive; codes present only in the database are reported, never removed.
func (c *CatalogCLI) SyncCommand(ctx context.Context, opts CatalogSyncOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Mode == "" {
		opts.Mode = CatalogSyncModeDry
	}
	if opts.Mode != CatalogSyncModeDry && opts.Mode != CatalogSyncModeApply {
		fmt.Fprintf(opts.Stderr, "unsupported mode %q\n", opts.Mode)
		return 2
	}
	defs := opts.Definitions
	if defs == nil {
		defs = shared.DefaultCatalog()
	}

	stored, err := c.catalog.ListCatalog(ctx, true)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "load catalog: %v\n", err)
		return 1
	}
	summary := diffCatalog(defs, stored)
	summary.Mode = opts.Mode

	if opts.Mode == CatalogSyncModeApply {
		for _, def := range defs {
			if _, err := c.catalog.EnsurePermission(ctx, toInput(def)); err != nil {
				fmt.Fprintf(opts.Stderr, "upsert %s: %v\n", def.Code, err)
				return 1
			}
			summary.Applied++
		}
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "encode summary: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(opts.Stdout, "mode: %s\n", summary.Mode)
	printList(opts.Stdout, "missing", summary.Missing)
	printList(opts.Stdout, "drifted", summary.Drifted)
	printList(opts.Stdout, "inactive", summary.Inactive)
	printList(opts.Stdout, "unknown", summary.Unknown)
	if opts.Mode == CatalogSyncModeApply {
		fmt.Fprintf(opts.Stdout, "applied: %d\n", summary.Applied)
	}
	return 0
}

func diffCatalog(defs []shared.PermissionDef, stored []rbac.Permission) CatalogSyncSummary {
	byCode := make(map[string]rbac.Permission, len(stored))
	for _, p := range stored {
		byCode[p.Code] = p
	}
	summary := CatalogSyncSummary{Missing: []string{}, Drifted: []string{}, Inactive: []string{}, Unknown: []string{}}
	known := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		known[def.Code] = struct{}{}
		p, ok := byCode[def.Code]
		switch {
		case !ok:
			summary.Missing = append(summary.Missing, def.Code)
		case p.Name != def.Name || p.Module != def.Module:
			summary.Drifted = append(summary.Drifted, def.Code)
		}
		if ok && !p.Active {
			summary.Inactive = append(summary.Inactive, def.Code)
		}
	}
	for code := range byCode {
		if _, ok := known[code]; !ok {
			summary.Unknown = append(summary.Unknown, code)
		}
	}
	sort.Strings(summary.Unknown)
	return summary
}

func toInput(def shared.PermissionDef) rbac.PermissionInput {
	in := rbac.PermissionInput{Code: def.Code, Name: def.Name, Module: def.Module}
	if def.Description != "" {
		desc := def.Description
		in.Description = &desc
	}
	if def.Group != "" {
		group := def.Group
		in.Group = &group
	}
	return in
}

func printList(w io.Writer, label string, items []string) {
	fmt.Fprintf(w, "%s: %d\n", label, len(items))
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}
