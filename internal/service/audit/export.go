package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jwalitptl/taskdesk-api/internal/model"
)

type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"

	// MaxExportRows caps a single export.
	MaxExportRows = 10000
)

func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportJSON:
		return ExportJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f ExportFormat) ContentType() string {
	if f == ExportJSON {
		return "application/json"
	}
	return "text/csv"
}

var csvHeader = []string{
	"created_at", "user_id", "user_name", "user_role", "action", "resource_type",
	"resource_id", "resource_title", "success", "error_message", "ip_address",
	"user_agent", "old_data", "new_data",
}

// Export writes every entry matching filter, newest first, up to
// MaxExportRows. The filter's pagination is ignored.
func (s *Service) Export(ctx context.Context, filter model.ActivityLogFilter, format ExportFormat, w io.Writer) (int, error) {
	entries, err := s.collect(ctx, filter)
	if err != nil {
		return 0, err
	}

	switch format {
	case ExportJSON:
		if entries == nil {
			entries = []*model.ActivityLogEntry{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return len(entries), enc.Encode(entries)
	default:
		return len(entries), writeCSV(w, entries)
	}
}

func (s *Service) collect(ctx context.Context, filter model.ActivityLogFilter) ([]*model.ActivityLogEntry, error) {
	var out []*model.ActivityLogEntry
	filter.Pagination = model.Pagination{Page: 1, PageSize: model.MaxPageSize}
	for len(out) < MaxExportRows {
		page, _, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to export activity: %w", err)
		}
		out = append(out, page...)
		if len(page) < filter.PageSize {
			break
		}
		filter.Page++
	}
	if len(out) > MaxExportRows {
		out = out[:MaxExportRows]
	}
	return out, nil
}

func writeCSV(w io.Writer, entries []*model.ActivityLogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		resourceID := ""
		if e.ResourceID != nil {
			resourceID = e.ResourceID.String()
		}
		role := ""
		if e.UserRole != nil {
			role = string(*e.UserRole)
		}
		if err := cw.Write([]string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.UserID.String(),
			deref(e.UserName),
			role,
			string(e.Action),
			string(e.ResourceType),
			resourceID,
			deref(e.ResourceTitle),
			strconv.FormatBool(e.Success),
			deref(e.ErrorMessage),
			deref(e.IPAddress),
			deref(e.UserAgent),
			string(e.OldData),
			string(e.NewData),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
