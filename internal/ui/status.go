package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo contains index health information for the status command.
type StatusInfo struct {
	// Index state from the ledger
	ProjectName  string    `json:"project_name"`
	IndexedFiles int       `json:"indexed_files"`
	TotalChunks  int       `json:"total_chunks"`
	PendingCount int       `json:"pending_count"`
	LastRunAt    time.Time `json:"last_run_at"`

	// Last run categorization counts
	LastNew       int `json:"last_new"`
	LastModified  int `json:"last_modified"`
	LastUnchanged int `json:"last_unchanged"`
	LastDeleted   int `json:"last_deleted"`

	// Daily quota
	QuotaDate  string `json:"quota_date"`
	QuotaUsed  int    `json:"quota_used"`
	QuotaLimit int    `json:"quota_limit"`

	// Local storage sizes (in bytes)
	LedgerSize  int64 `json:"ledger_size"`
	KeywordSize int64 `json:"keyword_size"`
	HistorySize int64 `json:"history_size"`

	// Embedder
	EmbedderType   string `json:"embedder_type"`
	EmbedderStatus string `json:"embedder_status"` // "ready", "offline", "error"
	EmbedderModel  string `json:"embedder_model,omitempty"`

	// RemotePoints is the remote collection's point count; -1 means the
	// remote store was not queried.
	RemotePoints int `json:"remote_points"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	// Header
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.ProjectName))

	// Index stats
	_, _ = fmt.Fprintf(r.out, "  Files:        %d\n", info.IndexedFiles)
	_, _ = fmt.Fprintf(r.out, "  Chunks:       %d\n", info.TotalChunks)
	if info.PendingCount > 0 {
		_, _ = fmt.Fprintf(r.out, "  Pending:      %d (deferred on quota, retried next run)\n", info.PendingCount)
	}
	if !info.LastRunAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last run:     %s", formatTime(info.LastRunAt))
		_, _ = fmt.Fprintf(r.out, "  (%d new, %d modified, %d unchanged, %d deleted)\n",
			info.LastNew, info.LastModified, info.LastUnchanged, info.LastDeleted)
	}
	_, _ = fmt.Fprintln(r.out)

	// Quota
	if info.QuotaLimit > 0 {
		_, _ = fmt.Fprintln(r.out, "  Daily quota:")
		_, _ = fmt.Fprintf(r.out, "    Day:    %s\n", info.QuotaDate)
		_, _ = fmt.Fprintf(r.out, "    Used:   %d / %d chunks\n", info.QuotaUsed, info.QuotaLimit)
		_, _ = fmt.Fprintln(r.out)
	}

	// Storage sizes
	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Ledger:  %s\n", FormatBytes(info.LedgerSize))
	_, _ = fmt.Fprintf(r.out, "    Keyword: %s\n", FormatBytes(info.KeywordSize))
	_, _ = fmt.Fprintf(r.out, "    History: %s\n", FormatBytes(info.HistorySize))
	_, _ = fmt.Fprintln(r.out)

	// Embedder status
	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Type:   %s\n", info.EmbedderType)
	_, _ = fmt.Fprintf(r.out, "    Status: %s\n", r.renderStatus(info.EmbedderStatus))
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:  %s\n", info.EmbedderModel)
	}

	// Remote collection, when queried
	if info.RemotePoints >= 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "  Remote points: %d\n", info.RemotePoints)
		if info.RemotePoints == 0 && info.IndexedFiles > 0 {
			_, _ = fmt.Fprintf(r.out, "  %s\n",
				r.styles.Warning.Render("Remote collection is empty; the next run will repair and re-index."))
		}
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "running":
		return r.styles.Success.Render(status)
	case "offline", "stopped":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
