package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyPageID     = "page_id"
	KeyParentID   = "parent_id"
	KeyDepth      = "depth"
	KeyTitle      = "title"
	KeyURL        = "url"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyCount      = "count"
	KeyPages      = "pages"
	KeyRequests   = "requests"
	KeyAssets     = "assets"
	KeyDurationMS = "duration_ms"
	KeySchedule   = "schedule_name"
	KeyName       = "name"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func PageID(id string) slog.Attr      { return slog.String(KeyPageID, id) }
func ParentID(id string) slog.Attr    { return slog.String(KeyParentID, id) }
func Depth(d int) slog.Attr           { return slog.Int(KeyDepth, d) }
func Title(t string) slog.Attr        { return slog.String(KeyTitle, t) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Pages(n int) slog.Attr           { return slog.Int(KeyPages, n) }
func Requests(n int) slog.Attr        { return slog.Int(KeyRequests, n) }
func Assets(n int) slog.Attr          { return slog.Int(KeyAssets, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func ScheduleName(n string) slog.Attr { return slog.String(KeySchedule, n) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
